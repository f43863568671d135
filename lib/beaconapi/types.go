// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package beaconapi is the client for the Beacon HTTP API and the
// definition of its wire types.
//
// The API has four endpoints:
//
//	GET  /v1/health                 → HealthResponse
//	POST /v1/auth/gate              AuthGateRequest → AuthGateResponse
//	POST /v1/heartbeat              HeartbeatRequest → HeartbeatResponse
//	GET  /v1/events/nearby?hop=N    → []NearbyEvent
//
// Wire types validate themselves: positions are normalized to [0, 1]
// on both axes and party sizes are 1 through 20. The client validates
// before sending; the mock server validates on receipt and answers 422.
package beaconapi

import (
	"errors"
	"fmt"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/region"
)

// Party size bounds.
const (
	MinPartySize = 1
	MaxPartySize = 20
)

// DefaultNearbyHop is the hop radius used when none is given.
const DefaultNearbyHop = 8

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid request")

// HealthResponse is the /v1/health body.
type HealthResponse struct {
	OK        bool  `json:"ok"`
	Timestamp int64 `json:"ts"`
}

// AuthGateRequest asks the server to vouch for a label.
type AuthGateRequest struct {
	Label string `json:"nick"`
	GM    bool   `json:"gm,omitempty"`
}

// AuthGateResponse echoes the label the server recognized.
type AuthGateResponse struct {
	Label string `json:"nick"`
	GM    bool   `json:"gm"`
}

// HeartbeatRequest is a location heartbeat. It has the same shape as
// the relay's snapshot payload.
type HeartbeatRequest struct {
	Label     string           `json:"nick"`
	Region    string           `json:"region"`
	Position  *region.Position `json:"pos"`
	PartySize *int             `json:"party"`
	Timestamp int64            `json:"ts"`
}

// Validate checks ranges.
func (r HeartbeatRequest) Validate() error {
	if err := ValidatePosition(r.Position); err != nil {
		return err
	}
	if r.PartySize != nil && (*r.PartySize < MinPartySize || *r.PartySize > MaxPartySize) {
		return fmt.Errorf("%w: party %d outside %d..%d", ErrInvalid, *r.PartySize, MinPartySize, MaxPartySize)
	}
	if r.Timestamp < 0 {
		return fmt.Errorf("%w: negative ts", ErrInvalid)
	}
	return nil
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	OK   bool             `json:"ok"`
	Echo HeartbeatRequest `json:"echo"`
}

// NearbyEvent is another player reported near the caller.
type NearbyEvent struct {
	Label    string           `json:"nick"`
	Distance int              `json:"dist"`
	Region   string           `json:"region"`
	Position *region.Position `json:"pos"`
}

// Validate checks ranges.
func (e NearbyEvent) Validate() error {
	if e.Distance < 0 {
		return fmt.Errorf("%w: negative dist %d", ErrInvalid, e.Distance)
	}
	return ValidatePosition(e.Position)
}

// ValidatePosition accepts nil or a position inside the unit square.
func ValidatePosition(position *region.Position) error {
	if position == nil {
		return nil
	}
	if position.X < 0 || position.X > 1 || position.Y < 0 || position.Y > 1 {
		return fmt.Errorf("%w: pos (%g, %g) outside the unit square", ErrInvalid, position.X, position.Y)
	}
	return nil
}
