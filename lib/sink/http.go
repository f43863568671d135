// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"fmt"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/beaconapi"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/share"
)

// HTTP posts payloads to /v1/heartbeat on the Beacon API.
type HTTP struct {
	client *beaconapi.Client
}

// NewHTTP returns a sink posting through client.
func NewHTTP(client *beaconapi.Client) *HTTP {
	return &HTTP{client: client}
}

// Deliver implements share.Sink. Heartbeats are sent without position
// or party; the API has no field for the interface or version.
func (h *HTTP) Deliver(ctx context.Context, payload share.Payload) error {
	request, err := HeartbeatRequest(payload)
	if err != nil {
		return err
	}
	if _, err := h.client.Heartbeat(ctx, request); err != nil {
		return fmt.Errorf("posting %s: %w", payload.Kind(), err)
	}
	return nil
}

// HeartbeatRequest converts a relay payload to the API wire type.
func HeartbeatRequest(payload share.Payload) (beaconapi.HeartbeatRequest, error) {
	switch typed := payload.(type) {
	case share.Snapshot:
		return beaconapi.HeartbeatRequest{
			Label:     typed.Label,
			Region:    typed.Region,
			Position:  typed.Position,
			PartySize: typed.PartySize,
			Timestamp: typed.Timestamp,
		}, nil
	case share.Heartbeat:
		return beaconapi.HeartbeatRequest{
			Label:     typed.Label,
			Region:    typed.Region,
			Timestamp: typed.Timestamp,
		}, nil
	default:
		return beaconapi.HeartbeatRequest{}, fmt.Errorf("unsupported payload kind %q", payload.Kind())
	}
}
