// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control defines the beacon agent's control socket API: the
// action names, the CBOR request and response types, and a typed
// client over service.Client.
//
// Every request is a CBOR map with an "action" key plus the fields
// listed on its request type. Responses use the service package's
// {ok, error, data} envelope.
package control

import (
	"time"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/identity"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/region"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/share"
)

// Actions served by the agent.
const (
	ActionStatus       = "status"
	ActionIdentity     = "identity"
	ActionSetLabel     = "set-label"
	ActionVerifyManual = "verify-manual"
	ActionVerifyOCR    = "verify-ocr"
	ActionVerifyServer = "verify-server"
	ActionSubmit       = "submit"
	ActionRelayEnable  = "relay-enable"
	ActionRelayDisable = "relay-disable"
)

// StatusResponse is the "status" result.
type StatusResponse struct {
	Session   string    `cbor:"session" json:"session"`
	Version   string    `cbor:"version" json:"version"`
	StartedAt time.Time `cbor:"started_at" json:"started_at"`

	Identity identity.Snapshot `cbor:"identity" json:"identity"`

	// UploadEnabled is the operator switch; Sharing is whether the
	// relay is currently allowed to run (upload enabled and the label
	// verified).
	UploadEnabled bool `cbor:"upload_enabled" json:"upload_enabled"`
	Sharing       bool `cbor:"sharing" json:"sharing"`

	Region     string `cbor:"region" json:"region"`
	LastRegion string `cbor:"last_region" json:"last_region"`
	Interface  string `cbor:"interface" json:"interface"`
	Sink       string `cbor:"sink" json:"sink"`

	CaptureEvents uint64 `cbor:"capture_events" json:"capture_events"`

	Relay share.Status `cbor:"relay" json:"relay"`
}

// SetLabelRequest carries the "set-label" fields.
type SetLabelRequest struct {
	Label string `cbor:"label"`
}

// VerifyManualRequest carries the "verify-manual" fields.
type VerifyManualRequest struct {
	Confirm bool `cbor:"confirm"`
}

// VerifyOCRRequest carries the "verify-ocr" fields.
type VerifyOCRRequest struct {
	Text string `cbor:"text"`
}

// VerifyServerRequest carries the "verify-server" fields. A nil OK
// asks the agent to consult the Beacon API's auth gate itself.
type VerifyServerRequest struct {
	OK *bool `cbor:"ok,omitempty"`
}

// SubmitRequest carries the "submit" fields. Empty Label and Region
// default to the gate's label and the agent's current region.
type SubmitRequest struct {
	Label     string           `cbor:"label,omitempty"`
	Region    string           `cbor:"region,omitempty"`
	Position  *region.Position `cbor:"pos,omitempty"`
	PartySize *int             `cbor:"party,omitempty"`
}

// RelayResponse is the result of "relay-enable" and "relay-disable".
type RelayResponse struct {
	UploadEnabled bool `cbor:"upload_enabled" json:"upload_enabled"`
	Sharing       bool `cbor:"sharing" json:"sharing"`
}
