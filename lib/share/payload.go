// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"context"
	"time"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/region"
)

// Payload kinds.
const (
	KindSnapshot  = "snapshot"
	KindHeartbeat = "heartbeat"
)

// Payload is anything the engine can hold and emit. Implementations
// are immutable values whose exported fields are the wire format (the
// json tags apply to both JSON and CBOR encodings).
type Payload interface {
	// Kind names the payload shape.
	Kind() string

	// Time is when the payload was built, in whole seconds.
	Time() time.Time
}

// Snapshot is one point-in-time record of local state.
type Snapshot struct {
	Label  string `json:"nick"`
	Region string `json:"region"`

	// Position is nil when unknown. Serialized as null, not omitted.
	Position *region.Position `json:"pos"`

	// PartySize is nil when unknown. Serialized as null, not omitted.
	PartySize *int `json:"party"`

	// Timestamp is epoch seconds.
	Timestamp int64 `json:"ts"`
}

// Kind implements [Payload].
func (s Snapshot) Kind() string { return KindSnapshot }

// Time implements [Payload].
func (s Snapshot) Time() time.Time { return time.Unix(s.Timestamp, 0).UTC() }

// Heartbeat is the agent's liveness record. It carries no position.
type Heartbeat struct {
	Label     string `json:"nick"`
	Region    string `json:"region"`
	Interface string `json:"iface,omitempty"`
	Timestamp int64  `json:"ts"`
	Type      string `json:"type"`
	Version   string `json:"version"`
}

// NewHeartbeat builds a heartbeat stamped at now.
func NewHeartbeat(label, regionLabel, iface, version string, now time.Time) Heartbeat {
	return Heartbeat{
		Label:     label,
		Region:    regionLabel,
		Interface: iface,
		Timestamp: now.Unix(),
		Type:      KindHeartbeat,
		Version:   version,
	}
}

// Kind implements [Payload].
func (h Heartbeat) Kind() string { return KindHeartbeat }

// Time implements [Payload].
func (h Heartbeat) Time() time.Time { return time.Unix(h.Timestamp, 0).UTC() }

// Sink receives emitted payloads. Deliver is called from a single
// goroutine, one payload at a time, in emission order.
type Sink interface {
	Deliver(ctx context.Context, payload Payload) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, payload Payload) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, payload Payload) error {
	return f(ctx, payload)
}

func positionOf(payload Payload) *region.Position {
	if snapshot, ok := payload.(Snapshot); ok {
		return snapshot.Position
	}
	return nil
}
