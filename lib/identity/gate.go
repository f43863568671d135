// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity tracks the label an agent shares under and whether
// the operator has proven it.
//
// A [Gate] moves between three states:
//
//	Unset ──SetLabel(x)──▶ Pending ──Verify*(success)──▶ Verified(method)
//	  ▲                      │  ▲                          │
//	  └────SetLabel("")──────┘  └────────SetLabel(x)───────┘
//
// Declaring a label, even the same one again, always discards prior
// proof. Verification with an empty label is a no-op. A verified gate
// re-verified by a different method records the newer method.
//
// The gate emits nothing on its own; the agent reads [Gate.Verified]
// to decide whether sharing is permitted.
package identity

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/clock"
)

// Method records how a label was verified.
type Method int

const (
	MethodNone Method = iota
	MethodManual
	MethodOCR
	MethodServer
)

// String returns the wire name of the method.
func (m Method) String() string {
	switch m {
	case MethodNone:
		return "none"
	case MethodManual:
		return "manual"
	case MethodOCR:
		return "ocr"
	case MethodServer:
		return "server"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// MarshalText encodes the method as its wire name.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the wire names produced by MarshalText. An
// empty string decodes as MethodNone.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMethod parses a wire name.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "", "none":
		return MethodNone, nil
	case "manual":
		return MethodManual, nil
	case "ocr":
		return MethodOCR, nil
	case "server":
		return MethodServer, nil
	default:
		return MethodNone, fmt.Errorf("unknown verification method %q", name)
	}
}

// State is the coarse gate state derived from label and proof.
type State int

const (
	StateUnset State = iota
	StatePending
	StateVerified
)

func (s State) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StatePending:
		return "pending"
	case StateVerified:
		return "verified"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is an immutable copy of the gate taken after an operation.
type Snapshot struct {
	Label    string `json:"nick"`
	Verified bool   `json:"verified"`
	Method   Method `json:"method"`

	// Timestamp is epoch seconds.
	Timestamp int64 `json:"ts"`
}

// Time returns Timestamp as a UTC time.
func (s Snapshot) Time() time.Time { return time.Unix(s.Timestamp, 0).UTC() }

// State derives the coarse state from the snapshot fields.
func (s Snapshot) State() State {
	switch {
	case s.Label == "":
		return StateUnset
	case s.Verified:
		return StateVerified
	default:
		return StatePending
	}
}

// Gate is the identity state machine. The zero value is not usable;
// construct with NewGate. Safe for concurrent use.
type Gate struct {
	clock clock.Clock

	mu       sync.Mutex
	label    string
	verified bool
	method   Method
}

// NewGate returns an unset gate stamping snapshots with clk.
func NewGate(clk clock.Clock) *Gate {
	return &Gate{clock: clk}
}

// Restore seeds the gate from persisted settings. A verified flag with
// an empty label is ignored, and a restored verification is recorded
// as manual since the original method was not persisted.
func (g *Gate) Restore(label string, verified bool) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.label = label
	g.verified = verified && label != ""
	g.method = MethodNone
	if g.verified {
		g.method = MethodManual
	}
	return g.snapshotLocked()
}

// SetLabel declares a label and discards any prior verification.
func (g *Gate) SetLabel(label string) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.label = label
	g.verified = false
	g.method = MethodNone
	return g.snapshotLocked()
}

// VerifyManual marks the label verified when the operator confirms it.
// A false confirmation leaves the gate unchanged.
func (g *Gate) VerifyManual(confirm bool) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	if confirm {
		g.verifyLocked(MethodManual)
	}
	return g.snapshotLocked()
}

// VerifyOCR marks the label verified when it occurs, case-insensitively,
// anywhere in text recognized from the game screen.
func (g *Gate) VerifyOCR(text string) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.label != "" && strings.Contains(strings.ToLower(text), strings.ToLower(g.label)) {
		g.verifyLocked(MethodOCR)
	}
	return g.snapshotLocked()
}

// VerifyServer marks the label verified when the server's auth gate
// accepted it.
func (g *Gate) VerifyServer(ok bool) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ok {
		g.verifyLocked(MethodServer)
	}
	return g.snapshotLocked()
}

// Snapshot returns the current state without changing it.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// Verified reports whether the current label is proven.
func (g *Gate) Verified() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verified
}

// Label returns the current label.
func (g *Gate) Label() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.label
}

func (g *Gate) verifyLocked(method Method) {
	if g.label == "" {
		return
	}
	g.verified = true
	g.method = method
}

func (g *Gate) snapshotLocked() Snapshot {
	return Snapshot{
		Label:     g.label,
		Verified:  g.verified,
		Method:    g.method,
		Timestamp: g.clock.Now().Unix(),
	}
}
