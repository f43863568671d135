// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/control"
	"github.com/dalyn98/Albion-Beacon-Ver3/lib/identity"
)

// Palette indices from the 256-color table. Terminals without color
// support get plain text from lipgloss.
var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	goodStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type statusRow struct {
	key   string
	value string
}

func renderRows(w io.Writer, heading string, rows []statusRow) {
	fmt.Fprintln(w, headingStyle.Render(heading))
	for _, row := range rows {
		fmt.Fprintf(w, "  %s%s\n", keyStyle.Render(row.key), row.value)
	}
}

func renderStatus(w io.Writer, status control.StatusResponse) {
	renderRows(w, "agent", []statusRow{
		{"version", status.Version},
		{"session", status.Session},
		{"started", status.StartedAt.Format(time.RFC3339)},
		{"interface", orDash(status.Interface)},
		{"capture events", fmt.Sprint(status.CaptureEvents)},
	})
	fmt.Fprintln(w)
	renderIdentity(w, status.Identity)
	fmt.Fprintln(w)

	relay := status.Relay
	rows := []statusRow{
		{"upload", onOff(status.UploadEnabled)},
		{"sharing", sharingState(status)},
		{"region", status.Region},
		{"sink", status.Sink},
		{"heartbeat", relay.Heartbeat.String()},
		{"pending", fmt.Sprint(relay.Pending)},
		{"last submit", formatTime(relay.LastSubmit)},
		{"last emit", formatTime(relay.LastEmit)},
		{"counters", fmt.Sprintf("submitted %d, emitted %d, delivered %d, failed %d, dropped %d",
			relay.Submitted, relay.Emitted, relay.Delivered, relay.Failed, relay.Dropped)},
	}
	if relay.LastAutoOff != "" {
		rows = append(rows, statusRow{"auto-off", warnStyle.Render(fmt.Sprintf("%s (%d total)", relay.LastAutoOff, relay.AutoOffs))})
	}
	renderRows(w, "relay", rows)
}

func renderIdentity(w io.Writer, snapshot identity.Snapshot) {
	rows := []statusRow{
		{"label", orDash(snapshot.Label)},
		{"state", identityState(snapshot)},
	}
	if snapshot.Verified {
		rows = append(rows, statusRow{"method", snapshot.Method.String()})
	}
	renderRows(w, "identity", rows)
}

func identityState(snapshot identity.Snapshot) string {
	state := snapshot.State()
	switch state {
	case identity.StateVerified:
		return goodStyle.Render(state.String())
	case identity.StatePending:
		return warnStyle.Render(state.String())
	default:
		return badStyle.Render(state.String())
	}
}

func sharingState(status control.StatusResponse) string {
	switch {
	case status.Sharing && status.Relay.Enabled:
		return goodStyle.Render("active")
	case status.Sharing:
		return warnStyle.Render("permitted, relay off")
	default:
		return badStyle.Render("off")
	}
}

func onOff(value bool) string {
	if value {
		return "on"
	}
	return "off"
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "never"
	}
	return value.Format(time.RFC3339)
}
