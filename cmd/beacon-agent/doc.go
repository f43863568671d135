// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Beacon-agent is the local relay daemon. It owns the identity gate,
// watches captured traffic to learn which region the player is
// connected to, and relays a heartbeat through the share engine to the
// configured sink while sharing is permitted.
//
// Data flow:
//
//	capture source → locator → last region ─┐
//	settings hint / configured region ──────┼→ heartbeat (every 1s) → engine mailbox → sink
//	identity gate + upload switch → permitted? → engine start/stop
//
// Sharing is permitted when uploads are enabled and the label is
// verified. The engine is started on the transition into permitted
// and stopped on the transition out; the engine's own auto-off timers
// still apply while it runs.
//
// The control socket (CBOR, see lib/control) lets the beacon CLI read
// status, change the label, verify it and toggle uploads. When
// metrics_addr is set, Prometheus metrics are served on /metrics.
package main
