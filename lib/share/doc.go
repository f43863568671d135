// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package share is the relay loop that decides if, when and what the
// agent emits.
//
// An [Engine] holds a single-slot mailbox. Producers call
// [Engine.SubmitLocalState] or [Engine.Submit] as often as they like;
// each call replaces whatever was pending, so only the latest payload
// can ever be emitted. A background poll loop runs every
// [DefaultPollInterval] while the engine is enabled and, at most once
// per heartbeat interval, hands the pending payload to a single
// delivery worker which calls the [Sink].
//
// The engine disables itself in two situations:
//
//   - No submission for longer than the no-receive timeout (default
//     ten minutes). The poll loop exits and a stale pending payload is
//     never emitted.
//   - A submission whose position is identical to the previous one
//     while the time since the previous receive exceeds the stationary
//     timeout. The receive timestamp is updated before the comparison,
//     so in practice this only fires when the submission call itself
//     stalls past the threshold.
//
// Delivery is best effort. A failed delivery is logged at warn level,
// counted and dropped; the loop keeps polling. A payload handed off
// while the engine is being disabled is dropped rather than delivered,
// so after [Engine.Stop] returns nothing new reaches the sink beyond
// one poll interval. Callers that need a final flush must deliver it
// themselves.
//
// The engine knows nothing about identity or upload permission. The
// agent consults those before starting it.
package share
