// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sink implements the delivery targets the relay engine emits
// into. Each type satisfies share.Sink.
//
//   - [Outbox] writes one JSON file per payload into a directory for a
//     separate uploader to pick up.
//   - [HTTP] posts payloads to the Beacon API's heartbeat endpoint.
//   - [Socket] forwards payloads as CBOR to another local service's
//     "ingest" action.
//
// Sinks do not retry. The engine counts failures and moves on.
package sink
