// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR wire format shared by the agent's control
// socket, the beacon CLI and the socket delivery sink.
//
// Types that only travel over sockets use cbor struct tags. Types that
// are also written as JSON (relay payloads, identity snapshots) carry
// only json tags; fxamacker/cbor falls back to them, so one struct
// definition serves both encodings.
package codec
