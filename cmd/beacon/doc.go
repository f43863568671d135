// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Beacon is the operator CLI for a running beacon-agent.
//
// Most commands talk to the agent over its control socket (--socket,
// or BEACON_CONTROL_SOCKET): status, label, verify, submit and relay.
// The regions commands work offline on a region table or capture log,
// and the api commands query a Beacon API server directly.
package main
