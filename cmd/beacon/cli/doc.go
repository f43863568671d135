// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the beacon operator tool.
//
// A [Command] tree dispatches on the first positional argument. Leaf
// commands declare their flags as a tagged params struct (see
// [BindFlags]) and embed [JSONOutput] when they support --json.
// Unknown commands and flags produce "did you mean" suggestions.
//
// Commands write to the writers in [IO] so tests can capture output
// without touching the process's stdout.
package cli
