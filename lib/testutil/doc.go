// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Beacon packages.
//
// [SocketDir] creates a short temporary directory in /tmp for Unix
// domain sockets, which have a 108-byte path limit that t.TempDir()
// paths can exceed. [WriteFile] drops a fixture file into a test
// directory.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests never call time.After themselves. They are the only
// wall-clock timeouts in the test suite; time-dependent behavior is
// tested with clock.Fake.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Beacon-internal dependencies.
package testutil
