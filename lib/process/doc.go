// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the entrypoint error handler shared by the
// Beacon binaries. It is the one place outside CLI output code that
// writes to stderr directly, for errors that happen before the
// structured logger exists or after it is gone.
package process
