// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package capture

// OpenLive always fails off Linux.
func OpenLive(options LiveOptions) (*LiveSource, error) {
	return nil, ErrLiveUnsupported
}
