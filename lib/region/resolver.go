// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

// DefaultRegion is the terminal fallback used when settings name no
// region.
const DefaultRegion = "UNKNOWN"

// PickRegion returns the first non-empty of hint, last and configured.
// Empty strings count as absent. configured is the guaranteed fallback
// and must not be empty; if it is, PickRegion returns "".
func PickRegion(hint, last, configured string) string {
	if hint != "" {
		return hint
	}
	if last != "" {
		return last
	}
	return configured
}
