// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package region turns observed traffic into a coarse region label.
//
// A [Table] maps network prefixes to labels ("52.76.0.0/16" →
// "ASIA/SGP"). [Table.GuessRegion] walks the prefixes longest first and
// returns the first containing prefix's label, so the first match is
// also the most specific one. Lookups never fail: a malformed or
// unmatched address is simply "no region".
//
// A [Locator] wraps a table with a small LRU cache and extracts the
// destination host from capture events. [PickRegion] chooses the label
// the agent reports from the per-event hint, the last known region and
// the configured fallback.
//
// Tables are immutable after construction and safe for concurrent use.
package region
