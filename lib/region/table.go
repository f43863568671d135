// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// ErrInvalidPrefix is returned by NewTable for a key that is neither a
// CIDR prefix nor a bare address.
var ErrInvalidPrefix = errors.New("invalid network prefix")

// Entry is one prefix → label row of a Table.
type Entry struct {
	Prefix netip.Prefix
	Label  string
}

// Table is an immutable, ordered set of prefix → region label rows.
// Rows are ordered longest prefix first, then by address, then by
// label, so iteration order is stable across loads of the same data.
type Table struct {
	entries []Entry
}

// NewTable builds a Table from CIDR strings to labels. Keys may carry
// host bits ("52.76.1.0/16" is treated as 52.76.0.0/16) or be bare
// addresses, which become single-host prefixes. Rows with an empty
// label are rejected along with unparseable keys.
func NewTable(prefixes map[string]string) (*Table, error) {
	entries := make([]Entry, 0, len(prefixes))
	for key, label := range prefixes {
		prefix, err := parsePrefix(key)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(label) == "" {
			return nil, fmt.Errorf("prefix %s: empty region label", key)
		}
		entries = append(entries, Entry{Prefix: prefix, Label: label})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Prefix.Bits() != b.Prefix.Bits() {
			return a.Prefix.Bits() > b.Prefix.Bits()
		}
		if cmp := a.Prefix.Addr().Compare(b.Prefix.Addr()); cmp != 0 {
			return cmp < 0
		}
		return a.Label < b.Label
	})

	return &Table{entries: entries}, nil
}

func parsePrefix(key string) (netip.Prefix, error) {
	key = strings.TrimSpace(key)
	if !strings.Contains(key, "/") {
		addr, err := netip.ParseAddr(key)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: %q", ErrInvalidPrefix, key)
		}
		addr = addr.Unmap().WithZone("")
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}
	prefix, err := netip.ParsePrefix(key)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: %q", ErrInvalidPrefix, key)
	}
	return prefix.Masked(), nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns a copy of the rows in lookup order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	return append([]Entry(nil), t.entries...)
}

// GuessRegion returns the label of the first prefix containing addr.
// The second result is false when addr is malformed or no prefix
// matches. IPv4-mapped IPv6 addresses match IPv4 prefixes.
func (t *Table) GuessRegion(addr string) (string, bool) {
	if t == nil {
		return "", false
	}
	parsed, err := netip.ParseAddr(strings.TrimSpace(addr))
	if err != nil {
		return "", false
	}
	return t.lookup(parsed.Unmap().WithZone(""))
}

func (t *Table) lookup(addr netip.Addr) (string, bool) {
	for _, entry := range t.entries {
		if entry.Prefix.Contains(addr) {
			return entry.Label, true
		}
	}
	return "", false
}
