// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package candidates mines capture logs for prefixes worth adding to a
// region table. It counts public destination addresses, keeps the
// busiest N, and rolls them up into /24 and /16 networks so an
// operator can map each network to a region by hand.
package candidates

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"net/netip"
	"slices"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/capture"
)

// DefaultTopN is the number of addresses kept when none is given.
const DefaultTopN = 30

// reservedIPv4 is 240.0.0.0/4 plus the limited broadcast address,
// which netip has no predicate for.
var reservedIPv4 = netip.MustParsePrefix("240.0.0.0/4")

// AddressCount is how often one destination address was seen.
type AddressCount struct {
	Address netip.Addr
	Count   int
}

// PrefixCount sums the counts of the top addresses inside a network.
type PrefixCount struct {
	Prefix netip.Prefix
	Count  int
}

// Report is the result of one analysis. All lists are sorted by count
// descending, ties by address.
type Report struct {
	Top     []AddressCount
	Slash24 []PrefixCount
	Slash16 []PrefixCount
}

// IsPublic reports whether addr is routable on the internet: not
// private, loopback, link-local, multicast, unspecified or reserved.
func IsPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() {
		return false
	}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsMulticast() || addr.IsUnspecified() {
		return false
	}
	if addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsInterfaceLocalMulticast() {
		return false
	}
	if addr.Is4() && (reservedIPv4.Contains(addr) || addr.As4()[0] == 0) {
		return false
	}
	return true
}

// Analyze consumes source and builds a report from its topN busiest
// public destinations. A topN of zero or less selects DefaultTopN.
func Analyze(ctx context.Context, source capture.Source, topN int) (Report, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}

	counts := make(map[netip.Addr]int)
	err := source.Run(ctx, func(event capture.Event) {
		addr, err := netip.ParseAddr(event.DestinationHost())
		if err != nil {
			return
		}
		addr = addr.Unmap().WithZone("")
		if IsPublic(addr) {
			counts[addr]++
		}
	})
	if err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	var report Report
	for addr, count := range counts {
		report.Top = append(report.Top, AddressCount{Address: addr, Count: count})
	}
	slices.SortFunc(report.Top, func(a, b AddressCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return a.Address.Compare(b.Address)
	})
	if len(report.Top) > topN {
		report.Top = report.Top[:topN]
	}

	report.Slash24 = aggregate(report.Top, 24)
	report.Slash16 = aggregate(report.Top, 16)
	return report, nil
}

// AnalyzeFile opens a capture log (see capture.OpenFile) and analyzes it.
func AnalyzeFile(ctx context.Context, path string, topN int) (Report, error) {
	source, err := capture.OpenFile(path)
	if err != nil {
		return Report{}, err
	}
	defer source.Close()
	return Analyze(ctx, source, topN)
}

func aggregate(top []AddressCount, bits int) []PrefixCount {
	sums := make(map[netip.Prefix]int)
	for _, entry := range top {
		prefix, err := entry.Address.Prefix(bits)
		if err != nil {
			continue
		}
		sums[prefix] += entry.Count
	}
	result := make([]PrefixCount, 0, len(sums))
	for prefix, count := range sums {
		result = append(result, PrefixCount{Prefix: prefix, Count: count})
	}
	slices.SortFunc(result, func(a, b PrefixCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return a.Prefix.Addr().Compare(b.Prefix.Addr())
	})
	return result
}

// WriteText prints the report as three tab-separated sections.
func (r Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "# Top IPs"); err != nil {
		return err
	}
	for _, entry := range r.Top {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", entry.Address, entry.Count); err != nil {
			return err
		}
	}
	sections := []struct {
		title   string
		entries []PrefixCount
	}{
		{"/24", r.Slash24},
		{"/16", r.Slash16},
	}
	for _, section := range sections {
		if _, err := fmt.Fprintf(w, "\n# %s candidates (desc)\n", section.title); err != nil {
			return err
		}
		for _, entry := range section.entries {
			if _, err := fmt.Fprintf(w, "%s\t%d\n", entry.Prefix, entry.Count); err != nil {
				return err
			}
		}
	}
	return nil
}
