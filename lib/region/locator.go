// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package region

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dalyn98/Albion-Beacon-Ver3/lib/capture"
)

// DefaultCacheSize is the number of destination hosts a Locator
// remembers. Game traffic concentrates on a handful of servers, so a
// small cache absorbs nearly every lookup.
const DefaultCacheSize = 1024

// Position is a normalized map position. Both axes are in [0, 1].
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LocationHint is the per-event output of a Locator. Region is empty
// when no prefix matched. Position is always nil: no decoder in this
// repository extracts coordinates from traffic.
type LocationHint struct {
	Region   string
	Position *Position
}

type cachedGuess struct {
	label string
	ok    bool
}

// Locator infers location hints from capture events. It is safe for
// concurrent use.
type Locator struct {
	table *Table
	cache *lru.Cache[string, cachedGuess]
}

// NewLocator wraps table with an LRU cache of cacheSize hosts. A
// non-positive cacheSize selects DefaultCacheSize.
func NewLocator(table *Table, cacheSize int) (*Locator, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, cachedGuess](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating locator cache: %w", err)
	}
	return &Locator{table: table, cache: cache}, nil
}

// Table returns the table the locator reads.
func (l *Locator) Table() *Table {
	return l.table
}

// Infer returns the region hint for event's destination. Ports and
// IPv6 brackets are stripped before lookup. Missing or malformed
// destinations yield an empty hint.
func (l *Locator) Infer(event capture.Event) LocationHint {
	host := event.DestinationHost()
	if host == "" {
		return LocationHint{}
	}
	label, _ := l.Lookup(host)
	return LocationHint{Region: label}
}

// Lookup is GuessRegion through the cache.
func (l *Locator) Lookup(host string) (string, bool) {
	if cached, ok := l.cache.Get(host); ok {
		return cached.label, cached.ok
	}
	label, ok := l.table.GuessRegion(host)
	l.cache.Add(host, cachedGuess{label: label, ok: ok})
	return label, ok
}
