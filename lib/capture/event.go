// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Event is one observed flow record.
type Event struct {
	// Source is the sender endpoint, "host:port" or a bare host.
	Source string `json:"src,omitempty"`

	// Destination is the receiver endpoint, "host:port", "[v6]:port"
	// or a bare host.
	Destination string `json:"dst,omitempty"`

	// Length is the captured wire length in bytes. Zero when unknown.
	Length int `json:"len,omitempty"`

	// Protocol is a lowercase transport name ("tcp", "udp") or empty.
	Protocol string `json:"proto,omitempty"`

	// Time is when the packet was observed. Zero when the source
	// carries no timestamps.
	Time time.Time `json:"-"`
}

// DestinationHost returns the host portion of the destination.
func (e Event) DestinationHost() string {
	return HostOf(e.Destination)
}

// Source yields events until exhausted or cancelled.
type Source interface {
	// Run calls handle for every event in order. It returns nil when
	// the source is exhausted or ctx is cancelled.
	Run(ctx context.Context, handle func(Event)) error

	// Close releases the underlying file or socket.
	Close() error
}

// HostOf strips a port from an endpoint string. It accepts bare IPv4
// and IPv6 addresses, "host:port" and "[v6]:port". For anything else
// it returns the text before the first colon, which for garbage input
// is garbage that later address parsing rejects.
func HostOf(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if _, err := netip.ParseAddr(endpoint); err == nil {
		return endpoint
	}
	if host, _, err := net.SplitHostPort(endpoint); err == nil {
		return host
	}
	host, _, _ := strings.Cut(endpoint, ":")
	return host
}

// JoinHostPort renders an endpoint the way sources report it: a bare
// host when port is zero, otherwise host:port with IPv6 bracketed.
func JoinHostPort(host net.IP, port uint16) string {
	if port == 0 {
		return host.String()
	}
	return net.JoinHostPort(host.String(), strconv.Itoa(int(port)))
}
