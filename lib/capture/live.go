// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/gopacket/layers"
)

// ErrLiveUnsupported is returned by OpenLive on platforms without
// AF_PACKET sockets.
var ErrLiveUnsupported = errors.New("live capture is only supported on linux")

// LiveOptions configures a live capture.
type LiveOptions struct {
	// Interface is the OS interface name to bind to.
	Interface string

	// Filter is a BPF expression from settings. It is recorded in the
	// log line at open time and not compiled; all packets on the
	// interface are decoded.
	Filter string

	Logger *slog.Logger
}

type liveHandle interface {
	packetReader
	io.Closer
}

// LiveSource reads Ethernet frames from a bound interface.
type LiveSource struct {
	handle    liveHandle
	closeOnce sync.Once
	closeErr  error
}

// Run implements [Source]. Cancelling ctx closes the handle so a
// blocked read returns; the reader goroutine may outlive Run until the
// kernel delivers the next frame.
func (s *LiveSource) Run(ctx context.Context, handle func(Event)) error {
	events := make(chan Event, 64)
	done := make(chan error, 1)
	go func() {
		done <- decodePackets(ctx, s.handle, layers.LinkTypeEthernet, func(event Event) {
			select {
			case events <- event:
			case <-ctx.Done():
			}
		})
	}()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return nil
		case event := <-events:
			handle(event)
		case err := <-done:
			// Drain anything decoded before the read failed.
			for {
				select {
				case event := <-events:
					handle(event)
					continue
				default:
				}
				break
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Close implements [Source]. It is safe to call more than once.
func (s *LiveSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.handle.Close()
	})
	return s.closeErr
}
