// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package capture

import (
	"fmt"
	"log/slog"

	"github.com/google/gopacket/pcapgo"
)

// OpenLive binds an AF_PACKET socket to the named interface. Requires
// CAP_NET_RAW.
func OpenLive(options LiveOptions) (*LiveSource, error) {
	if options.Interface == "" {
		return nil, fmt.Errorf("live capture requires an interface name")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handle, err := pcapgo.NewEthernetHandle(options.Interface)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", options.Interface, err)
	}
	logger.Info("live capture started",
		"interface", options.Interface,
		"filter", options.Filter,
		"filter_applied", false,
	)
	return &LiveSource{handle: ethernetHandle{handle}}, nil
}

// ethernetHandle adapts EthernetHandle, whose Close has no result.
type ethernetHandle struct {
	*pcapgo.EthernetHandle
}

func (h ethernetHandle) Close() error {
	h.EthernetHandle.Close()
	return nil
}
