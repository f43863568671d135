// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture produces the flow events the agent feeds to the
// region locator.
//
// An [Event] carries only what region inference needs: source and
// destination endpoints as "host:port" strings, wire length, a
// protocol name and the observation time. Nothing downstream parses
// packets; all decoding happens here.
//
// Three [Source] implementations exist:
//
//   - [JSONLSource] replays newline-delimited JSON logs written by
//     earlier capture runs. Unparseable lines are skipped.
//   - [PcapSource] replays a pcap file, decoding IPv4/IPv6 with TCP or
//     UDP ports via gopacket layers.
//   - [LiveSource] reads an AF_PACKET socket on Linux. On other
//     platforms [OpenLive] returns [ErrLiveUnsupported].
//
// Every Run call blocks until the source is exhausted, the context is
// cancelled or a read fails. Cancellation is not an error.
package capture
