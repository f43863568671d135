// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// packetReader is the subset of pcapgo readers and handles that
// decodePackets needs.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// PcapSource replays a classic pcap file.
type PcapSource struct {
	reader   *pcapgo.Reader
	linkType layers.LinkType
	closer   io.Closer
}

// NewPcapSource reads a pcap stream from r. Close does not close r.
func NewPcapSource(r io.Reader) (*PcapSource, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading pcap header: %w", err)
	}
	return &PcapSource{reader: reader, linkType: reader.LinkType()}, nil
}

// OpenPcap opens a pcap file on disk.
func OpenPcap(path string) (*PcapSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pcap: %w", err)
	}
	source, err := NewPcapSource(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("pcap %s: %w", path, err)
	}
	source.closer = file
	return source, nil
}

// Run implements [Source]. Packets that carry no IP layer are skipped.
func (s *PcapSource) Run(ctx context.Context, handle func(Event)) error {
	err := decodePackets(ctx, s.reader, s.linkType, handle)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Close implements [Source].
func (s *PcapSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// decodePackets reads until the reader fails or ctx is cancelled. The
// reader's error (including io.EOF) is returned unwrapped so callers
// can distinguish end of file.
func decodePackets(ctx context.Context, reader packetReader, decoder gopacket.Decoder, handle func(Event)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		data, info, err := reader.ReadPacketData()
		if err != nil {
			return err
		}
		packet := gopacket.NewPacket(data, decoder, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		event, ok := EventFromPacket(packet)
		if !ok {
			continue
		}
		event.Time = info.Timestamp.UTC()
		if info.Length > 0 {
			event.Length = info.Length
		}
		handle(event)
	}
}

// EventFromPacket extracts endpoints from a decoded packet. The second
// result is false when the packet has no IPv4 or IPv6 layer.
func EventFromPacket(packet gopacket.Packet) (Event, bool) {
	var event Event
	switch network := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		event.Source = network.SrcIP.String()
		event.Destination = network.DstIP.String()
		event.Protocol = strings.ToLower(network.Protocol.String())
		event.Length = int(network.Length)
		return withPorts(event, packet, network.SrcIP, network.DstIP), true
	case *layers.IPv6:
		event.Source = network.SrcIP.String()
		event.Destination = network.DstIP.String()
		event.Protocol = strings.ToLower(network.NextHeader.String())
		event.Length = int(network.Length) + 40
		return withPorts(event, packet, network.SrcIP, network.DstIP), true
	default:
		return Event{}, false
	}
}

func withPorts(event Event, packet gopacket.Packet, source, destination net.IP) Event {
	switch transport := packet.TransportLayer().(type) {
	case *layers.TCP:
		event.Protocol = "tcp"
		event.Source = JoinHostPort(source, uint16(transport.SrcPort))
		event.Destination = JoinHostPort(destination, uint16(transport.DstPort))
	case *layers.UDP:
		event.Protocol = "udp"
		event.Source = JoinHostPort(source, uint16(transport.SrcPort))
		event.Destination = JoinHostPort(destination, uint16(transport.DstPort))
	}
	return event
}
