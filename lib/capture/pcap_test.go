// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func serializeFrame(t *testing.T, network gopacket.SerializableLayer, transport gopacket.SerializableLayer, etherType layers.EthernetType) []byte {
	t.Helper()
	ethernet := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: etherType,
	}
	buffer := gopacket.NewSerializeBuffer()
	options := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, options, ethernet, network, transport, gopacket.Payload([]byte("beacon"))); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buffer.Bytes()
}

func TestPcapSource(t *testing.T) {
	ipv4 := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP("192.168.0.10").To4(),
		DstIP:    net.ParseIP("52.76.10.1").To4(),
	}
	udp := &layers.UDP{SrcPort: 50000, DstPort: 5056}
	udp.SetNetworkLayerForChecksum(ipv4)
	udpFrame := serializeFrame(t, ipv4, udp, layers.EthernetTypeIPv4)

	ipv6 := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      net.ParseIP("2001:db8::10"),
		DstIP:      net.ParseIP("2001:db8::1"),
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 443, SYN: true, Window: 1024}
	tcp.SetNetworkLayerForChecksum(ipv6)
	tcpFrame := serializeFrame(t, ipv6, tcp, layers.EthernetTypeIPv6)

	arp := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(arp, gopacket.SerializeOptions{FixLengths: true},
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			EthernetType: layers.EthernetTypeARP,
		},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   []byte{0x02, 0, 0, 0, 0, 1},
			SourceProtAddress: []byte{192, 168, 0, 10},
			DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
			DstProtAddress:    []byte{192, 168, 0, 1},
		},
	); err != nil {
		t.Fatalf("serialize arp: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var file bytes.Buffer
	writer := pcapgo.NewWriter(&file)
	if err := writer.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("file header: %v", err)
	}
	for i, frame := range [][]byte{udpFrame, arp.Bytes(), tcpFrame} {
		info := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Second),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := writer.WritePacket(info, frame); err != nil {
			t.Fatalf("write packet %d: %v", i, err)
		}
	}

	source, err := NewPcapSource(&file)
	if err != nil {
		t.Fatalf("NewPcapSource: %v", err)
	}
	events := collect(t, source)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (ARP skipped): %+v", len(events), events)
	}

	if events[0].Destination != "52.76.10.1:5056" || events[0].Protocol != "udp" {
		t.Errorf("udp event = %+v", events[0])
	}
	if events[0].Length != len(udpFrame) {
		t.Errorf("udp length = %d, want %d", events[0].Length, len(udpFrame))
	}
	if !events[0].Time.Equal(base) {
		t.Errorf("udp time = %v, want %v", events[0].Time, base)
	}
	if events[1].Destination != "[2001:db8::1]:443" || events[1].Protocol != "tcp" {
		t.Errorf("tcp event = %+v", events[1])
	}
	if events[1].DestinationHost() != "2001:db8::1" {
		t.Errorf("tcp host = %q", events[1].DestinationHost())
	}
}

func TestNewPcapSourceRejectsGarbage(t *testing.T) {
	if _, err := NewPcapSource(bytes.NewReader([]byte("definitely not pcap"))); err == nil {
		t.Fatal("expected header error")
	}
}
