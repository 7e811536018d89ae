// Package prototest builds capture frames for dissector tests.
package prototest

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	SrcMAC = net.HardwareAddr{0x00, 0x1b, 0x21, 0x0a, 0x0b, 0x0c}
	DstMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	SrcIP  = net.IP{192, 168, 1, 10}
	DstIP  = net.IP{192, 168, 1, 255}
)

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("serialize frame: %v", err)
	}
	return buf.Bytes()
}

// EthernetUDP returns an Ethernet/IPv4/UDP frame carrying payload.
func EthernetUDP(t testing.TB, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: SrcMAC, DstMAC: DstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: SrcIP, DstIP: DstIP}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("udp checksum: %v", err)
	}
	return serialize(t, eth, ip, udp, gopacket.Payload(payload))
}

// EthernetTCP returns an Ethernet/IPv4/TCP segment carrying payload.
func EthernetTCP(t testing.TB, srcPort, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: SrcMAC, DstMAC: DstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: SrcIP, DstIP: DstIP}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), Seq: 1000, Ack: 1, ACK: true, PSH: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("tcp checksum: %v", err)
	}
	return serialize(t, eth, ip, tcp, gopacket.Payload(payload))
}

// EthernetType returns an Ethernet II frame of the given type.
func EthernetType(t testing.TB, ethType uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: SrcMAC, DstMAC: DstMAC, EthernetType: layers.EthernetType(ethType)}
	return serialize(t, eth, gopacket.Payload(payload))
}

// EthernetLLC returns an 802.3 frame with an LLC header for the given SAP.
func EthernetLLC(t testing.TB, sap uint8, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: SrcMAC, DstMAC: DstMAC, EthernetType: layers.EthernetTypeLLC}
	pdu := append([]byte{sap, sap, 0x03}, payload...)
	return serialize(t, eth, gopacket.Payload(pdu))
}
