package link

import (
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"

	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

func ipProtoName(reg *dissector.Registry, p layers.IPProtocol) string {
	if proto, ok := reg.LookupUint(IPProtoTable, uint64(p)); ok {
		return fmt.Sprintf("%s (%d)", strings.ToUpper(proto.Name), uint8(p))
	}
	return fmt.Sprintf("%s (%d)", p, uint8(p))
}

func dissectIPv4(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var ip layers.IPv4
	if err := decode(cur, &ip); err != nil {
		return err
	}
	h := header{tree: tree, base: cur.Offset()}
	h.uint("Version", 0, 1, uint64(ip.Version))
	h.add("Header Length", 0, 1, uint64(ip.IHL), fmt.Sprintf("%d bytes (%d)", int(ip.IHL)*4, ip.IHL))
	h.hex("Differentiated Services Field", 1, 1, uint64(ip.TOS))
	h.uint("Total Length", 2, 2, uint64(ip.Length))
	h.hex("Identification", 4, 2, uint64(ip.Id))
	h.add("Flags", 6, 1, uint64(ip.Flags), fmt.Sprintf("0x%x (%s)", uint8(ip.Flags), ip.Flags))
	h.uint("Fragment Offset", 6, 2, uint64(ip.FragOffset))
	h.uint("Time to Live", 8, 1, uint64(ip.TTL))
	h.add("Protocol", 9, 1, uint64(ip.Protocol), ipProtoName(dc.Registry, ip.Protocol))
	h.hex("Header Checksum", 10, 2, uint64(ip.Checksum))
	h.addr("Source Address", 12, ip.SrcIP.To4())
	h.addr("Destination Address", 16, ip.DstIP.To4())
	if opts := len(ip.Contents) - 20; opts > 0 {
		h.add("Options", 20, opts, ip.Contents[20:], fmt.Sprintf("%d bytes", opts))
	}
	dc.SetInfo("%s -> %s", ip.SrcIP, ip.DstIP)
	_ = cur.Advance(len(ip.Contents))

	if int(ip.Length) > len(ip.Contents)+cur.Remaining() {
		tree.Diagnose(&errors.TruncatedError{
			Offset:    cur.Offset(),
			Needed:    int(ip.Length) - len(ip.Contents),
			Available: cur.Remaining(),
		}, cur.Offset())
	}
	if ip.FragOffset != 0 || ip.Flags&layers.IPv4MoreFragments != 0 {
		// Fragments are not reassembled; show them undecoded.
		tree.Note(field.ReasonMalformed, cur.Offset(), "fragment (offset %d), payload not reassembled", int(ip.FragOffset)*8)
		handOff(dc, cur, tree, "", 0, len(ip.Payload))
		return nil
	}
	handOff(dc, cur, tree, IPProtoTable, uint64(ip.Protocol), len(ip.Payload))
	return nil
}

func dissectIPv6(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var ip layers.IPv6
	if err := decode(cur, &ip); err != nil {
		return err
	}
	h := header{tree: tree, base: cur.Offset()}
	h.uint("Version", 0, 1, uint64(ip.Version))
	h.hex("Traffic Class", 0, 2, uint64(ip.TrafficClass))
	h.hex("Flow Label", 1, 3, uint64(ip.FlowLabel))
	h.uint("Payload Length", 4, 2, uint64(ip.Length))
	h.add("Next Header", 6, 1, uint64(ip.NextHeader), ipProtoName(dc.Registry, ip.NextHeader))
	h.uint("Hop Limit", 7, 1, uint64(ip.HopLimit))
	h.addr("Source Address", 8, ip.SrcIP.To16())
	h.addr("Destination Address", 24, ip.DstIP.To16())
	dc.SetInfo("%s -> %s", ip.SrcIP, ip.DstIP)
	_ = cur.Advance(len(ip.Contents))
	handOff(dc, cur, tree, IPProtoTable, uint64(ip.NextHeader), len(ip.Payload))
	return nil
}

// dispatchPorts hands a transport payload to the protocol bound to the
// lower port, then the higher one, then the heuristic list, then data.
func dispatchPorts(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree, table, heuristics string, src, dst uint16) {
	if cur.Remaining() == 0 {
		return
	}
	lo, hi := src, dst
	if hi < lo {
		lo, hi = hi, lo
	}
	if _, ok := dc.TryUint(table, uint64(lo), cur, tree); ok {
		return
	}
	if hi != lo {
		if _, ok := dc.TryUint(table, uint64(hi), cur, tree); ok {
			return
		}
	}
	if _, ok := dc.TryHeuristics(heuristics, cur, tree); ok {
		return
	}
	dc.CallData(cur, tree)
}

func dissectUDP(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var udp layers.UDP
	if err := decode(cur, &udp); err != nil {
		return err
	}
	h := header{tree: tree, base: cur.Offset()}
	h.uint("Source Port", 0, 2, uint64(udp.SrcPort))
	h.uint("Destination Port", 2, 2, uint64(udp.DstPort))
	h.uint("Length", 4, 2, uint64(udp.Length))
	h.hex("Checksum", 6, 2, uint64(udp.Checksum))
	dc.SetInfo("%d -> %d Len=%d", udp.SrcPort, udp.DstPort, len(udp.Payload))
	dc.SetPorts(uint16(udp.SrcPort), uint16(udp.DstPort))
	_ = cur.Advance(len(udp.Contents))

	payload, _ := cur.Sub(len(udp.Payload))
	dispatchPorts(dc, payload, tree, UDPPortTable, UDPHeuristics, uint16(udp.SrcPort), uint16(udp.DstPort))
	_ = cur.Advance(len(udp.Payload))
	return nil
}

func tcpFlags(t *layers.TCP) string {
	var names []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{t.NS, "NS"}, {t.CWR, "CWR"}, {t.ECE, "ECE"}, {t.URG, "URG"},
		{t.ACK, "ACK"}, {t.PSH, "PSH"}, {t.RST, "RST"}, {t.SYN, "SYN"}, {t.FIN, "FIN"},
	} {
		if f.set {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

// dissectTCP decodes one segment. Streams are not reassembled, so each
// segment's payload is dispatched on its own.
func dissectTCP(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var tcp layers.TCP
	if err := decode(cur, &tcp); err != nil {
		return err
	}
	h := header{tree: tree, base: cur.Offset()}
	h.uint("Source Port", 0, 2, uint64(tcp.SrcPort))
	h.uint("Destination Port", 2, 2, uint64(tcp.DstPort))
	h.uint("Sequence Number", 4, 4, uint64(tcp.Seq))
	h.uint("Acknowledgment Number", 8, 4, uint64(tcp.Ack))
	h.add("Header Length", 12, 1, uint64(tcp.DataOffset), fmt.Sprintf("%d bytes (%d)", int(tcp.DataOffset)*4, tcp.DataOffset))
	flags := tcpFlags(&tcp)
	h.add("Flags", 12, 2, flags, flags)
	h.uint("Window", 14, 2, uint64(tcp.Window))
	h.hex("Checksum", 16, 2, uint64(tcp.Checksum))
	h.uint("Urgent Pointer", 18, 2, uint64(tcp.Urgent))
	if opts := len(tcp.Contents) - 20; opts > 0 {
		h.add("Options", 20, opts, tcp.Contents[20:], fmt.Sprintf("%d bytes", opts))
	}
	dc.SetInfo("%d -> %d [%s] Seq=%d Len=%d", tcp.SrcPort, tcp.DstPort, flags, tcp.Seq, len(tcp.Payload))
	dc.SetPorts(uint16(tcp.SrcPort), uint16(tcp.DstPort))
	_ = cur.Advance(len(tcp.Contents))
	dispatchPorts(dc, cur, tree, TCPPortTable, TCPHeuristics, uint16(tcp.SrcPort), uint16(tcp.DstPort))
	return nil
}
