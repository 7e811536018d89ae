// Package link decodes link, network and transport headers with gopacket
// and hands each payload on through the dispatch tables.
package link

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// Dispatch table names.
const (
	LinkTypeTable  = "link.type"
	EtherTypeTable = "ethertype"
	LLCTable       = "llc.dsap"
	IPProtoTable   = "ip.proto"
	NullTable      = "null.family"
	UDPPortTable   = "udp.port"
	TCPPortTable   = "tcp.port"

	// Heuristic lists tried on transport payloads no port claims.
	UDPHeuristics = "udp"
	TCPHeuristics = "tcp"
)

// pcap link types.
const (
	LinkTypeNull     = 0
	LinkTypeEthernet = 1
	LinkTypeRaw      = 101
	LinkTypeLinuxSLL = 113
	LinkTypeDOCSIS   = 143
	LinkTypeIPv4     = 228
	LinkTypeIPv6     = 229
)

// DeclareTables declares the tables this package dispatches through, so
// that protocols can bind to them in any registration order.
func DeclareTables(b *dissector.Builder) {
	b.RegisterTable(LinkTypeTable, dissector.KeyUint32)
	b.RegisterTable(EtherTypeTable, dissector.KeyUint16)
	b.RegisterTable(LLCTable, dissector.KeyUint8)
	b.RegisterTable(IPProtoTable, dissector.KeyUint8)
	b.RegisterTable(NullTable, dissector.KeyUint32)
	b.RegisterTable(UDPPortTable, dissector.KeyUint16)
	b.RegisterTable(TCPPortTable, dissector.KeyUint16)
}

// Register adds the link, network and transport dissectors.
func Register(b *dissector.Builder) {
	DeclareTables(b)

	eth := b.RegisterProtocol("eth", "Ethernet II", dissector.HandlerFunc(dissectEthernet))
	sll := b.RegisterProtocol("sll", "Linux cooked capture", dissector.HandlerFunc(dissectSLL))
	null := b.RegisterProtocol("null", "Null/Loopback", dissector.HandlerFunc(dissectNull))
	raw := b.RegisterProtocol("raw", "Raw IP", dissector.HandlerFunc(dissectRaw))
	llc := b.RegisterProtocol("llc", "Logical-Link Control", dissector.HandlerFunc(dissectLLC))
	vlan := b.RegisterProtocol("vlan", "802.1Q Virtual LAN", dissector.HandlerFunc(dissectDot1Q))
	ip := b.RegisterProtocol("ip", "Internet Protocol Version 4", dissector.HandlerFunc(dissectIPv4))
	ipv6 := b.RegisterProtocol("ipv6", "Internet Protocol Version 6", dissector.HandlerFunc(dissectIPv6))
	udp := b.RegisterProtocol("udp", "User Datagram Protocol", dissector.HandlerFunc(dissectUDP))
	tcp := b.RegisterProtocol("tcp", "Transmission Control Protocol", dissector.HandlerFunc(dissectTCP))

	b.AddUint(LinkTypeTable, LinkTypeEthernet, eth)
	b.AddUint(LinkTypeTable, LinkTypeNull, null)
	b.AddUint(LinkTypeTable, LinkTypeRaw, raw)
	b.AddUint(LinkTypeTable, LinkTypeLinuxSLL, sll)
	b.AddUint(LinkTypeTable, LinkTypeIPv4, ip)
	b.AddUint(LinkTypeTable, LinkTypeIPv6, ipv6)

	b.AddUint(EtherTypeTable, uint64(layers.EthernetTypeIPv4), ip)
	b.AddUint(EtherTypeTable, uint64(layers.EthernetTypeIPv6), ipv6)
	b.AddUint(EtherTypeTable, uint64(layers.EthernetTypeDot1Q), vlan)
	b.AddUint(EtherTypeTable, uint64(layers.EthernetTypeLLC), llc)

	b.AddUint(NullTable, uint64(layers.ProtocolFamilyIPv4), ip)
	for _, fam := range []layers.ProtocolFamily{
		layers.ProtocolFamilyIPv6BSD,
		layers.ProtocolFamilyIPv6FreeBSD,
		layers.ProtocolFamilyIPv6Darwin,
		layers.ProtocolFamilyIPv6Linux,
	} {
		b.AddUint(NullTable, uint64(fam), ipv6)
	}

	b.AddUint(IPProtoTable, uint64(layers.IPProtocolUDP), udp)
	b.AddUint(IPProtoTable, uint64(layers.IPProtocolTCP), tcp)
}

// decode runs a gopacket decoding layer over the rest of cur. On failure
// the error is reported at the start of the layer.
func decode(cur *cursor.Cursor, l gopacket.DecodingLayer) error {
	if err := l.DecodeFromBytes(cur.Rest(), gopacket.NilDecodeFeedback); err != nil {
		return errors.Malformedf(cur.Offset(), "%v", err)
	}
	return nil
}

// header is a helper for adding fields at offsets relative to the start
// of a decoded layer.
type header struct {
	tree *field.Tree
	base int
}

func (h header) add(label string, at, n int, v any, display string) {
	kind := field.KindUint
	switch v.(type) {
	case string:
		kind = field.KindString
	case bool:
		kind = field.KindBool
	case []byte:
		kind = field.KindBytes
	}
	h.tree.Add(field.Field{
		Label:   label,
		Kind:    kind,
		Range:   field.Range{Start: h.base + at, Length: n},
		Value:   v,
		Display: display,
	})
}

func (h header) uint(label string, at, n int, v uint64) {
	h.add(label, at, n, v, fmt.Sprintf("%d", v))
}

func (h header) hex(label string, at, n int, v uint64) {
	h.add(label, at, n, v, fmt.Sprintf("0x%0*x", n*2, v))
}

func (h header) addr(label string, at int, a []byte) {
	var s string
	switch len(a) {
	case 4, 16:
		s = net.IP(a).String()
	default:
		s = net.HardwareAddr(a).String()
	}
	h.add(label, at, len(a), s, s)
}

func etherTypeName(reg *dissector.Registry, t layers.EthernetType) string {
	if p, ok := reg.LookupUint(EtherTypeTable, uint64(t)); ok {
		return fmt.Sprintf("%s (0x%04x)", p.Title, uint16(t))
	}
	return fmt.Sprintf("%s (0x%04x)", t, uint16(t))
}

// handOff dispatches the next n bytes of cur through table, then shows
// anything after them (Ethernet padding, for example) as a trailer.
func handOff(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree, table string, key uint64, n int) {
	if n > cur.Remaining() {
		tree.Diagnose(&errors.TruncatedError{Offset: cur.Offset(), Needed: n, Available: cur.Remaining()}, cur.Offset())
		n = cur.Remaining()
	}
	payload, _ := cur.Sub(n)
	dc.DispatchUint(table, key, payload, tree)
	_ = cur.Advance(n)
	if cur.Remaining() > 0 {
		start := cur.Offset()
		rest := cur.Rest()
		_ = cur.Advance(len(rest))
		tree.Add(field.Field{
			Label:   "Trailer",
			Kind:    field.KindBytes,
			Range:   field.Range{Start: start, Length: len(rest)},
			Value:   rest,
			Display: fmt.Sprintf("%x", rest),
		})
	}
}

func dissectEthernet(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var eth layers.Ethernet
	if err := decode(cur, &eth); err != nil {
		return err
	}
	h := header{tree: tree, base: cur.Offset()}
	h.addr("Destination", 0, eth.DstMAC)
	h.addr("Source", 6, eth.SrcMAC)
	if eth.EthernetType == layers.EthernetTypeLLC {
		h.uint("Length", 12, 2, uint64(eth.Length))
	} else {
		h.add("Type", 12, 2, uint64(eth.EthernetType), etherTypeName(dc.Registry, eth.EthernetType))
	}
	_ = cur.Advance(len(eth.Contents))
	dc.SetInfo("%s -> %s", eth.SrcMAC, eth.DstMAC)
	handOff(dc, cur, tree, EtherTypeTable, uint64(eth.EthernetType), len(eth.Payload))
	return nil
}

func dissectSLL(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var sll layers.LinuxSLL
	if err := decode(cur, &sll); err != nil {
		return err
	}
	h := header{tree: tree, base: cur.Offset()}
	h.add("Packet type", 0, 2, uint64(sll.PacketType), fmt.Sprintf("%s (%d)", sll.PacketType, uint16(sll.PacketType)))
	h.uint("Link-layer address type", 2, 2, uint64(sll.AddrType))
	h.uint("Link-layer address length", 4, 2, uint64(sll.AddrLen))
	if n := int(sll.AddrLen); n > 0 && n <= 8 {
		h.addr("Source", 6, sll.Addr)
	}
	h.add("Protocol", 14, 2, uint64(sll.EthernetType), etherTypeName(dc.Registry, sll.EthernetType))
	_ = cur.Advance(len(sll.Contents))
	handOff(dc, cur, tree, EtherTypeTable, uint64(sll.EthernetType), len(sll.Payload))
	return nil
}

func dissectNull(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var lo layers.Loopback
	if err := decode(cur, &lo); err != nil {
		return err
	}
	h := header{tree: tree, base: cur.Offset()}
	h.add("Family", 0, 4, uint64(lo.Family), fmt.Sprintf("%s (%d)", lo.Family, uint8(lo.Family)))
	_ = cur.Advance(len(lo.Contents))
	handOff(dc, cur, tree, NullTable, uint64(lo.Family), len(lo.Payload))
	return nil
}

// dissectRaw picks IPv4 or IPv6 from the version nibble.
func dissectRaw(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	v, err := cur.Bits(cur.Offset(), 0xF0)
	if err != nil {
		return err
	}
	name := "ip"
	switch v >> 4 {
	case 4:
	case 6:
		name = "ipv6"
	default:
		return errors.Malformedf(cur.Offset(), "raw IP: bad version %d", v>>4)
	}
	p, ok := dc.Registry.FindProtocol(name)
	if !ok {
		dc.CallData(cur, tree)
		return nil
	}
	dc.Call(p, cur, tree)
	return nil
}

func dissectLLC(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var llc layers.LLC
	if err := decode(cur, &llc); err != nil {
		return err
	}
	h := header{tree: tree, base: cur.Offset()}
	h.hex("DSAP", 0, 1, uint64(llc.DSAP))
	h.add("IG Bit", 0, 1, llc.IG, groupOrIndividual(llc.IG))
	h.hex("SSAP", 1, 1, uint64(llc.SSAP))
	h.add("CR Bit", 1, 1, llc.CR, commandOrResponse(llc.CR))
	h.hex("Control field", 2, len(llc.Contents)-2, uint64(llc.Control))
	_ = cur.Advance(len(llc.Contents))

	if llc.DSAP == 0xAA && llc.SSAP == 0xAA {
		var snap layers.SNAP
		if err := decode(cur, &snap); err != nil {
			return err
		}
		sh := header{tree: tree, base: cur.Offset()}
		sh.add("Organization Code", 0, 3, snap.OrganizationalCode, fmt.Sprintf("%x", snap.OrganizationalCode))
		sh.add("Type", 3, 2, uint64(snap.Type), etherTypeName(dc.Registry, snap.Type))
		_ = cur.Advance(len(snap.Contents))
		handOff(dc, cur, tree, EtherTypeTable, uint64(snap.Type), cur.Remaining())
		return nil
	}
	handOff(dc, cur, tree, LLCTable, uint64(llc.DSAP), cur.Remaining())
	return nil
}

func groupOrIndividual(ig bool) string {
	if ig {
		return "Group"
	}
	return "Individual"
}

func commandOrResponse(cr bool) string {
	if cr {
		return "Response"
	}
	return "Command"
}

func dissectDot1Q(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	var q layers.Dot1Q
	if err := decode(cur, &q); err != nil {
		return err
	}
	h := header{tree: tree, base: cur.Offset()}
	h.uint("Priority", 0, 1, uint64(q.Priority))
	h.add("DEI", 0, 1, q.DropEligible, fmt.Sprintf("%t", q.DropEligible))
	h.uint("ID", 0, 2, uint64(q.VLANIdentifier))
	h.add("Type", 2, 2, uint64(q.Type), etherTypeName(dc.Registry, q.Type))
	_ = cur.Advance(len(q.Contents))
	dc.AppendInfo("VLAN %d", q.VLANIdentifier)
	handOff(dc, cur, tree, EtherTypeTable, uint64(q.Type), len(q.Payload))
	return nil
}
