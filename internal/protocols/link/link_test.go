package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/field"
	"github.com/tonylturner/tlvscope/internal/protocols/prototest"
)

// marker claims the whole payload under label so tests can see who got it.
func marker(label string) dissector.HandlerFunc {
	return func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		start := cur.Offset()
		b, err := cur.Bytes(cur.Remaining())
		if err != nil {
			return err
		}
		tree.Add(field.Field{Label: label, Kind: field.KindBytes, Range: field.Range{Start: start, Length: len(b)}, Value: b})
		return nil
	}
}

func buildRegistry(t *testing.T, extra func(b *dissector.Builder)) *dissector.Registry {
	t.Helper()
	b := dissector.NewBuilder()
	Register(b)
	if extra != nil {
		extra(b)
	}
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func dissect(reg *dissector.Registry, linkType uint32, data []byte) (*field.Tree, *dissector.Context) {
	dc := dissector.NewContext(reg, dissector.Frame{Number: 1, LinkType: linkType, Data: data}, dissector.Limits{})
	root := field.NewTree("frame", "Frame", field.Range{Start: 0, Length: len(data)})
	dc.DispatchUint(LinkTypeTable, uint64(linkType), cursor.New(data), root)
	root.Freeze()
	return root, dc
}

func protocols(tree *field.Tree) []string {
	var out []string
	tree.Walk(func(_ int, f field.Field) bool {
		if f.Tree != nil && f.Tree.Protocol != "" {
			out = append(out, f.Tree.Protocol)
		}
		return true
	})
	return out
}

func TestUDPPayloadDispatchedByPort(t *testing.T) {
	reg := buildRegistry(t, func(b *dissector.Builder) {
		b.AddUint(UDPPortTable, 47808, b.RegisterProtocol("bvlc", "BVLC", marker("Payload")))
	})
	payload := []byte{0x81, 0x0a, 0x00, 0x04}
	frame := prototest.EthernetUDP(t, 47808, 47808, payload)

	root, dc := dissect(reg, LinkTypeEthernet, frame)
	assert.Equal(t, []string{"eth", "ip", "udp", "bvlc"}, protocols(root))
	assert.Equal(t, "BVLC", dc.Protocol())

	got, ok := root.Find("Payload")
	require.True(t, ok)
	assert.Equal(t, payload, got.Value)
	assert.Equal(t, field.Range{Start: 42, Length: 4}, got.Range, "offsets are absolute within the frame")

	trailer, ok := root.Find("Trailer")
	require.True(t, ok, "short frames carry Ethernet padding")
	assert.Equal(t, 60, trailer.Range.End())
	assert.Empty(t, root.Experts())
}

func TestLowerPortTriedFirst(t *testing.T) {
	reg := buildRegistry(t, func(b *dissector.Builder) {
		b.AddUint(UDPPortTable, 3333, b.RegisterProtocol("low", "Low", marker("Low")))
		b.AddUint(UDPPortTable, 50000, b.RegisterProtocol("high", "High", marker("High")))
	})
	root, _ := dissect(reg, LinkTypeEthernet, prototest.EthernetUDP(t, 50000, 3333, []byte{1}))
	_, ok := root.Find("Low")
	assert.True(t, ok)
	_, ok = root.Find("High")
	assert.False(t, ok)
}

func TestHeuristicsThenData(t *testing.T) {
	reg := buildRegistry(t, func(b *dissector.Builder) {
		p := b.RegisterProtocol("magic", "Magic", marker("Magic"))
		b.AddHeuristic(TCPHeuristics, p, func(cur *cursor.Cursor) bool {
			v, err := cur.U8()
			return err == nil && v == 0xAB
		})
	})
	root, _ := dissect(reg, LinkTypeEthernet, prototest.EthernetTCP(t, 40000, 40001, []byte{0xAB, 0x01}))
	assert.Contains(t, protocols(root), "magic")

	root, dc := dissect(reg, LinkTypeEthernet, prototest.EthernetTCP(t, 40000, 40001, []byte{0x00, 0x01}))
	assert.Equal(t, []string{"eth", "ip", "tcp", dissector.DataProtocol}, protocols(root))
	assert.Equal(t, "TCP", dc.Protocol())
	assert.Contains(t, dc.Info(), "40000 -> 40001")
	assert.Equal(t, dissector.Ports{Src: 40000, Dst: 40001, Set: true}, dc.Ports())
}

func TestLLCDispatchBySAP(t *testing.T) {
	reg := buildRegistry(t, func(b *dissector.Builder) {
		b.AddUint(LLCTable, 0x42, b.RegisterProtocol("stp", "STP", marker("BPDU")))
	})
	root, _ := dissect(reg, LinkTypeEthernet, prototest.EthernetLLC(t, 0x42, []byte{0x00, 0x01, 0x02}))
	assert.Equal(t, []string{"eth", "llc", "stp"}, protocols(root))
	dsap, ok := root.Find("DSAP")
	require.True(t, ok)
	assert.Equal(t, "0x42", dsap.Display)
}

func TestEtherTypeDispatch(t *testing.T) {
	reg := buildRegistry(t, func(b *dissector.Builder) {
		b.AddUint(EtherTypeTable, 0x88cc, b.RegisterProtocol("lldp", "LLDP", marker("LLDPDU")))
	})
	root, _ := dissect(reg, LinkTypeEthernet, prototest.EthernetType(t, 0x88cc, []byte{0x02, 0x07}))
	typ, ok := root.Find("Type")
	require.True(t, ok)
	assert.Equal(t, "LLDP (0x88cc)", typ.Display)
	assert.Contains(t, protocols(root), "lldp")
}

func TestTruncatedHeadersBecomeDiagnostics(t *testing.T) {
	reg := buildRegistry(t, nil)
	frame := prototest.EthernetUDP(t, 1, 2, []byte{1, 2, 3})

	for _, n := range []int{6, 20, 30, 40} {
		root, _ := dissect(reg, LinkTypeEthernet, frame[:n])
		assert.NotEmpty(t, root.Experts(), "cut at %d", n)
		assert.False(t, root.HasReason(field.ReasonRangeViolation), "cut at %d", n)
	}
}

func TestRawAndNullLinkTypes(t *testing.T) {
	reg := buildRegistry(t, nil)
	frame := prototest.EthernetUDP(t, 5000, 5001, []byte{9, 9})
	ipPacket := frame[14:]

	root, _ := dissect(reg, LinkTypeRaw, ipPacket)
	assert.Equal(t, []string{"raw", "ip", "udp", dissector.DataProtocol}, protocols(root)[:4])

	root, _ = dissect(reg, LinkTypeIPv4, ipPacket)
	assert.Equal(t, "ip", protocols(root)[0])

	null := append([]byte{0x02, 0x00, 0x00, 0x00}, ipPacket...)
	root, _ = dissect(reg, LinkTypeNull, null)
	assert.Equal(t, []string{"null", "ip", "udp"}, protocols(root)[:3])

	root, _ = dissect(reg, LinkTypeRaw, []byte{0x50, 0x00})
	assert.True(t, root.HasReason(field.ReasonMalformed))
}
