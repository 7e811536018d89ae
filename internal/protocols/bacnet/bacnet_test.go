package bacnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/field"
	"github.com/tonylturner/tlvscope/internal/protocols/link"
	"github.com/tonylturner/tlvscope/internal/protocols/prototest"
)

func bvll(fn byte, body ...byte) []byte {
	return append(codec.AppendUint16([]byte{0x81, fn}, uint16(len(body)+4)), body...)
}

// whoIs is a global broadcast Who-Is.
var whoIs = []byte{0x01, 0x20, 0xff, 0xff, 0x00, 0xff, 0x10, 0x08}

func registry(t *testing.T, extra func(b *dissector.Builder)) *dissector.Registry {
	t.Helper()
	b := dissector.NewBuilder()
	link.Register(b)
	Register(b)
	if extra != nil {
		extra(b)
	}
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func dissectFrame(reg *dissector.Registry, frame []byte) (*field.Tree, *dissector.Context) {
	dc := dissector.NewContext(reg, dissector.Frame{Data: frame}, dissector.Limits{})
	root := field.NewTree("frame", "Frame", field.Range{Start: 0, Length: len(frame)})
	dc.DispatchUint(link.LinkTypeTable, link.LinkTypeEthernet, cursor.New(frame), root)
	root.Freeze()
	return root, dc
}

func display(t *testing.T, tree *field.Tree, label string) string {
	t.Helper()
	var (
		out   string
		found bool
	)
	tree.Walk(func(_ int, f field.Field) bool {
		if !found && f.Label == label && f.Kind != field.KindTree {
			out, found = f.Display, true
		}
		return !found
	})
	require.True(t, found, "field %q", label)
	return out
}

func protocols(tree *field.Tree) []string {
	var out []string
	tree.Walk(func(_ int, f field.Field) bool {
		if f.Kind == field.KindTree && f.Tree.Protocol != "" {
			out = append(out, f.Tree.Protocol)
		}
		return true
	})
	return out
}

func TestOriginalBroadcastWhoIs(t *testing.T) {
	reg := registry(t, nil)
	root, dc := dissectFrame(reg, prototest.EthernetUDP(t, Port, Port, bvll(FuncOriginalBroadcastNPDU, whoIs...)))

	assert.Empty(t, root.Experts())
	assert.Equal(t, "BACNET", dc.Protocol())
	assert.Equal(t, "Original-Broadcast-NPDU, Unconfirmed-REQ", dc.Info())
	assert.Equal(t, "Original-Broadcast-NPDU (0x0b)", display(t, root, "Function"))
	assert.Equal(t, "broadcast", display(t, root, "DADR"))
	assert.Equal(t, "255", display(t, root, "Hop Count"))
	assert.Contains(t, display(t, root, "Destination specifier"), "Set")
	assert.Contains(t, display(t, root, "Source specifier"), "Not set")
	assert.Equal(t, []string{"eth", "ip", "udp", "bvlc", "bacnet", "data"}, protocols(root))
}

func TestAPDUTableBinding(t *testing.T) {
	var called int
	reg := registry(t, func(b *dissector.Builder) {
		p := b.RegisterProtocol("bacapp", "BACnet APDU", dissector.HandlerFunc(func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
			called++
			f, err := codec.DecodeFixedBytes(cur, cur.Remaining(), "APDU")
			return codec.Add(tree, f, err)
		}))
		b.AddUint(APDUTable, 1, p)
	})
	root, dc := dissectFrame(reg, prototest.EthernetUDP(t, Port, Port, bvll(FuncOriginalUnicastNPDU, whoIs...)))

	assert.Equal(t, 1, called)
	assert.Empty(t, root.Experts())
	assert.Equal(t, "BACAPP", dc.Protocol())
}

func TestFunctionTableTakesPrecedence(t *testing.T) {
	reg := registry(t, func(b *dissector.Builder) {
		p := b.RegisterProtocol("bvlc_ext", "BVLC extension", dissector.HandlerFunc(func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
			return cur.Advance(cur.Remaining())
		}))
		b.AddUint(FunctionTable, FuncOriginalUnicastNPDU, p)
	})
	root, _ := dissectFrame(reg, prototest.EthernetUDP(t, Port, Port, bvll(FuncOriginalUnicastNPDU, whoIs...)))

	assert.Contains(t, protocols(root), "bvlc_ext")
	assert.NotContains(t, protocols(root), "bacnet")
}

func TestForwardedRouterAnnouncement(t *testing.T) {
	reg := registry(t, nil)
	body := []byte{192, 168, 1, 5, 0xba, 0xc0}
	body = append(body, 0x01, 0x80, 0x01, 0x00, 0x05, 0x00, 0x06)
	root, dc := dissectFrame(reg, prototest.EthernetUDP(t, Port, Port, bvll(FuncForwardedNPDU, body...)))

	assert.Empty(t, root.Experts())
	assert.Equal(t, "Forwarded-NPDU, I-Am-Router-To-Network", dc.Info())
	assert.Equal(t, "192.168.1.5", display(t, root, "IP"))
	assert.Equal(t, "47808", display(t, root, "Port"))
	assert.Equal(t, "5", display(t, root, "DNET 0"))
	assert.Equal(t, "6", display(t, root, "DNET 1"))
}

func TestReadBDTAck(t *testing.T) {
	reg := registry(t, nil)
	entry := []byte{10, 0, 0, 1, 0xba, 0xc0, 255, 255, 255, 0}

	t.Run("entries", func(t *testing.T) {
		body := append(append([]byte{}, entry...), entry...)
		root, _ := dissectFrame(reg, prototest.EthernetUDP(t, Port, Port, bvll(FuncReadBDTAck, body...)))
		assert.Empty(t, root.Experts())
		_, ok := root.Find("BDT Entry 1")
		assert.True(t, ok)
		assert.Equal(t, "255.255.255.0", display(t, root, "Mask"))
	})
	t.Run("partial entry", func(t *testing.T) {
		body := append(append([]byte{}, entry...), entry[:4]...)
		root, _ := dissectFrame(reg, prototest.EthernetUDP(t, Port, Port, bvll(FuncReadBDTAck, body...)))
		experts := root.Experts()
		require.Len(t, experts, 1)
		assert.Equal(t, field.ReasonLengthMismatch, experts[0].Reason)
		_, ok := root.Find("Undecoded")
		assert.True(t, ok)
	})
}

func TestBVLCLengthLies(t *testing.T) {
	reg := registry(t, nil)

	t.Run("too long", func(t *testing.T) {
		payload := bvll(FuncOriginalUnicastNPDU, whoIs...)
		payload[3] = 0x40
		root, dc := dissectFrame(reg, prototest.EthernetUDP(t, Port, Port, payload))
		assert.True(t, root.HasReason(field.ReasonLengthMismatch))
		assert.Contains(t, dc.Info(), "Unconfirmed-REQ", "the NPDU is still decoded")
	})
	t.Run("shorter than header", func(t *testing.T) {
		payload := bvll(FuncOriginalUnicastNPDU, whoIs...)
		payload[3] = 0x02
		root, _ := dissectFrame(reg, prototest.EthernetUDP(t, Port, Port, payload))
		assert.True(t, root.HasReason(field.ReasonLengthMismatch))
		assert.NotContains(t, protocols(root), "bacnet")
	})
}

func TestBadNPDU(t *testing.T) {
	reg := registry(t, nil)
	p, ok := reg.FindProtocol("bacnet")
	require.True(t, ok)

	for name, tc := range map[string]struct {
		buf    []byte
		reason field.Reason
	}{
		"version":          {buf: []byte{0x02, 0x00, 0x10, 0x08}, reason: field.ReasonMalformed},
		"zero source len":  {buf: []byte{0x01, 0x08, 0x00, 0x01, 0x00, 0x10, 0x08}, reason: field.ReasonMalformed},
		"dadr past end":    {buf: []byte{0x01, 0x20, 0x00, 0x01, 0x09, 0x01}, reason: field.ReasonLengthMismatch},
		"truncated header": {buf: []byte{0x01}, reason: field.ReasonTruncated},
	} {
		t.Run(name, func(t *testing.T) {
			dc := dissector.NewContext(reg, dissector.Frame{Data: tc.buf}, dissector.Limits{})
			root := field.NewTree("frame", "Frame", field.Range{Start: 0, Length: len(tc.buf)})
			dc.Call(p, cursor.New(tc.buf), root)
			assert.True(t, root.HasReason(tc.reason), "%v", root.Experts())
		})
	}
}

func TestNPDUOverLLC(t *testing.T) {
	reg := registry(t, nil)
	root, dc := dissectFrame(reg, prototest.EthernetLLC(t, LLCSAP, whoIs))

	assert.Empty(t, root.Experts())
	assert.Equal(t, "BACNET", dc.Protocol())
}

func TestBIPAddress(t *testing.T) {
	s, v, err := formatBIP([]byte{192, 168, 1, 7, 0xba, 0xc0})
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.7:47808", s)
	assert.Equal(t, []byte{192, 168, 1, 7, 0xba, 0xc0}, v)
}
