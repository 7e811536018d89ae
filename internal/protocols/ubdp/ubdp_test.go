package ubdp

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

func record(tag byte, value []byte) []byte {
	return append(codec.AppendUint16([]byte{tag}, uint16(len(value))), value...)
}

func packet(cmd byte, records ...[]byte) []byte {
	var body []byte
	for _, r := range records {
		body = append(body, r...)
	}
	return append(codec.AppendUint16([]byte{0x01, cmd}, uint16(len(body))), body...)
}

func dissectUDP(t *testing.T, payload []byte) (*field.Tree, *dissector.Context) {
	t.Helper()
	b := dissector.NewBuilder()
	link.Register(b)
	Register(b)
	reg, err := b.Build()
	require.NoError(t, err)

	frame := prototest.EthernetUDP(t, 50000, Port, payload)
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

func TestDiscoveryReply(t *testing.T) {
	mac := []byte{0x00, 0x1b, 0x21, 0x0a, 0x0b, 0x0c}
	payload := packet(0x06,
		record(TypeMAC, mac),
		record(TypeMACIP, append(append([]byte{}, mac...), 192, 168, 1, 20)),
		record(TypeUptime, []byte{0x00, 0x00, 0x0e, 0x10}),
		record(TypeHostname, []byte("ubnt1")),
		record(TypePlatform, []byte("UAP")),
		record(TypeWirelessMode, []byte{0x04}),
		record(TypeModel, []byte("UAP-Pro")),
	)
	root, dc := dissectUDP(t, payload)

	assert.Empty(t, root.Experts())
	assert.Equal(t, "UBDP", dc.Protocol())
	assert.Equal(t, "Discovery response, Hostname: ubnt1, Model: UAP-Pro", dc.Info())
	assert.Equal(t, "00:1b:21:0a:0b:0c", display(t, root, "MAC"))
	assert.Equal(t, "192.168.1.20", display(t, root, "IP"))
	assert.Equal(t, "3600 s (1h0m0s)", display(t, root, "Uptime"))
	assert.Equal(t, `"UAP"`, display(t, root, "Platform"))
	assert.Equal(t, "Access Point (4)", display(t, root, "Wireless Mode"))
}

func TestUnknownTypeIsKept(t *testing.T) {
	payload := packet(0x06,
		record(0x7f, []byte{0xaa, 0xbb}),
		record(TypeHostname, []byte("h")),
	)
	root, dc := dissectUDP(t, payload)

	unknown, ok := root.Find("Unknown TLV")
	require.True(t, ok)
	assert.Equal(t, 5, unknown.Range.Length)
	assert.True(t, root.HasReason(field.ReasonUnknownTag))
	assert.Contains(t, dc.Info(), "Hostname: h")
}

func TestLyingLengths(t *testing.T) {
	t.Run("record", func(t *testing.T) {
		payload := packet(0x06, record(TypeHostname, []byte("host")))
		payload[6] = 0x40 // hostname length 64
		root, _ := dissectUDP(t, payload)
		assert.True(t, root.HasReason(field.ReasonLengthMismatch))
		_, ok := root.Find("Undecoded")
		assert.True(t, ok)
	})
	t.Run("header", func(t *testing.T) {
		payload := packet(0x06, record(TypeHostname, []byte("host")))
		payload[3] = 0xff
		root, dc := dissectUDP(t, payload)
		assert.True(t, root.HasReason(field.ReasonLengthMismatch))
		assert.Contains(t, dc.Info(), "Hostname: host", "records that fit are still decoded")
	})
	t.Run("wrong mac+ip width", func(t *testing.T) {
		payload := packet(0x06, record(TypeMACIP, []byte{1, 2, 3}))
		root, _ := dissectUDP(t, payload)
		experts := root.Experts()
		require.Len(t, experts, 1)
		assert.Contains(t, experts[0].Message, "Wrong TLV length")
	})
}
