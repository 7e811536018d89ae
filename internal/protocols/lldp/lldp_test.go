package lldp

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

func record(typ uint16, value ...byte) []byte {
	return append(codec.AppendUint16(nil, typ<<9|uint16(len(value))), value...)
}

func lldpdu(records ...[]byte) []byte {
	var b []byte
	for _, r := range records {
		b = append(b, r...)
	}
	return append(b, record(TypeEnd)...)
}

var (
	chassis = record(TypeChassisID, 4, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55)
	port    = record(TypePortID, append([]byte{5}, "ge-0/0/1"...)...)
	ttl120  = record(TypeTTL, 0x00, 0x78)
)

func dissectFrame(t *testing.T, pdu []byte) (*field.Tree, *dissector.Context) {
	t.Helper()
	b := dissector.NewBuilder()
	link.Register(b)
	Register(b)
	reg, err := b.Build()
	require.NoError(t, err)

	frame := prototest.EthernetType(t, EtherType, pdu)
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

func TestFullLLDPDU(t *testing.T) {
	pdu := lldpdu(
		chassis, port, ttl120,
		record(TypeSystemName, []byte("sw1")...),
		record(TypeCapabilities, 0x00, 0x14, 0x00, 0x04),
		record(TypeManagementAddr, 5, 1, 10, 0, 0, 1, 2, 0, 0, 0, 3, 0),
		record(TypeOrgSpecific, 0x00, 0x80, 0xc2, 1, 0x00, 0x0a),
	)
	root, dc := dissectFrame(t, pdu)

	assert.Empty(t, root.Experts())
	assert.Equal(t, "LLDP", dc.Protocol())
	assert.Equal(t, "Chassis Id = 00:11:22:33:44:55, Port Id = ge-0/0/1, TTL = 120, SysName = sw1", dc.Info())
	assert.Contains(t, display(t, root, "Router"), "= Set")
	assert.Equal(t, "10.0.0.1", display(t, root, "Management Address"))
	assert.Equal(t, "3", display(t, root, "Interface Number"))
	assert.Equal(t, "00:80:c2", display(t, root, "Organization Unique Code"))
	assert.Equal(t, "10", display(t, root, "Port VLAN Identifier"))

	end, ok := root.Find("End")
	require.True(t, ok)
	assert.Equal(t, 2, end.Range.Length)
}

func TestPaddingAfterEnd(t *testing.T) {
	pdu := lldpdu(chassis, port, ttl120)
	root, _ := dissectFrame(t, pdu)

	assert.Empty(t, root.Experts())
	pad, ok := root.Find("Padding")
	require.True(t, ok)
	assert.Equal(t, 14+len(pdu), pad.Range.Start)
	assert.Equal(t, 60-14-len(pdu), pad.Range.Length)
	_, ok = root.Find("Undecoded")
	assert.False(t, ok)
}

func TestWrongTTLLengthKeepsWalking(t *testing.T) {
	pdu := lldpdu(chassis, port, record(TypeTTL, 0, 0, 120), record(TypeSystemName, []byte("sw2")...))
	root, dc := dissectFrame(t, pdu)

	experts := root.Experts()
	require.Len(t, experts, 1)
	assert.Equal(t, field.ReasonLengthMismatch, experts[0].Reason)
	assert.Contains(t, experts[0].Message, "Wrong TLV length")
	assert.Contains(t, dc.Info(), "SysName = sw2")
}

func TestMissingMandatoryTLV(t *testing.T) {
	pdu := lldpdu(chassis, ttl120, record(TypeSystemName, []byte("sw3")...))
	root, _ := dissectFrame(t, pdu)

	experts := root.Experts()
	require.Len(t, experts, 1)
	assert.Equal(t, field.ReasonMalformed, experts[0].Reason)
	assert.Contains(t, experts[0].Message, "expected Port Id TLV")
}

func TestLyingLength(t *testing.T) {
	pdu := lldpdu(chassis, port, ttl120, record(TypeSystemDesc, []byte("switch")...))
	desc := len(chassis) + len(port) + len(ttl120)
	pdu[desc+1] = 0xff
	root, _ := dissectFrame(t, pdu)

	assert.True(t, root.HasReason(field.ReasonLengthMismatch))
	_, ok := root.Find("Undecoded")
	assert.True(t, ok)
}

func TestUnknownOUI(t *testing.T) {
	pdu := lldpdu(chassis, port, ttl120, record(TypeOrgSpecific, 0x00, 0x12, 0xbb, 1, 0xaa, 0xbb))
	root, _ := dissectFrame(t, pdu)

	assert.Empty(t, root.Experts())
	assert.Equal(t, "1", display(t, root, "Subtype"))
	assert.Equal(t, "aabb", display(t, root, "Data"))
}

func TestNetworkAddressChassis(t *testing.T) {
	pdu := lldpdu(record(TypeChassisID, 5, 1, 192, 168, 0, 1), port, ttl120)
	root, dc := dissectFrame(t, pdu)

	assert.Empty(t, root.Experts())
	assert.Equal(t, "IPv4 (1)", display(t, root, "Address Family"))
	assert.Contains(t, dc.Info(), "Chassis Id = 192.168.0.1")
}
