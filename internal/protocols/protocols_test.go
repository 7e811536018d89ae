package protocols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonylturner/tlvscope/internal/dissector"
)

func TestRegisterAllBuilds(t *testing.T) {
	reg, err := NewBuilder().Build()
	require.NoError(t, err)

	for _, table := range []string{
		"link.type", "ethertype", "llc.dsap", "udp.port", "tcp.port",
		"docsis.mmm", "bvlc.function", "bacnet.npdu", "bacnet.apdu", "lldp.oui", "media.type",
	} {
		assert.True(t, reg.HasTable(table), table)
	}

	for _, tc := range []struct {
		table    string
		key      uint64
		protocol string
	}{
		{"udp.port", 47808, "bvlc"},
		{"udp.port", 10001, "ubdp"},
		{"udp.port", 3333, "enttec"},
		{"tcp.port", 502, "mbtcp"},
		{"ethertype", 0x88cc, "lldp"},
		{"llc.dsap", 0x42, "gmrp"},
		{"llc.dsap", 0x82, "bacnet"},
		{"link.type", 143, "docsis"},
		{"docsis.mmm", 50, "docsis_dpd"},
	} {
		p, ok := reg.LookupUint(tc.table, tc.key)
		require.True(t, ok, "%s %d", tc.table, tc.key)
		assert.Equal(t, tc.protocol, p.Name)
	}

	assert.Equal(t, []string{"pem"}, reg.Heuristics("tcp"))
	assert.Equal(t, []string{"pem"}, reg.Heuristics("udp"))
	kt, ok := reg.KeyTypeOf("bacnet.npdu")
	require.True(t, ok)
	assert.Equal(t, dissector.KeyString, kt)
}

func TestRegisteringTwiceFails(t *testing.T) {
	b := NewBuilder()
	RegisterAll(b)
	_, err := b.Build()
	assert.Error(t, err)
}
