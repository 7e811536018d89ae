// Package protocols registers the built-in dissectors.
package protocols

import (
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/protocols/bacnet"
	"github.com/tonylturner/tlvscope/internal/protocols/docsis"
	"github.com/tonylturner/tlvscope/internal/protocols/enttec"
	"github.com/tonylturner/tlvscope/internal/protocols/gmrp"
	"github.com/tonylturner/tlvscope/internal/protocols/link"
	"github.com/tonylturner/tlvscope/internal/protocols/lldp"
	"github.com/tonylturner/tlvscope/internal/protocols/modbus"
	"github.com/tonylturner/tlvscope/internal/protocols/pem"
	"github.com/tonylturner/tlvscope/internal/protocols/ubdp"
)

// Registrar adds one dissector family to a builder.
type Registrar func(b *dissector.Builder)

// Builtin lists the dissectors in registration order. link comes first
// because it declares the tables the others bind to.
var Builtin = []struct {
	Name     string
	Register Registrar
}{
	{"link", link.Register},
	{"bacnet", bacnet.Register},
	{"docsis", docsis.Register},
	{"enttec", enttec.Register},
	{"gmrp", gmrp.Register},
	{"lldp", lldp.Register},
	{"modbus", modbus.Register},
	{"pem", pem.Register},
	{"ubdp", ubdp.Register},
}

// RegisterAll registers every built-in dissector.
func RegisterAll(b *dissector.Builder) {
	for _, p := range Builtin {
		p.Register(b)
	}
}

// NewBuilder returns a builder with every built-in dissector registered,
// ready for catalogs and bindings to be added before Build.
func NewBuilder() *dissector.Builder {
	b := dissector.NewBuilder()
	RegisterAll(b)
	return b
}
