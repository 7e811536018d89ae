// Package catalog loads TLV protocol definitions from YAML and registers
// them as dissectors.
package catalog

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field and record types.
const (
	TypeUint8  = "uint8"
	TypeUint16 = "uint16"
	TypeUint24 = "uint24"
	TypeUint32 = "uint32"
	TypeUint64 = "uint64"
	TypeBytes  = "bytes"
	TypeString = "string"
	TypeBits   = "bits"
	TypeIPv4   = "ipv4"
	TypeIPv6   = "ipv6"
	TypeMAC    = "mac"
	TypeTLV    = "tlv"
)

var uintWidths = map[string]int{
	TypeUint8:  1,
	TypeUint16: 2,
	TypeUint24: 3,
	TypeUint32: 4,
	TypeUint64: 8,
}

// File represents a catalog YAML file.
type File struct {
	Version   int         `yaml:"version"`
	Protocols []*Protocol `yaml:"protocols"`

	// Path is the file the catalog was read from.
	Path string `yaml:"-"`
}

// Protocol is one user-defined dissector.
type Protocol struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Bindings    []Binding      `yaml:"bindings,omitempty"`
	Header      []*HeaderField `yaml:"header,omitempty"`
	TLV         *TLVLayout     `yaml:"tlv,omitempty"`
}

// Title is the protocol's display name.
func (p *Protocol) Title() string {
	if p.Description != "" {
		return p.Description
	}
	return strings.ToUpper(p.Name)
}

// TableName is the table holding the protocol's record handlers.
func (p *Protocol) TableName() string { return p.Name + ".tlv" }

// Binding attaches the protocol to keys of an existing table.
type Binding struct {
	Table string `yaml:"table"`
	Keys  []Key  `yaml:"keys"`
}

// Key is a table key written as a number or a string.
type Key string

// UnmarshalYAML accepts any scalar so that ports need no quoting.
func (k *Key) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: key must be a scalar", n.Line)
	}
	*k = Key(n.Value)
	return nil
}

// HeaderField is one fixed field decoded before the TLV area.
type HeaderField struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	Endian  string            `yaml:"endian,omitempty"`  // "big" (default) or "little"
	Length  int               `yaml:"length,omitempty"`  // bytes and string
	Width   int               `yaml:"width,omitempty"`   // bits: group width in bytes
	Charset string            `yaml:"charset,omitempty"` // string
	Values  map[uint64]string `yaml:"values,omitempty"`
	Bits    []BitField        `yaml:"bits,omitempty"`
	Hex     bool              `yaml:"hex,omitempty"`
}

// BitField is one named field of a bits group. A single-bit mask without
// values is shown as a flag.
type BitField struct {
	Name   string            `yaml:"name"`
	Mask   uint64            `yaml:"mask"`
	Values map[uint64]string `yaml:"values,omitempty"`
}

// TLVLayout describes the record area that follows the header.
type TLVLayout struct {
	TagWidth             int                       `yaml:"tag_width"`
	LengthWidth          int                       `yaml:"length_width"`
	Endian               string                    `yaml:"endian,omitempty"`
	LengthOverrides      map[uint64]LengthOverride `yaml:"length_overrides,omitempty"`
	LengthIncludesHeader bool                      `yaml:"length_includes_header,omitempty"`
	EndTag               *uint64                   `yaml:"end_tag,omitempty"`
	Records              []*Record                 `yaml:"records"`
}

// LengthOverride changes the length field of one tag: a different width,
// or no length field and a fixed value size when width is 0.
type LengthOverride struct {
	Width int `yaml:"width,omitempty"`
	Fixed int `yaml:"fixed,omitempty"`
}

// Record decodes the value of one tag.
type Record struct {
	Tag     uint64            `yaml:"tag"`
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	Charset string            `yaml:"charset,omitempty"`
	Values  map[uint64]string `yaml:"values,omitempty"`
	Hex     bool              `yaml:"hex,omitempty"`
}
