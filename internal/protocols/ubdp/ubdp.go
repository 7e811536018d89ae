// Package ubdp decodes the Ubiquiti discovery protocol.
package ubdp

import (
	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
	"github.com/tonylturner/tlvscope/internal/tlv"
)

// Port is the UDP discovery port.
const Port = 10001

// TLV types.
const (
	TypeMAC          = 0x01
	TypeMACIP        = 0x02
	TypeFirmware     = 0x03
	TypeUptime       = 0x0a
	TypeHostname     = 0x0b
	TypePlatform     = 0x0c
	TypeESSID        = 0x0d
	TypeWirelessMode = 0x0e
	TypeSystemID     = 0x10
	TypeSequence     = 0x12
	TypeSourceMAC    = 0x13
	TypeModel        = 0x14
	TypeVersion      = 0x16
	TypeDefault      = 0x17
	TypeLocating     = 0x18
	TypeDHCPClient   = 0x19
	TypeDHCPBound    = 0x1a
	TypeReqFirmware  = 0x1b
	TypeSSHDPort     = 0x1c
)

var commands = codec.ValueMap{
	0x00: "Discovery",
	0x06: "Discovery response",
	0x09: "Discovery reply",
}

var wirelessModes = codec.ValueMap{
	0x01: "Auto",
	0x02: "Ad-hoc",
	0x03: "Station",
	0x04: "Access Point",
	0x05: "Repeater",
	0x06: "Secondary",
	0x07: "Monitor",
}

var walker = tlv.MustNew(tlv.Config{
	Protocol:    "ubdp",
	TagWidth:    1,
	LengthWidth: 2,
	Endian:      cursor.BigEndian,
	Records: map[uint64]tlv.Record{
		TypeMAC:          {Name: "MAC Address", Handler: tlv.Formatted("MAC", 6, codec.FormatMAC)},
		TypeMACIP:        {Name: "MAC and IP Address", Handler: dissector.HandlerFunc(macIP)},
		TypeFirmware:     {Name: "Firmware", Handler: tlv.Text("Firmware", codec.UTF8)},
		TypeUptime:       {Name: "Uptime", Handler: tlv.Formatted("Uptime", 4, codec.FormatDuration)},
		TypeHostname:     {Name: "Hostname", Handler: info("Hostname")},
		TypePlatform:     {Name: "Platform", Handler: tlv.Text("Platform", codec.UTF8)},
		TypeESSID:        {Name: "ESSID", Handler: tlv.Text("ESSID", codec.UTF8)},
		TypeWirelessMode: {Name: "Wireless Mode", Handler: tlv.FixedUint("Wireless Mode", 1, wirelessModes)},
		TypeSystemID:     {Name: "System ID", Handler: tlv.Uint("System ID", nil, codec.Hex())},
		TypeSequence:     {Name: "Sequence Number", Handler: tlv.Uint("Sequence Number", nil)},
		TypeSourceMAC:    {Name: "Source MAC", Handler: tlv.Formatted("Source MAC", 6, codec.FormatMAC)},
		TypeModel:        {Name: "Model", Handler: info("Model")},
		TypeVersion:      {Name: "Version", Handler: tlv.Text("Version", codec.UTF8)},
		TypeDefault:      {Name: "Default Config", Handler: tlv.Uint("Default Config", nil)},
		TypeLocating:     {Name: "Locating", Handler: tlv.Uint("Locating", nil)},
		TypeDHCPClient:   {Name: "DHCP Client", Handler: tlv.Uint("DHCP Client", nil)},
		TypeDHCPBound:    {Name: "DHCP Client Bound", Handler: tlv.Uint("DHCP Client Bound", nil)},
		TypeReqFirmware:  {Name: "Required Firmware", Handler: tlv.Text("Required Firmware", codec.UTF8)},
		TypeSSHDPort:     {Name: "SSH Port", Handler: tlv.Uint("SSH Port", nil)},
	},
})

// Register binds UBDP to udp.port 10001.
func Register(b *dissector.Builder) {
	b.AddUint("udp.port", Port, b.RegisterProtocol("ubdp", "Ubiquiti Discovery Protocol", dissector.HandlerFunc(dissect)))
}

// info decodes a string value and adds it to the info column.
func info(label string) dissector.HandlerFunc {
	return func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		f, err := codec.DecodeString(cur, cur.Remaining(), codec.UTF8, label)
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
		dc.AppendInfo("%s: %s", label, f.Value)
		return nil
	}
}

func macIP(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	if cur.Remaining() != 10 {
		return tlv.WrongLength(cur, tree, 10)
	}
	f, err := codec.DecodeCustom(cur, 6, "MAC", codec.FormatMAC)
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	f, err = codec.DecodeCustom(cur, 4, "IP", codec.FormatIPv4)
	return codec.Add(tree, f, err)
}

func dissect(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	f, err := codec.DecodeUint(cur, 1, cursor.BigEndian, "Version")
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	cmd, err := codec.DecodeEnum(cur, 1, cursor.BigEndian, "Command", commands, codec.Hex())
	if err := codec.Add(tree, cmd, err); err != nil {
		return err
	}
	lengthAt := cur.Offset()
	f, err = codec.DecodeUint(cur, 2, cursor.BigEndian, "Length")
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	dc.SetInfo("%s", commands.Lookup(cmd.Value.(uint64), "Command 0x%02x"))

	n := int(f.Value.(uint64))
	if n > cur.Remaining() {
		tree.Diagnose(&errors.LengthMismatchError{
			Offset:    lengthAt,
			Declared:  n,
			Available: cur.Remaining(),
			Reason:    "declared length exceeds remaining bytes",
		}, lengthAt)
		n = cur.Remaining()
	}
	body, _ := cur.Sub(n)
	walker.Walk(dc, body, tree)
	return cur.Advance(n)
}
