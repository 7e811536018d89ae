// Package lldp decodes the Link Layer Discovery Protocol (IEEE 802.1AB).
package lldp

import (
	"fmt"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
	"github.com/tonylturner/tlvscope/internal/tlv"
)

// EtherType is the LLDP ethertype.
const EtherType = 0x88cc

// OrgTable dispatches organizationally specific TLVs by OUI.
const OrgTable = "lldp.oui"

// TLV types.
const (
	TypeEnd             = 0
	TypeChassisID       = 1
	TypePortID          = 2
	TypeTTL             = 3
	TypePortDescription = 4
	TypeSystemName      = 5
	TypeSystemDesc      = 6
	TypeCapabilities    = 7
	TypeManagementAddr  = 8
	TypeOrgSpecific     = 127
)

// OUIs decoded here.
const (
	OUIIEEE8021 = 0x0080c2
	OUIIEEE8023 = 0x00120f
)

var chassisSubtypes = codec.ValueMap{
	1: "Chassis component",
	2: "Interface alias",
	3: "Port component",
	4: "MAC address",
	5: "Network address",
	6: "Interface name",
	7: "Locally assigned",
}

var portSubtypes = codec.ValueMap{
	1: "Interface alias",
	2: "Port component",
	3: "MAC address",
	4: "Network address",
	5: "Interface name",
	6: "Agent circuit Id",
	7: "Locally assigned",
}

// Address families from the IANA registry.
var addressFamilies = codec.ValueMap{
	1: "IPv4",
	2: "IPv6",
	6: "802 (MAC)",
}

var interfaceSubtypes = codec.ValueMap{
	1: "Unknown",
	2: "ifIndex",
	3: "System port number",
}

var capabilities = []codec.Bit{
	{Label: "Other", Mask: 0x0001, Flag: true},
	{Label: "Repeater", Mask: 0x0002, Flag: true},
	{Label: "Bridge", Mask: 0x0004, Flag: true},
	{Label: "WLAN access point", Mask: 0x0008, Flag: true},
	{Label: "Router", Mask: 0x0010, Flag: true},
	{Label: "Telephone", Mask: 0x0020, Flag: true},
	{Label: "DOCSIS cable device", Mask: 0x0040, Flag: true},
	{Label: "Station only", Mask: 0x0080, Flag: true},
	{Label: "C-VLAN component", Mask: 0x0100, Flag: true},
	{Label: "S-VLAN component", Mask: 0x0200, Flag: true},
	{Label: "Two-port MAC relay", Mask: 0x0400, Flag: true},
}

var walker = tlv.MustNew(tlv.Config{
	Protocol: "lldp",
	Packed:   true,
	EndTag:   TypeEnd,
	HasEnd:   true,
	Records: map[uint64]tlv.Record{
		TypeChassisID:       {Name: "Chassis Id", Handler: identifier("Chassis Id", chassisSubtypes, 4, 5)},
		TypePortID:          {Name: "Port Id", Handler: identifier("Port Id", portSubtypes, 3, 4)},
		TypeTTL:             {Name: "Time To Live", Handler: dissector.HandlerFunc(ttl)},
		TypePortDescription: {Name: "Port Description", Handler: tlv.Text("Port Description", codec.UTF8)},
		TypeSystemName:      {Name: "System Name", Handler: dissector.HandlerFunc(systemName)},
		TypeSystemDesc:      {Name: "System Description", Handler: tlv.Text("System Description", codec.UTF8)},
		TypeCapabilities:    {Name: "System Capabilities", Handler: dissector.HandlerFunc(systemCapabilities)},
		TypeManagementAddr:  {Name: "Management Address", Handler: dissector.HandlerFunc(managementAddress)},
		TypeOrgSpecific:     {Name: "Organization Specific", Handler: dissector.HandlerFunc(orgSpecific)},
	},
})

// Register binds LLDP to its ethertype and declares the OUI table.
func Register(b *dissector.Builder) {
	b.RegisterTable(OrgTable, dissector.KeyUint24)
	b.AddUint("ethertype", EtherType, b.RegisterProtocol("lldp", "Link Layer Discovery Protocol", dissector.HandlerFunc(dissect)))
	b.AddUint(OrgTable, OUIIEEE8021, b.RegisterProtocol("lldp_8021", "IEEE 802.1 organizational TLV", dissector.HandlerFunc(ieee8021)))
	b.AddUint(OrgTable, OUIIEEE8023, b.RegisterProtocol("lldp_8023", "IEEE 802.3 organizational TLV", dissector.HandlerFunc(ieee8023)))
}

func dissect(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	dc.ClearInfo()
	checkMandatory(cur.Clone(), tree)
	walker.Walk(dc, cur, tree)
	// The walk only stops short at the End TLV; what follows is frame
	// padding.
	if n := cur.Remaining(); n > 0 {
		f, _ := codec.DecodeFixedBytes(cur, n, "Padding")
		tree.Add(f)
	}
	// Organizational decoders are called as protocols of their own; the
	// column still names the LLDPDU.
	dc.SetProtocol("LLDP")
	return nil
}

// checkMandatory notes an LLDPDU that does not open with the Chassis Id,
// Port Id and TTL TLVs, in that order.
func checkMandatory(cur *cursor.Cursor, tree *field.Tree) {
	for _, want := range []uint64{TypeChassisID, TypePortID, TypeTTL} {
		at := cur.Offset()
		v, err := cur.Uint(2, cursor.BigEndian)
		if err != nil {
			return
		}
		if v>>9 != want {
			tree.Note(field.ReasonMalformed, at, "expected %s TLV, found type %d", mandatoryName(want), v>>9)
			return
		}
		if cur.Advance(int(v&0x1ff)) != nil {
			return
		}
	}
}

func mandatoryName(tag uint64) string {
	switch tag {
	case TypeChassisID:
		return "Chassis Id"
	case TypePortID:
		return "Port Id"
	}
	return "Time To Live"
}

// identifier decodes a subtype and an id whose form depends on it.
func identifier(label string, subtypes codec.ValueMap, macSubtype, netSubtype uint64) dissector.HandlerFunc {
	return func(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
		st, err := codec.DecodeEnum(cur, 1, cursor.BigEndian, label+" Subtype", subtypes)
		if err := codec.Add(tree, st, err); err != nil {
			return err
		}
		if cur.Remaining() == 0 {
			return tlv.WrongLength(cur, tree, 2)
		}
		var f field.Field
		switch st.Value.(uint64) {
		case macSubtype:
			if cur.Remaining() != 6 {
				return tlv.WrongLength(cur, tree, 7)
			}
			f, err = codec.DecodeCustom(cur, 6, label, codec.FormatMAC)
		case netSubtype:
			f, err = networkAddress(cur, tree, label)
		default:
			f, err = codec.DecodeString(cur, cur.Remaining(), codec.UTF8, label)
		}
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
		text, ok := f.Text()
		if !ok {
			text = f.Display
		}
		dc.AppendInfo("%s = %s", label, text)
		return nil
	}
}

// networkAddress decodes an address family and an address of that family.
func networkAddress(cur *cursor.Cursor, tree *field.Tree, label string) (field.Field, error) {
	fam, err := codec.DecodeEnum(cur, 1, cursor.BigEndian, "Address Family", addressFamilies)
	if err := codec.Add(tree, fam, err); err != nil {
		return field.Field{}, err
	}
	n := cur.Remaining()
	switch {
	case fam.Value.(uint64) == 1 && n == 4:
		return codec.DecodeCustom(cur, 4, label, codec.FormatIPv4)
	case fam.Value.(uint64) == 2 && n == 16:
		return codec.DecodeCustom(cur, 16, label, codec.FormatIPv6)
	case fam.Value.(uint64) == 6 && n == 6:
		return codec.DecodeCustom(cur, 6, label, codec.FormatMAC)
	}
	return codec.DecodeFixedBytes(cur, n, label)
}

func ttl(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	if cur.Remaining() != 2 {
		return tlv.WrongLength(cur, tree, 2)
	}
	f, err := codec.DecodeUint(cur, 2, cursor.BigEndian, "Seconds", codec.Unit(" s"))
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	dc.AppendInfo("TTL = %d", f.Value)
	return nil
}

func systemName(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	f, err := codec.DecodeString(cur, cur.Remaining(), codec.UTF8, "System Name")
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	dc.AppendInfo("SysName = %s", f.Value)
	return nil
}

func systemCapabilities(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	if cur.Remaining() != 4 {
		return tlv.WrongLength(cur, tree, 4)
	}
	for _, label := range []string{"Capabilities", "Enabled Capabilities"} {
		f, err := codec.DecodeBitGroup(cur, 2, cursor.BigEndian, label, capabilities)
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
	}
	return nil
}

func managementAddress(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	lengthAt := cur.Offset()
	n, err := codec.DecodeUint(cur, 1, cursor.BigEndian, "Address String Length")
	if err := codec.Add(tree, n, err); err != nil {
		return err
	}
	alen := int(n.Value.(uint64))
	// The string length counts the family byte.
	if alen < 2 || alen > cur.Remaining() {
		return &errors.LengthMismatchError{Offset: lengthAt, Declared: alen, Available: cur.Remaining(), Reason: "bad management address length"}
	}
	addr, _ := cur.Sub(alen)
	f, err := networkAddress(addr, tree, "Management Address")
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	_ = cur.Advance(alen)

	is, err := codec.DecodeEnum(cur, 1, cursor.BigEndian, "Interface Subtype", interfaceSubtypes)
	if err := codec.Add(tree, is, err); err != nil {
		return err
	}
	in, err := codec.DecodeUint(cur, 4, cursor.BigEndian, "Interface Number")
	if err := codec.Add(tree, in, err); err != nil {
		return err
	}
	oidAt := cur.Offset()
	ol, err := codec.DecodeUint(cur, 1, cursor.BigEndian, "OID String Length")
	if err := codec.Add(tree, ol, err); err != nil {
		return err
	}
	olen := int(ol.Value.(uint64))
	if olen > cur.Remaining() {
		return &errors.LengthMismatchError{Offset: oidAt, Declared: olen, Available: cur.Remaining(), Reason: "OID length exceeds remaining bytes"}
	}
	if olen > 0 {
		f, err := codec.DecodeFixedBytes(cur, olen, "Object Identifier")
		return codec.Add(tree, f, err)
	}
	return nil
}

// orgSpecific reads the OUI and subtype and hands the rest to the decoder
// bound to the OUI in lldp.oui.
func orgSpecific(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	if cur.Remaining() < 4 {
		return tlv.WrongLength(cur, tree, 4)
	}
	oui, err := codec.DecodeCustom(cur, 3, "Organization Unique Code", formatOUI)
	if err := codec.Add(tree, oui, err); err != nil {
		return err
	}
	if _, ok := dc.TryUint(OrgTable, oui.Value.(uint64), cur, tree); ok {
		return nil
	}
	f, err := codec.DecodeUint(cur, 1, cursor.BigEndian, "Subtype")
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	if cur.Remaining() > 0 {
		f, err := codec.DecodeFixedBytes(cur, cur.Remaining(), "Data")
		return codec.Add(tree, f, err)
	}
	return nil
}

func formatOUI(b []byte) (string, any, error) {
	if len(b) != 3 {
		return "", nil, fmt.Errorf("OUI needs 3 bytes, got %d", len(b))
	}
	v := uint64(b[0])<<16 | uint64(b[1])<<8 | uint64(b[2])
	return fmt.Sprintf("%02x:%02x:%02x", b[0], b[1], b[2]), v, nil
}

var ieee8021Subtypes = codec.ValueMap{
	1: "Port VLAN ID",
	2: "Port and Protocol VLAN ID",
	3: "VLAN Name",
	4: "Protocol Identity",
}

func ieee8021(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	st, err := codec.DecodeEnum(cur, 1, cursor.BigEndian, "IEEE 802.1 Subtype", ieee8021Subtypes)
	if err := codec.Add(tree, st, err); err != nil {
		return err
	}
	switch st.Value.(uint64) {
	case 1:
		f, err := codec.DecodeUint(cur, 2, cursor.BigEndian, "Port VLAN Identifier")
		return codec.Add(tree, f, err)
	case 2:
		f, err := codec.DecodeBitGroup(cur, 1, cursor.BigEndian, "Flags", []codec.Bit{
			{Label: "Port and Protocol VLAN Supported", Mask: 0x02, Flag: true},
			{Label: "Port and Protocol VLAN Enabled", Mask: 0x04, Flag: true},
		})
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
		f, err = codec.DecodeUint(cur, 2, cursor.BigEndian, "Port and Protocol VLAN Identifier")
		return codec.Add(tree, f, err)
	case 3:
		f, err := codec.DecodeUint(cur, 2, cursor.BigEndian, "VLAN Identifier")
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
		at := cur.Offset()
		nl, err := codec.DecodeUint(cur, 1, cursor.BigEndian, "VLAN Name Length")
		if err := codec.Add(tree, nl, err); err != nil {
			return err
		}
		n := int(nl.Value.(uint64))
		if n > cur.Remaining() {
			return &errors.LengthMismatchError{Offset: at, Declared: n, Available: cur.Remaining(), Reason: "VLAN name length exceeds remaining bytes"}
		}
		f, err = codec.DecodeString(cur, n, codec.UTF8, "VLAN Name")
		return codec.Add(tree, f, err)
	}
	return nil
}

var ieee8023Subtypes = codec.ValueMap{
	1: "MAC/PHY Configuration/Status",
	2: "Power Via MDI",
	3: "Link Aggregation",
	4: "Maximum Frame Size",
}

func ieee8023(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	st, err := codec.DecodeEnum(cur, 1, cursor.BigEndian, "IEEE 802.3 Subtype", ieee8023Subtypes)
	if err := codec.Add(tree, st, err); err != nil {
		return err
	}
	switch st.Value.(uint64) {
	case 1:
		f, err := codec.DecodeBitGroup(cur, 1, cursor.BigEndian, "Auto-Negotiation Support/Status", []codec.Bit{
			{Label: "Auto-Negotiation", Mask: 0x01, Flag: true},
			{Label: "Auto-Negotiation Enabled", Mask: 0x02, Flag: true},
		})
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
		f, err = codec.DecodeUint(cur, 2, cursor.BigEndian, "PMD Auto-Negotiation Advertised Capability", codec.Hex())
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
		f, err = codec.DecodeUint(cur, 2, cursor.BigEndian, "Operational MAU Type", codec.Hex())
		return codec.Add(tree, f, err)
	case 4:
		f, err := codec.DecodeUint(cur, 2, cursor.BigEndian, "Maximum Frame Size")
		return codec.Add(tree, f, err)
	}
	return nil
}
