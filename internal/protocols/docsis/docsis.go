// Package docsis decodes DOCSIS MAC frames and the OFDM channel and profile
// descriptor management messages.
package docsis

import (
	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// MMMTable dispatches MAC management payloads by message type.
const MMMTable = "docsis.mmm"

// LinkTypeDOCSIS is the pcap link type of DOCSIS captures.
const LinkTypeDOCSIS = 143

// MAC management message types.
const (
	TypeOCD = 49
	TypeDPD = 50
)

var fcTypes = codec.ValueMap{
	0: "Packet PDU",
	1: "ATM PDU",
	2: "Isolation Packet PDU",
	3: "MAC Specific",
}

var mmmTypes = codec.ValueMap{
	1:  "Timing Synchronization (SYNC)",
	2:  "Upstream Channel Descriptor (UCD)",
	3:  "Upstream Bandwidth Allocation (MAP)",
	4:  "Ranging Request (RNG-REQ)",
	5:  "Ranging Response (RNG-RSP)",
	6:  "Registration Request (REG-REQ)",
	7:  "Registration Response (REG-RSP)",
	12: "Privacy Key Management Request (BPKM-REQ)",
	13: "Privacy Key Management Response (BPKM-RSP)",
	29: "Upstream Channel Descriptor Type 29 (UCD)",
	45: "Multipart Registration Response (REG-RSP-MP)",
	49: "OFDM Channel Descriptor (OCD)",
	50: "Downstream Profile Descriptor (DPD)",
}

// Register adds the DOCSIS MAC, management, OCD and DPD dissectors. The
// link.type table must already be declared.
func Register(b *dissector.Builder) {
	b.RegisterTable(MMMTable, dissector.KeyUint8)

	mac := &macDissector{}
	mac.mgmt = b.RegisterProtocol("docsis_mgmt", "DOCSIS Mac Management", dissector.HandlerFunc(dissectMgmt))
	b.AddUint("link.type", LinkTypeDOCSIS, b.RegisterProtocol("docsis", "DOCSIS", mac))

	b.AddUint(MMMTable, TypeOCD, b.RegisterProtocol("docsis_ocd", "DOCSIS OFDM Channel Descriptor", dissector.HandlerFunc(dissectOCD)))
	b.AddUint(MMMTable, TypeDPD, b.RegisterProtocol("docsis_dpd", "DOCSIS Downstream Profile Descriptor", dissector.HandlerFunc(dissectDPD)))
}

type macDissector struct {
	mgmt *dissector.Protocol
}

// Dissect decodes the MAC header, then hands Packet PDUs to Ethernet and
// management frames to the management dissector.
func (m *macDissector) Dissect(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	fc, err := codec.DecodeBitGroup(cur, 1, cursor.BigEndian, "Frame Control", []codec.Bit{
		{Label: "FC Type", Mask: 0xC0, Values: fcTypes},
		{Label: "FC Parm", Mask: 0x3E},
		{Label: "Extended Header Present", Mask: 0x01, Flag: true},
	})
	if err != nil {
		return err
	}
	tree.Add(fc)
	raw := fc.Value.(uint64)
	fcType, fcParm, ehdrOn := raw>>6, (raw&0x3E)>>1, raw&0x01 != 0

	parm, err := codec.DecodeUint(cur, 1, cursor.BigEndian, "MAC Parm", codec.Hex())
	if err := codec.Add(tree, parm, err); err != nil {
		return err
	}
	lengthAt := cur.Offset()
	f, err := codec.DecodeUint(cur, 2, cursor.BigEndian, "Length")
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	length := int(f.Value.(uint64))

	ehdr := 0
	if ehdrOn {
		ehdr = int(parm.Value.(uint64))
		if ehdr > length {
			return &errors.LengthMismatchError{
				Offset:    lengthAt,
				Declared:  length,
				Available: cur.Remaining(),
				Expected:  ehdr,
				Reason:    "extended header longer than the frame",
			}
		}
		f, err := codec.DecodeFixedBytes(cur, ehdr, "Extended Header")
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
	}
	f, err = codec.DecodeUint(cur, 2, cursor.BigEndian, "Header Check Sequence", codec.Hex())
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}

	n := length - ehdr
	if n > cur.Remaining() {
		tree.Diagnose(&errors.TruncatedError{Offset: cur.Offset(), Needed: n, Available: cur.Remaining()}, cur.Offset())
		n = cur.Remaining()
	}
	payload, _ := cur.Sub(n)
	switch {
	case fcType == 0 && fcParm == 0:
		if eth, ok := dc.Registry.FindProtocol("eth"); ok {
			dc.Call(eth, payload, tree)
		} else {
			dc.CallData(payload, tree)
		}
	case fcType == 3 && fcParm == 1:
		dc.Call(m.mgmt, payload, tree)
	default:
		dc.CallData(payload, tree)
	}
	return cur.Advance(n)
}

func dissectMgmt(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	for _, label := range []string{"Destination Address", "Source Address"} {
		f, err := codec.DecodeCustom(cur, 6, label, codec.FormatMAC)
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
	}
	lengthAt := cur.Offset()
	f, err := codec.DecodeUint(cur, 2, cursor.BigEndian, "Message Length")
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	msgLen := int(f.Value.(uint64))

	for _, label := range []string{"DSAP", "SSAP", "Control", "Version"} {
		f, err := codec.DecodeUint(cur, 1, cursor.BigEndian, label, codec.Hex())
		if err := codec.Add(tree, f, err); err != nil {
			return err
		}
	}
	typ, err := codec.DecodeEnum(cur, 1, cursor.BigEndian, "Type", mmmTypes)
	if err := codec.Add(tree, typ, err); err != nil {
		return err
	}
	f, err = codec.DecodeUint(cur, 1, cursor.BigEndian, "Reserved", codec.Hex())
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}

	// The message length counts from DSAP on.
	n := msgLen - 6
	if n < 0 || n > cur.Remaining() {
		avail := cur.Remaining() + 6
		return &errors.LengthMismatchError{Offset: lengthAt, Declared: msgLen, Available: avail, Reason: "message length does not match frame"}
	}
	dc.SetInfo("%s", mmmTypes.Lookup(typ.Value.(uint64), "Management message %d"))
	payload, _ := cur.Sub(n)
	dc.DispatchUint(MMMTable, typ.Value.(uint64), payload, tree)
	return cur.Advance(n)
}
