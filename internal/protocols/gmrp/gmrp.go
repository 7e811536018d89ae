// Package gmrp decodes the GARP Multicast Registration Protocol.
package gmrp

import (
	"fmt"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// SAP is the 802.2 SAP GARP applications are carried on.
const SAP = 0x42

// ProtocolID is the only GARP protocol identifier defined.
const ProtocolID = 0x0001

// Attribute types.
const (
	AttrGroupMembership    = 0x01
	AttrServiceRequirement = 0x02
)

// Attribute events.
const (
	EventLeaveAll   = 0
	EventJoinEmpty  = 1
	EventJoinIn     = 2
	EventLeaveEmpty = 3
	EventLeaveIn    = 4
	EventEmpty      = 5
)

const endMark = 0x00

var attributeTypes = codec.ValueMap{
	AttrGroupMembership:    "Group Membership",
	AttrServiceRequirement: "Service Requirement",
}

var events = codec.ValueMap{
	EventLeaveAll:   "LeaveAll",
	EventJoinEmpty:  "JoinEmpty",
	EventJoinIn:     "JoinIn",
	EventLeaveEmpty: "LeaveEmpty",
	EventLeaveIn:    "LeaveIn",
	EventEmpty:      "Empty",
}

var serviceRequirements = codec.ValueMap{
	0: "Forward All Groups",
	1: "Forward All Unregistered Groups",
}

// valueSize is the attribute value width per attribute type.
var valueSize = map[uint64]int{
	AttrGroupMembership:    6,
	AttrServiceRequirement: 1,
}

// Register binds GMRP to llc.dsap 0x42.
func Register(b *dissector.Builder) {
	b.AddUint("llc.dsap", SAP, b.RegisterProtocol("gmrp", "GARP Multicast Registration Protocol", dissector.HandlerFunc(dissect)))
}

func dissect(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	dc.ClearInfo()
	at := cur.Offset()
	f, err := codec.DecodeUint(cur, 2, cursor.BigEndian, "Protocol ID", codec.Hex())
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	if f.Value.(uint64) != ProtocolID {
		return errors.Malformedf(at, "protocol ID 0x%04x is not GARP", f.Value)
	}

	for i := 0; cur.Remaining() > 0; i++ {
		start := cur.Offset()
		if err := dc.Step(start); err != nil {
			return err
		}
		typ, _ := cur.ByteAt(start)
		if typ == endMark {
			return endMarker(cur, tree)
		}
		msg := tree.AddTree("", fmt.Sprintf("Message %d", i+1), field.Range{Start: start, Length: cur.Remaining()})
		err := message(dc, cur, msg)
		msg.SetRange(field.Range{Start: start, Length: cur.Offset() - start})
		if err != nil {
			return err
		}
	}
	return nil
}

func endMarker(cur *cursor.Cursor, tree *field.Tree) error {
	f, err := codec.DecodeUint(cur, 1, cursor.BigEndian, "End Mark", codec.Hex())
	return codec.Add(tree, f, err)
}

// message decodes an attribute type and its attribute list up to the
// list's end mark.
func message(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	f, err := codec.DecodeEnum(cur, 1, cursor.BigEndian, "Attribute Type", attributeTypes, codec.Hex())
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	typ := f.Value.(uint64)

	if err := dc.Enter(cur.Offset()); err != nil {
		return err
	}
	defer dc.Leave()
	for cur.Remaining() > 0 {
		start := cur.Offset()
		if err := dc.Step(start); err != nil {
			return err
		}
		n, _ := cur.ByteAt(start)
		if n == endMark {
			return endMarker(cur, tree)
		}
		if err := attribute(dc, cur, tree, typ, int(n)); err != nil {
			return err
		}
	}
	return nil
}

// attribute decodes one attribute whose length n counts the length and
// event bytes as well as the value.
func attribute(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree, typ uint64, n int) error {
	start := cur.Offset()
	if n < 2 {
		return &errors.LengthMismatchError{Offset: start, Declared: n, Available: cur.Remaining(), Expected: 2, Reason: "attribute length shorter than its header"}
	}
	if n > cur.Remaining() {
		avail := cur.Remaining()
		f, _ := codec.DecodeFixedBytes(cur, avail, "Undecoded")
		tree.Add(f)
		return &errors.LengthMismatchError{Offset: start, Declared: n, Available: avail, Reason: "attribute length exceeds remaining bytes"}
	}
	attr, _ := cur.Sub(n)
	_ = cur.Advance(n)
	t := tree.AddTree("", "Attribute", field.Range{Start: start, Length: n})

	f, err := codec.DecodeUint(attr, 1, cursor.BigEndian, "Length")
	if err := codec.Add(t, f, err); err != nil {
		return err
	}
	ev, err := codec.DecodeEnum(attr, 1, cursor.BigEndian, "Event", events)
	if err := codec.Add(t, ev, err); err != nil {
		return err
	}
	event := ev.Value.(uint64)

	if event == EventLeaveAll {
		dc.AppendInfo("LeaveAll")
		if attr.Remaining() != 0 {
			f, _ := codec.DecodeFixedBytes(attr, attr.Remaining(), "Value")
			t.Add(f)
			return &errors.LengthMismatchError{Offset: start, Declared: n, Available: n, Expected: 2, Reason: "LeaveAll carries no value"}
		}
		return nil
	}
	want, known := valueSize[typ]
	if !known {
		if attr.Remaining() > 0 {
			f, err := codec.DecodeFixedBytes(attr, attr.Remaining(), "Value")
			return codec.Add(t, f, err)
		}
		return nil
	}
	if attr.Remaining() != want {
		f, _ := codec.DecodeFixedBytes(attr, attr.Remaining(), "Value")
		if f.Range.Length > 0 {
			t.Add(f)
		}
		return &errors.LengthMismatchError{Offset: start, Declared: n, Available: n, Expected: want + 2, Reason: "Wrong attribute length"}
	}
	switch typ {
	case AttrGroupMembership:
		f, err := codec.DecodeCustom(attr, 6, "Group Address", codec.FormatMAC)
		if err := codec.Add(t, f, err); err != nil {
			return err
		}
		dc.AppendInfo("%s %s", events.Lookup(event, "Event %d"), f.Display)
	case AttrServiceRequirement:
		f, err := codec.DecodeEnum(attr, 1, cursor.BigEndian, "Service Requirement", serviceRequirements)
		if err := codec.Add(t, f, err); err != nil {
			return err
		}
		dc.AppendInfo("%s %s", events.Lookup(event, "Event %d"), serviceRequirements.Lookup(f.Value.(uint64), "requirement %d"))
	}
	return nil
}
