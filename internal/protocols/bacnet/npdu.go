package bacnet

import (
	"fmt"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// NPDU control bits.
const (
	ctrlNetworkMessage = 0x80
	ctrlDNET           = 0x20
	ctrlSNET           = 0x08
	ctrlExpectReply    = 0x04
	ctrlPriority       = 0x03
)

var priorities = codec.ValueMap{
	0: "Normal message",
	1: "Urgent message",
	2: "Critical equipment message",
	3: "Life safety message",
}

var messageTypes = codec.ValueMap{
	0x00: "Who-Is-Router-To-Network",
	0x01: "I-Am-Router-To-Network",
	0x02: "I-Could-Be-Router-To-Network",
	0x03: "Reject-Message-To-Network",
	0x04: "Router-Busy-To-Network",
	0x05: "Router-Available-To-Network",
	0x06: "Initialize-Routing-Table",
	0x07: "Initialize-Routing-Table-Ack",
	0x08: "Establish-Connection-To-Network",
	0x09: "Disconnect-Connection-To-Network",
	0x0a: "Challenge-Request",
	0x0b: "Security-Payload",
	0x0c: "Security-Response",
	0x0d: "Request-Key-Update",
	0x0e: "Update-Key-Set",
	0x0f: "Update-Distribution-Key",
	0x10: "Request-Master-Key",
	0x11: "Set-Master-Key",
	0x12: "What-Is-Network-Number",
	0x13: "Network-Number-Is",
}

var rejectReasons = codec.ValueMap{
	0: "Other error",
	1: "The router is not directly connected to DNET and cannot find a router to DNET",
	2: "The router is busy and unable to accept messages for DNET",
	3: "Unknown network layer message type",
	4: "The message is too long to be routed to this DNET",
	5: "The source message was rejected due to a BACnet security error",
	6: "The source message was rejected due to errors in the addressing",
}

var apduTypes = codec.ValueMap{
	0: "Confirmed-REQ",
	1: "Unconfirmed-REQ",
	2: "Simple-ACK",
	3: "Complex-ACK",
	4: "Segment-ACK",
	5: "Error",
	6: "Reject",
	7: "Abort",
}

// dissectNPDU decodes the network layer header. Network layer messages
// are decoded here; an APDU goes to bacnet.apdu keyed by its PDU type.
func dissectNPDU(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	r := reader{cur: cur, tree: tree}
	versionAt := cur.Offset()
	version, err := r.uint(1, "Version")
	if err != nil {
		return err
	}
	if version != 1 {
		return errors.Malformedf(versionAt, "unsupported NPDU version %d", version)
	}
	ctrl, err := codec.DecodeBitGroup(cur, 1, cursor.BigEndian, "Control", []codec.Bit{
		{Label: "NSDU contains network layer message", Mask: ctrlNetworkMessage, Flag: true},
		{Label: "Destination specifier", Mask: ctrlDNET, Flag: true},
		{Label: "Source specifier", Mask: ctrlSNET, Flag: true},
		{Label: "Expecting reply", Mask: ctrlExpectReply, Flag: true},
		{Label: "Priority", Mask: ctrlPriority, Values: priorities},
	}, codec.Hex())
	if err := codec.Add(tree, ctrl, err); err != nil {
		return err
	}
	c := ctrl.Value.(uint64)

	if c&ctrlDNET != 0 {
		if err := r.address("DNET", "DLEN", "DADR", false); err != nil {
			return err
		}
	}
	if c&ctrlSNET != 0 {
		if err := r.address("SNET", "SLEN", "SADR", true); err != nil {
			return err
		}
	}
	if c&ctrlDNET != 0 {
		if _, err := r.uint(1, "Hop Count"); err != nil {
			return err
		}
	}

	if c&ctrlNetworkMessage != 0 {
		return r.networkMessage(dc)
	}
	if cur.Remaining() == 0 {
		return nil
	}
	first, _ := cur.ByteAt(cur.Offset())
	pduType := uint64(first >> 4)
	dc.AppendInfo("%s", apduTypes.Lookup(pduType, "APDU type %d"))
	dc.DispatchUint(APDUTable, pduType, cur, tree)
	return nil
}

// address decodes a network number, a MAC length and a MAC address of
// that length. A zero-length destination is a broadcast; a zero-length
// source is invalid.
func (r reader) address(net, length, addr string, source bool) error {
	if _, err := r.uint(2, net); err != nil {
		return err
	}
	at := r.cur.Offset()
	n, err := r.uint(1, length)
	if err != nil {
		return err
	}
	if n == 0 {
		if source {
			return errors.Malformedf(at, "%s of zero is invalid", length)
		}
		r.tree.Add(field.Field{Label: addr, Kind: field.KindBytes, Range: field.Range{Start: at + 1}, Value: []byte{}, Display: "broadcast"})
		return nil
	}
	if int(n) > r.cur.Remaining() {
		return &errors.LengthMismatchError{Offset: at, Declared: int(n), Available: r.cur.Remaining(), Reason: length + " exceeds remaining bytes"}
	}
	if n == 6 {
		// A 6-byte MAC on B/IP networks is an address and port.
		f, err := codec.DecodeCustom(r.cur, 6, addr, formatBIP)
		return codec.Add(r.tree, f, err)
	}
	return r.bytes(int(n), addr)
}

func formatBIP(b []byte) (string, any, error) {
	ip, _, err := codec.FormatIPv4(b[:4])
	if err != nil {
		return "", nil, err
	}
	port := uint16(b[4])<<8 | uint16(b[5])
	return fmt.Sprintf("%s:%d", ip, port), append([]byte(nil), b...), nil
}

func (r reader) networkMessage(dc *dissector.Context) error {
	typ, err := r.enum(1, "Message Type", messageTypes, codec.Hex())
	if err != nil {
		return err
	}
	dc.AppendInfo("%s", messageTypes.Lookup(typ, "Network message 0x%02x"))
	if typ >= 0x80 {
		if _, err := r.uint(2, "Vendor ID"); err != nil {
			return err
		}
	}

	switch typ {
	case 0x00:
		if r.cur.Remaining() >= 2 {
			_, err := r.uint(2, "DNET")
			return err
		}
		return nil
	case 0x01, 0x04, 0x05:
		return r.networkList(dc)
	case 0x03:
		if _, err := r.enum(1, "Reject Reason", rejectReasons); err != nil {
			return err
		}
		_, err := r.uint(2, "DNET")
		return err
	case 0x12:
		return nil
	case 0x13:
		if _, err := r.uint(2, "Network Number"); err != nil {
			return err
		}
		_, err := r.enum(1, "Network Number Status", codec.ValueMap{0: "learned", 1: "configured"})
		return err
	}
	if r.cur.Remaining() > 0 {
		return r.bytes(r.cur.Remaining(), "Message Data")
	}
	return nil
}

// networkList decodes the 2-byte network numbers filling the message.
func (r reader) networkList(dc *dissector.Context) error {
	for i := 0; r.cur.Remaining() > 0; i++ {
		if err := dc.Step(r.cur.Offset()); err != nil {
			return err
		}
		if _, err := r.uint(2, fmt.Sprintf("DNET %d", i)); err != nil {
			return err
		}
	}
	return nil
}
