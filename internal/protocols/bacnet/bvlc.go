// Package bacnet decodes the BACnet virtual link layer (BVLC) and the
// BACnet network layer (NPDU).
package bacnet

import (
	"fmt"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// Dispatch tables.
const (
	// FunctionTable lets other dissectors claim a BVLC function's payload
	// before it is taken as an NPDU.
	FunctionTable = "bvlc.function"
	NPDUTable     = "bacnet.npdu"
	APDUTable     = "bacnet.apdu"

	// NPDUKey is the NPDUTable key of the network layer.
	NPDUKey = "npdu"
)

// Port is the BACnet/IP UDP port.
const Port = 47808

// LLCSAP is the 802.2 SAP of BACnet over Ethernet.
const LLCSAP = 0x82

// BVLC functions.
const (
	FuncResult                = 0x00
	FuncWriteBDT              = 0x01
	FuncReadBDT               = 0x02
	FuncReadBDTAck            = 0x03
	FuncForwardedNPDU         = 0x04
	FuncRegisterForeignDevice = 0x05
	FuncReadFDT               = 0x06
	FuncReadFDTAck            = 0x07
	FuncDeleteFDTEntry        = 0x08
	FuncDistributeBroadcast   = 0x09
	FuncOriginalUnicastNPDU   = 0x0a
	FuncOriginalBroadcastNPDU = 0x0b
	FuncSecureBVLL            = 0x0c
)

const (
	bvlcHeaderSize = 4
	bdtEntrySize   = 10
	fdtEntrySize   = 10
	bipAddressSize = 6
)

var bvlcTypes = codec.ValueMap{
	0x81: "BACnet/IP (Annex J)",
	0x82: "BACnet/IPv6 (Annex U)",
}

var functions = codec.ValueMap{
	FuncResult:                "BVLC-Result",
	FuncWriteBDT:              "Write-Broadcast-Distribution-Table",
	FuncReadBDT:               "Read-Broadcast-Distribution-Table",
	FuncReadBDTAck:            "Read-Broadcast-Distribution-Table-Ack",
	FuncForwardedNPDU:         "Forwarded-NPDU",
	FuncRegisterForeignDevice: "Register-Foreign-Device",
	FuncReadFDT:               "Read-Foreign-Device-Table",
	FuncReadFDTAck:            "Read-Foreign-Device-Table-Ack",
	FuncDeleteFDTEntry:        "Delete-Foreign-Device-Table-Entry",
	FuncDistributeBroadcast:   "Distribute-Broadcast-To-Network",
	FuncOriginalUnicastNPDU:   "Original-Unicast-NPDU",
	FuncOriginalBroadcastNPDU: "Original-Broadcast-NPDU",
	FuncSecureBVLL:            "Secure-BVLL",
}

var resultCodes = codec.ValueMap{
	0x0000: "Successful completion",
	0x0010: "Write-Broadcast-Distribution-Table NAK",
	0x0020: "Read-Broadcast-Distribution-Table NAK",
	0x0030: "Register-Foreign-Device NAK",
	0x0040: "Read-Foreign-Device-Table NAK",
	0x0050: "Delete-Foreign-Device-Table-Entry NAK",
	0x0060: "Distribute-Broadcast-To-Network NAK",
}

// Register adds BVLC on udp.port 47808 and the NPDU on bacnet.npdu and
// llc.dsap 0x82.
func Register(b *dissector.Builder) {
	b.RegisterTable(FunctionTable, dissector.KeyUint8)
	b.RegisterTable(NPDUTable, dissector.KeyString)
	b.RegisterTable(APDUTable, dissector.KeyUint8)

	b.AddUint("udp.port", Port, b.RegisterProtocol("bvlc", "BACnet Virtual Link Control", dissector.HandlerFunc(dissectBVLC)))
	npdu := b.RegisterProtocol("bacnet", "Building Automation and Control Network NPDU", dissector.HandlerFunc(dissectNPDU))
	b.AddString(NPDUTable, NPDUKey, npdu)
	b.AddUint("llc.dsap", LLCSAP, npdu)
}

type reader struct {
	cur  *cursor.Cursor
	tree *field.Tree
}

func (r reader) uint(width int, label string, opts ...codec.Option) (uint64, error) {
	f, err := codec.DecodeUint(r.cur, width, cursor.BigEndian, label, opts...)
	if err := codec.Add(r.tree, f, err); err != nil {
		return 0, err
	}
	return f.Value.(uint64), nil
}

func (r reader) enum(width int, label string, values codec.ValueMap, opts ...codec.Option) (uint64, error) {
	f, err := codec.DecodeEnum(r.cur, width, cursor.BigEndian, label, values, opts...)
	if err := codec.Add(r.tree, f, err); err != nil {
		return 0, err
	}
	return f.Value.(uint64), nil
}

func (r reader) bytes(n int, label string) error {
	f, err := codec.DecodeFixedBytes(r.cur, n, label)
	return codec.Add(r.tree, f, err)
}

// bipAddress decodes a 4-byte IPv4 address and 2-byte port.
func (r reader) bipAddress(tree *field.Tree) error {
	f, err := codec.DecodeCustom(r.cur, 4, "IP", codec.FormatIPv4)
	if err := codec.Add(tree, f, err); err != nil {
		return err
	}
	f, err = codec.DecodeUint(r.cur, 2, cursor.BigEndian, "Port")
	return codec.Add(tree, f, err)
}

// entries decodes a table of fixed-size entries filling the rest of the
// cursor. A partial last entry is reported.
func (r reader) entries(dc *dissector.Context, label string, size int, decode func(sub reader) error) error {
	for i := 0; r.cur.Remaining() > 0; i++ {
		at := r.cur.Offset()
		if err := dc.Step(at); err != nil {
			return err
		}
		if r.cur.Remaining() < size {
			avail := r.cur.Remaining()
			_ = r.bytes(avail, "Undecoded")
			return &errors.LengthMismatchError{Offset: at, Declared: size, Available: avail, Reason: "partial " + label}
		}
		t := r.tree.AddTree("", fmt.Sprintf("%s %d", label, i), field.Range{Start: at, Length: size})
		if err := decode(reader{cur: r.cur, tree: t}); err != nil {
			return err
		}
	}
	return nil
}

func dissectBVLC(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	r := reader{cur: cur, tree: tree}
	typeAt := cur.Offset()
	typ, err := r.enum(1, "Type", bvlcTypes, codec.Hex())
	if err != nil {
		return err
	}
	if typ != 0x81 {
		return errors.Malformedf(typeAt, "unsupported BVLC type 0x%02x", typ)
	}
	fn, err := r.enum(1, "Function", functions, codec.Hex())
	if err != nil {
		return err
	}
	lengthAt := cur.Offset()
	length, err := r.uint(2, "BVLC-Length")
	if err != nil {
		return err
	}
	dc.SetInfo("%s", functions.Lookup(fn, "BVLC function 0x%02x"))

	// The length counts the whole BVLL message, header included.
	n := int(length) - bvlcHeaderSize
	if n < 0 {
		return &errors.LengthMismatchError{Offset: lengthAt, Declared: int(length), Available: cur.Remaining() + bvlcHeaderSize, Expected: bvlcHeaderSize, Reason: "length shorter than the BVLC header"}
	}
	if n > cur.Remaining() {
		tree.Diagnose(&errors.LengthMismatchError{Offset: lengthAt, Declared: int(length), Available: cur.Remaining() + bvlcHeaderSize, Reason: "declared length exceeds remaining bytes"}, lengthAt)
		n = cur.Remaining()
	}
	body, _ := cur.Sub(n)
	err = bvlcBody(dc, reader{cur: body, tree: tree}, fn)
	if at := body.Offset(); err == nil && body.Remaining() > 0 {
		tree.Note(field.ReasonTrailingData, at, "%d bytes left in BVLL message", body.Remaining())
	}
	dissector.Undecoded(body, tree)
	_ = cur.Advance(n)
	return err
}

func bvlcBody(dc *dissector.Context, r reader, fn uint64) error {
	switch fn {
	case FuncResult:
		_, err := r.enum(2, "Result", resultCodes, codec.Hex())
		return err
	case FuncWriteBDT, FuncReadBDTAck:
		return r.entries(dc, "BDT Entry", bdtEntrySize, func(e reader) error {
			if err := e.bipAddress(e.tree); err != nil {
				return err
			}
			f, err := codec.DecodeCustom(e.cur, 4, "Mask", codec.FormatIPv4)
			return codec.Add(e.tree, f, err)
		})
	case FuncReadFDTAck:
		return r.entries(dc, "FDT Entry", fdtEntrySize, func(e reader) error {
			if err := e.bipAddress(e.tree); err != nil {
				return err
			}
			if _, err := e.uint(2, "TTL", codec.Unit(" s")); err != nil {
				return err
			}
			_, err := e.uint(2, "Time Remaining", codec.Unit(" s"))
			return err
		})
	case FuncRegisterForeignDevice:
		_, err := r.uint(2, "TTL", codec.Unit(" s"))
		return err
	case FuncDeleteFDTEntry:
		return r.bipAddress(r.tree)
	case FuncForwardedNPDU:
		at := r.cur.Offset()
		orig := r.tree.AddTree("", "Original Source", field.Range{Start: at, Length: bipAddressSize})
		if err := r.bipAddress(orig); err != nil {
			return err
		}
		return npdu(dc, r, fn)
	case FuncDistributeBroadcast, FuncOriginalUnicastNPDU, FuncOriginalBroadcastNPDU:
		return npdu(dc, r, fn)
	}
	if r.cur.Remaining() > 0 {
		return r.bytes(r.cur.Remaining(), "Data")
	}
	return nil
}

// npdu hands the rest of the BVLL message to the function table, then to
// the network layer.
func npdu(dc *dissector.Context, r reader, fn uint64) error {
	if r.cur.Remaining() == 0 {
		return nil
	}
	if _, ok := dc.TryUint(FunctionTable, fn, r.cur, r.tree); ok {
		return nil
	}
	if _, ok := dc.TryString(NPDUTable, NPDUKey, r.cur, r.tree); ok {
		return nil
	}
	dc.CallData(r.cur, r.tree)
	return nil
}
