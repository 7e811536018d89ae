// Package modbus decodes Modbus/TCP application data units.
package modbus

import (
	"fmt"

	"github.com/tonylturner/tlvscope/internal/codec"
	"github.com/tonylturner/tlvscope/internal/cursor"
	"github.com/tonylturner/tlvscope/internal/dissector"
	"github.com/tonylturner/tlvscope/internal/errors"
	"github.com/tonylturner/tlvscope/internal/field"
)

// Register binds Modbus/TCP to tcp.port 502.
func Register(b *dissector.Builder) {
	b.AddUint("tcp.port", Port, b.RegisterProtocol("mbtcp", "Modbus/TCP", dissector.HandlerFunc(dissectTCP)))
}

// isResponse guesses the direction from the transport ports. Payloads
// decoded without ports are taken as requests.
func isResponse(dc *dissector.Context) bool {
	p := dc.Ports()
	return p.Set && p.Src == Port && p.Dst != Port
}

type pdu struct {
	cur  *cursor.Cursor
	tree *field.Tree
}

func (p pdu) uint(width int, label string, opts ...codec.Option) (uint64, error) {
	f, err := codec.DecodeUint(p.cur, width, cursor.BigEndian, label, opts...)
	if err := codec.Add(p.tree, f, err); err != nil {
		return 0, err
	}
	return f.Value.(uint64), nil
}

func (p pdu) enum(width int, label string, values codec.ValueMap, opts ...codec.Option) (uint64, error) {
	f, err := codec.DecodeEnum(p.cur, width, cursor.BigEndian, label, values, opts...)
	if err := codec.Add(p.tree, f, err); err != nil {
		return 0, err
	}
	return f.Value.(uint64), nil
}

func (p pdu) bytes(n int, label string) error {
	if n == 0 {
		return nil
	}
	f, err := codec.DecodeFixedBytes(p.cur, n, label)
	return codec.Add(p.tree, f, err)
}

// byteCount reads a byte count and checks it against the bytes that
// follow. A count larger than what is there is reported and the rest of
// the PDU is shown as-is.
func (p pdu) byteCount() (int, error) {
	at := p.cur.Offset()
	n, err := p.uint(1, "Byte Count")
	if err != nil {
		return 0, err
	}
	if int(n) > p.cur.Remaining() {
		avail := p.cur.Remaining()
		_ = p.bytes(avail, "Data")
		return 0, &errors.LengthMismatchError{Offset: at, Declared: int(n), Available: avail, Reason: "byte count exceeds remaining bytes"}
	}
	return int(n), nil
}

func (p pdu) registers(n int, label string) error {
	if n%2 != 0 {
		_ = p.bytes(n, "Data")
		return errors.Malformedf(p.cur.Offset()-n, "odd register byte count %d", n)
	}
	for i := 0; i < n/2; i++ {
		if _, err := p.uint(2, fmt.Sprintf("%s %d", label, i)); err != nil {
			return err
		}
	}
	return nil
}

func dissectTCP(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree) error {
	p := pdu{cur: cur, tree: tree}
	trans, err := p.uint(2, "Transaction Identifier")
	if err != nil {
		return err
	}
	protoAt := cur.Offset()
	proto, err := p.uint(2, "Protocol Identifier")
	if err != nil {
		return err
	}
	if proto != 0 {
		return errors.Malformedf(protoAt, "protocol identifier %d is not Modbus", proto)
	}
	lengthAt := cur.Offset()
	length, err := p.uint(2, "Length")
	if err != nil {
		return err
	}
	unit, err := p.uint(1, "Unit Identifier")
	if err != nil {
		return err
	}

	n := int(length) - 1
	if n < 1 || n > MaxPDUSize {
		return &errors.LengthMismatchError{Offset: lengthAt, Declared: int(length), Available: cur.Remaining() + 1, Reason: "length outside 2..254"}
	}
	if n > cur.Remaining() {
		tree.Diagnose(&errors.LengthMismatchError{Offset: lengthAt, Declared: int(length), Available: cur.Remaining() + 1, Reason: "declared length exceeds remaining bytes"}, lengthAt)
		n = cur.Remaining()
	}
	body, _ := cur.Sub(n)
	err = dissectPDU(dc, body, tree, trans, unit)
	dissector.Undecoded(body, tree)
	_ = cur.Advance(n)
	if err != nil {
		return err
	}
	if cur.Remaining() > 0 {
		tree.Note(field.ReasonTrailingData, cur.Offset(), "%d bytes after the ADU", cur.Remaining())
	}
	return nil
}

func dissectPDU(dc *dissector.Context, cur *cursor.Cursor, tree *field.Tree, trans, unit uint64) error {
	p := pdu{cur: cur, tree: tree}
	fcf, err := codec.DecodeBitGroup(cur, 1, cursor.BigEndian, "Function Code", []codec.Bit{
		{Label: "Exception", Mask: uint64(exceptionBit), Flag: true},
		{Label: "Function", Mask: 0x7F, Values: functionNames},
	})
	if err != nil {
		return err
	}
	fc := FunctionCode(fcf.Value.(uint64))
	fcf.Display = fmt.Sprintf("%s (%d)", fc, uint8(fc&^exceptionBit))
	tree.Add(fcf)

	response := isResponse(dc) || fc.IsException()
	kind := "Query"
	if response {
		kind = "Response"
	}
	dc.SetInfo("%s: Trans: %d; Unit: %d, Func: %d: %s", kind, trans, unit, uint8(fc&^exceptionBit), fc)

	switch {
	case fc.IsException():
		code, err := p.enum(1, "Exception Code", exceptionNames)
		if err != nil {
			return err
		}
		dc.AppendInfo("Exception: %s", ExceptionCode(code))
	case response:
		err = p.response(fc)
	default:
		err = p.request(fc)
	}
	if err == nil && cur.Remaining() > 0 {
		tree.Note(field.ReasonTrailingData, cur.Offset(), "%d bytes left in PDU", cur.Remaining())
	}
	return err
}

func (p pdu) request(fc FunctionCode) error {
	switch fc {
	case FcReadCoils, FcReadDiscreteInputs, FcReadHoldingRegisters, FcReadInputRegisters:
		if _, err := p.uint(2, "Reference Number"); err != nil {
			return err
		}
		_, err := p.uint(2, "Quantity")
		return err
	case FcWriteSingleCoil:
		if _, err := p.uint(2, "Reference Number"); err != nil {
			return err
		}
		_, err := p.enum(2, "Data", coilValues, codec.Hex())
		return err
	case FcWriteSingleRegister:
		if _, err := p.uint(2, "Reference Number"); err != nil {
			return err
		}
		_, err := p.uint(2, "Register Value")
		return err
	case FcWriteMultipleCoils, FcWriteMultipleRegisters:
		if _, err := p.uint(2, "Reference Number"); err != nil {
			return err
		}
		if _, err := p.uint(2, "Quantity"); err != nil {
			return err
		}
		n, err := p.byteCount()
		if err != nil {
			return err
		}
		if fc == FcWriteMultipleRegisters {
			return p.registers(n, "Register")
		}
		return p.bytes(n, "Coil Values")
	case FcMaskWriteRegister:
		for _, label := range []string{"Reference Number", "AND Mask", "OR Mask"} {
			if _, err := p.uint(2, label, codec.Hex()); err != nil {
				return err
			}
		}
		return nil
	case FcReadWriteMultipleRegisters:
		for _, label := range []string{"Read Reference Number", "Read Quantity", "Write Reference Number", "Write Quantity"} {
			if _, err := p.uint(2, label); err != nil {
				return err
			}
		}
		n, err := p.byteCount()
		if err != nil {
			return err
		}
		return p.registers(n, "Register")
	}
	return p.bytes(p.cur.Remaining(), "Data")
}

func (p pdu) response(fc FunctionCode) error {
	switch fc {
	case FcReadCoils, FcReadDiscreteInputs, FcReportSlaveID:
		n, err := p.byteCount()
		if err != nil {
			return err
		}
		return p.bytes(n, "Data")
	case FcReadHoldingRegisters, FcReadInputRegisters, FcReadWriteMultipleRegisters:
		n, err := p.byteCount()
		if err != nil {
			return err
		}
		return p.registers(n, "Register")
	case FcWriteSingleCoil:
		if _, err := p.uint(2, "Reference Number"); err != nil {
			return err
		}
		_, err := p.enum(2, "Data", coilValues, codec.Hex())
		return err
	case FcWriteSingleRegister:
		if _, err := p.uint(2, "Reference Number"); err != nil {
			return err
		}
		_, err := p.uint(2, "Register Value")
		return err
	case FcWriteMultipleCoils, FcWriteMultipleRegisters:
		if _, err := p.uint(2, "Reference Number"); err != nil {
			return err
		}
		_, err := p.uint(2, "Quantity")
		return err
	case FcMaskWriteRegister:
		for _, label := range []string{"Reference Number", "AND Mask", "OR Mask"} {
			if _, err := p.uint(2, label, codec.Hex()); err != nil {
				return err
			}
		}
		return nil
	case FcReadExceptionStatus:
		_, err := p.uint(1, "Exception Status", codec.Hex())
		return err
	}
	return p.bytes(p.cur.Remaining(), "Data")
}
