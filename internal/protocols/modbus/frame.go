package modbus

// Modbus TCP (MBAP) framing, used to build ADUs for the decode command and
// for tests.

import "github.com/tonylturner/tlvscope/internal/codec"

// Port is the registered Modbus/TCP port.
const Port = 502

// MBAPHeaderSize is the fixed MBAP header size (7 bytes).
const MBAPHeaderSize = 7

// MaxPDUSize is the maximum Modbus PDU size (253 bytes per spec).
const MaxPDUSize = 253

// ADU is one Modbus/TCP application data unit.
type ADU struct {
	TransactionID uint16       // Client-assigned ID for request/response correlation
	UnitID        uint8        // Slave/unit identifier
	Function      FunctionCode // Function code (bit 7 set = exception)
	Data          []byte       // Function-specific data
}

// Encode frames the ADU with an MBAP header. The length field covers the
// unit ID and the PDU.
func (a ADU) Encode() []byte {
	buf := make([]byte, 0, MBAPHeaderSize+1+len(a.Data))
	buf = codec.AppendUint16(buf, a.TransactionID)
	buf = codec.AppendUint16(buf, 0) // protocol ID
	buf = codec.AppendUint16(buf, uint16(2+len(a.Data)))
	buf = append(buf, a.UnitID, byte(a.Function))
	return append(buf, a.Data...)
}

// Exception builds the exception response to fc.
func Exception(transactionID uint16, unitID uint8, fc FunctionCode, exc ExceptionCode) ADU {
	return ADU{TransactionID: transactionID, UnitID: unitID, Function: fc | exceptionBit, Data: []byte{byte(exc)}}
}

// AddressQuantity builds the data of read requests (FC 0x01-0x04) and of
// write-multiple responses.
func AddressQuantity(addr, quantity uint16) []byte {
	return codec.AppendUint16(codec.AppendUint16(nil, addr), quantity)
}

// WriteMultipleRegisters builds the data payload for FC 0x10.
func WriteMultipleRegisters(addr uint16, values ...uint16) []byte {
	buf := AddressQuantity(addr, uint16(len(values)))
	buf = append(buf, byte(2*len(values)))
	for _, v := range values {
		buf = codec.AppendUint16(buf, v)
	}
	return buf
}

// RegistersResponse builds the data of a read registers response.
func RegistersResponse(values ...uint16) []byte {
	buf := []byte{byte(2 * len(values))}
	for _, v := range values {
		buf = codec.AppendUint16(buf, v)
	}
	return buf
}
