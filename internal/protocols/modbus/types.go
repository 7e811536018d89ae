package modbus

// Modbus function and exception codes.

import "github.com/tonylturner/tlvscope/internal/codec"

// FunctionCode is a Modbus function code. Bit 7 marks an exception response.
type FunctionCode uint8

const (
	// Bit access
	FcReadCoils          FunctionCode = 0x01 // Read 1-2000 coils
	FcReadDiscreteInputs FunctionCode = 0x02 // Read 1-2000 discrete inputs

	// 16-bit register access
	FcReadHoldingRegisters FunctionCode = 0x03 // Read 1-125 holding registers
	FcReadInputRegisters   FunctionCode = 0x04 // Read 1-125 input registers

	// Single write
	FcWriteSingleCoil     FunctionCode = 0x05 // Write a single coil (ON/OFF)
	FcWriteSingleRegister FunctionCode = 0x06 // Write a single holding register

	// Multiple write
	FcWriteMultipleCoils     FunctionCode = 0x0F // Write 1-1968 coils
	FcWriteMultipleRegisters FunctionCode = 0x10 // Write 1-123 holding registers

	// Read-write
	FcMaskWriteRegister          FunctionCode = 0x16 // Mask write to a holding register
	FcReadWriteMultipleRegisters FunctionCode = 0x17 // Read+write in a single transaction

	// Diagnostics
	FcReadExceptionStatus FunctionCode = 0x07
	FcDiagnostics         FunctionCode = 0x08
	FcReportSlaveID       FunctionCode = 0x11
)

// exceptionBit is set in the function code of exception responses.
const exceptionBit FunctionCode = 0x80

var functionNames = codec.ValueMap{
	uint64(FcReadCoils):                  "Read Coils",
	uint64(FcReadDiscreteInputs):         "Read Discrete Inputs",
	uint64(FcReadHoldingRegisters):       "Read Holding Registers",
	uint64(FcReadInputRegisters):         "Read Input Registers",
	uint64(FcWriteSingleCoil):            "Write Single Coil",
	uint64(FcWriteSingleRegister):        "Write Single Register",
	uint64(FcReadExceptionStatus):        "Read Exception Status",
	uint64(FcDiagnostics):                "Diagnostics",
	uint64(FcWriteMultipleCoils):         "Write Multiple Coils",
	uint64(FcWriteMultipleRegisters):     "Write Multiple Registers",
	uint64(FcReportSlaveID):              "Report Slave ID",
	uint64(FcMaskWriteRegister):          "Mask Write Register",
	uint64(FcReadWriteMultipleRegisters): "Read Write Multiple Registers",
}

// String returns a human-readable name for the function code.
func (fc FunctionCode) String() string {
	return functionNames.Lookup(uint64(fc&^exceptionBit), "Unknown")
}

// IsException reports whether bit 7 is set.
func (fc FunctionCode) IsException() bool { return fc&exceptionBit != 0 }

// IsKnownFunction returns true for recognized Modbus function codes.
func IsKnownFunction(fc FunctionCode) bool {
	return functionNames.Has(uint64(fc))
}

// ExceptionCode is the single data byte of an exception response.
type ExceptionCode uint8

const (
	ExceptionIllegalFunction    ExceptionCode = 0x01
	ExceptionIllegalDataAddress ExceptionCode = 0x02
	ExceptionIllegalDataValue   ExceptionCode = 0x03
	ExceptionSlaveDeviceFailure ExceptionCode = 0x04
	ExceptionAcknowledge        ExceptionCode = 0x05
	ExceptionSlaveDeviceBusy    ExceptionCode = 0x06
	ExceptionGatewayPathUnavail ExceptionCode = 0x0A
	ExceptionGatewayTargetFail  ExceptionCode = 0x0B
)

var exceptionNames = codec.ValueMap{
	uint64(ExceptionIllegalFunction):    "Illegal function",
	uint64(ExceptionIllegalDataAddress): "Illegal data address",
	uint64(ExceptionIllegalDataValue):   "Illegal data value",
	uint64(ExceptionSlaveDeviceFailure): "Slave device failure",
	uint64(ExceptionAcknowledge):        "Acknowledge",
	uint64(ExceptionSlaveDeviceBusy):    "Slave device busy",
	uint64(ExceptionGatewayPathUnavail): "Gateway path unavailable",
	uint64(ExceptionGatewayTargetFail):  "Gateway target device failed to respond",
}

// String returns a human-readable name for the exception code.
func (e ExceptionCode) String() string {
	return exceptionNames.Lookup(uint64(e), "Unknown")
}

var coilValues = codec.ValueMap{0x0000: "OFF", 0xFF00: "ON"}
