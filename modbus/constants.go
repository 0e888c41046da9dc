// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

// Function Codes
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10

	FuncCodeReadDeviceIdentification = 0x2B
)

// MEITypeDeviceIdentification is the MEI type carried by FC 0x2B for the
// Read Device Identification sub-function.
const MEITypeDeviceIdentification = 0x0E

// Read Device ID codes (FC 0x2B / MEI 0x0E).
const (
	ReadDeviceIDBasic    = 0x01
	ReadDeviceIDRegular  = 0x02
	ReadDeviceIDExtended = 0x03
	ReadDeviceIDSpecific = 0x04
)

// Exception Codes
const (
	ExceptionCodeIllegalFunction        = 0x01
	ExceptionCodeIllegalDataAddress     = 0x02
	ExceptionCodeIllegalDataValue       = 0x03
	ExceptionCodeSlaveDeviceFailure     = 0x04
	ExceptionCodeAcknowledge            = 0x05
	ExceptionCodeSlaveDeviceBusy        = 0x06
	ExceptionCodeNegativeAcknowledge    = 0x07
	ExceptionCodeMemoryParityError      = 0x08
	ExceptionCodeGatewayPathUnavailable = 0x0A
	ExceptionCodeGatewayTargetFailed    = 0x0B
)

// Protocol quantity limits.
const (
	MaxReadRegisters  = 125  // FC3/FC4 quantity ceiling
	MaxReadBits       = 2000 // FC1/FC2 quantity ceiling
	MaxWriteRegisters = 123  // FC16 quantity ceiling
	MaxWriteBits      = 1968 // FC15 quantity ceiling
)

// Coil write values for FC5.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)
