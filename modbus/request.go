// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

// NewReadRequest builds the PDU shared by FC1, FC2, FC3 and FC4:
// start address followed by quantity.
func NewReadRequest(functionCode byte, address, quantity uint16) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: functionCode,
		Data: []byte{
			byte(address >> 8), byte(address),
			byte(quantity >> 8), byte(quantity),
		},
	}
}

// NewWriteSingleRegisterRequest builds an FC6 PDU.
func NewWriteSingleRegisterRequest(address, value uint16) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: FuncCodeWriteSingleRegister,
		Data: []byte{
			byte(address >> 8), byte(address),
			byte(value >> 8), byte(value),
		},
	}
}

// NewWriteSingleCoilRequest builds an FC5 PDU. The coil value goes on
// the wire as 0xFF00 for on and 0x0000 for off.
func NewWriteSingleCoilRequest(address uint16, on bool) ProtocolDataUnit {
	value := CoilOff
	if on {
		value = CoilOn
	}
	return ProtocolDataUnit{
		FunctionCode: FuncCodeWriteSingleCoil,
		Data: []byte{
			byte(address >> 8), byte(address),
			byte(value >> 8), byte(value),
		},
	}
}

// NewWriteMultipleRegistersRequest builds an FC16 PDU.
func NewWriteMultipleRegistersRequest(address uint16, regs []uint16) ProtocolDataUnit {
	payload := RegistersToBytes(regs)
	data := make([]byte, 5+len(payload))
	data[0] = byte(address >> 8)
	data[1] = byte(address)
	data[2] = byte(len(regs) >> 8)
	data[3] = byte(len(regs))
	data[4] = byte(len(payload))
	copy(data[5:], payload)
	return ProtocolDataUnit{FunctionCode: FuncCodeWriteMultipleRegisters, Data: data}
}

// NewWriteMultipleCoilsRequest builds an FC15 PDU with bit-packed values.
func NewWriteMultipleCoilsRequest(address uint16, values []bool) ProtocolDataUnit {
	packed := PackBits(values)
	data := make([]byte, 5+len(packed))
	data[0] = byte(address >> 8)
	data[1] = byte(address)
	data[2] = byte(len(values) >> 8)
	data[3] = byte(len(values))
	data[4] = byte(len(packed))
	copy(data[5:], packed)
	return ProtocolDataUnit{FunctionCode: FuncCodeWriteMultipleCoils, Data: data}
}

// NewDeviceIdentificationRequest builds an FC43/14 PDU starting at the
// given object id.
func NewDeviceIdentificationRequest(readDeviceIDCode, objectID byte) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: FuncCodeReadDeviceIdentification,
		Data:         []byte{MEITypeDeviceIdentification, readDeviceIDCode, objectID},
	}
}
