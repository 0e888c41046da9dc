// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package modbus

import (
	"bytes"
	"testing"
)

func TestPackUnpackBits(t *testing.T) {
	values := []bool{true, false, true, false, false, false, false, false, true}
	packed := PackBits(values)
	if !bytes.Equal(packed, []byte{0x05, 0x01}) {
		t.Fatalf("Expected 0501, got %X", packed)
	}
	back := UnpackBits(packed, len(values))
	for i := range values {
		if back[i] != values[i] {
			t.Errorf("Bit %d: expected %v, got %v", i, values[i], back[i])
		}
	}
}

func TestRegistersBytes(t *testing.T) {
	regs := []uint16{0x1234, 0x5678}
	data := RegistersToBytes(regs)
	if !bytes.Equal(data, []byte{0x12, 0x34, 0x56, 0x78}) {
		t.Fatalf("Expected 12345678, got %X", data)
	}
	back, err := BytesToRegisters(data)
	if err != nil {
		t.Fatalf("BytesToRegisters failed: %v", err)
	}
	if len(back) != 2 || back[0] != 0x1234 || back[1] != 0x5678 {
		t.Errorf("Round trip mismatch: %04X", back)
	}

	if _, err := BytesToRegisters([]byte{0x12, 0x34, 0x56}); err == nil {
		t.Error("Expected error for odd payload length")
	}
}

func TestRequestPDUs(t *testing.T) {
	pdu := NewReadRequest(FuncCodeReadHoldingRegisters, 100, 2)
	if pdu.FunctionCode != 0x03 || !bytes.Equal(pdu.Data, []byte{0x00, 0x64, 0x00, 0x02}) {
		t.Errorf("Unexpected read request: %02X %X", pdu.FunctionCode, pdu.Data)
	}

	pdu = NewWriteSingleCoilRequest(10, true)
	if !bytes.Equal(pdu.Data, []byte{0x00, 0x0A, 0xFF, 0x00}) {
		t.Errorf("Coil ON must go on the wire as FF00, got %X", pdu.Data)
	}
	pdu = NewWriteSingleCoilRequest(10, false)
	if !bytes.Equal(pdu.Data, []byte{0x00, 0x0A, 0x00, 0x00}) {
		t.Errorf("Coil OFF must go on the wire as 0000, got %X", pdu.Data)
	}

	pdu = NewWriteMultipleRegistersRequest(200, []uint16{0x0102, 0x0304})
	want := []byte{0x00, 0xC8, 0x00, 0x02, 0x04, 0x01, 0x02, 0x03, 0x04}
	if pdu.FunctionCode != FuncCodeWriteMultipleRegisters || !bytes.Equal(pdu.Data, want) {
		t.Errorf("Unexpected FC16 request: %X", pdu.Data)
	}

	pdu = NewWriteMultipleCoilsRequest(0, []bool{true, false, true})
	want = []byte{0x00, 0x00, 0x00, 0x03, 0x01, 0x05}
	if pdu.FunctionCode != FuncCodeWriteMultipleCoils || !bytes.Equal(pdu.Data, want) {
		t.Errorf("Unexpected FC15 request: %X", pdu.Data)
	}
}

func TestExceptionError_Meaning(t *testing.T) {
	tests := []struct {
		code byte
		want string
	}{
		{ExceptionCodeIllegalFunction, "Illegal Function"},
		{ExceptionCodeIllegalDataAddress, "Illegal Data Address"},
		{ExceptionCodeGatewayTargetFailed, "Gateway Target Device Failed to Respond"},
		{9, "Device Exception(9)"}, // reserved, no standard name
		{42, "Device Exception(42)"},
	}
	for _, tt := range tests {
		e := &ExceptionError{FunctionCode: 0x03, ExceptionCode: tt.code}
		if got := e.Meaning(); got != tt.want {
			t.Errorf("Code %d: expected %q, got %q", tt.code, tt.want, got)
		}
	}
}

func TestParseDeviceIdentification(t *testing.T) {
	// Conformity 0x01, no continuation, two objects.
	data := []byte{
		MEITypeDeviceIdentification, ReadDeviceIDBasic, 0x01, 0x00, 0x00, 0x02,
		0x00, 0x06, 'f', 'f', 'u', 't', 'o', 'p',
		0x01, 0x03, 'a', 'b', 'c',
	}
	ident, err := ParseDeviceIdentification(ProtocolDataUnit{FunctionCode: FuncCodeReadDeviceIdentification, Data: data})
	if err != nil {
		t.Fatalf("ParseDeviceIdentification failed: %v", err)
	}
	if ident.MoreFollows {
		t.Error("Expected no continuation")
	}
	if len(ident.Objects) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(ident.Objects))
	}
	if ident.Objects[0].Name() != "VendorName" || ident.Objects[0].Value != "ffutop" {
		t.Errorf("Unexpected object 0: %+v", ident.Objects[0])
	}
	if ident.Objects[1].Name() != "ProductCode" || ident.Objects[1].Value != "abc" {
		t.Errorf("Unexpected object 1: %+v", ident.Objects[1])
	}
}

func TestParseDeviceIdentification_Continuation(t *testing.T) {
	data := []byte{
		MEITypeDeviceIdentification, ReadDeviceIDBasic, 0x01, 0xFF, 0x02, 0x01,
		0x00, 0x01, 'x',
	}
	ident, err := ParseDeviceIdentification(ProtocolDataUnit{FunctionCode: FuncCodeReadDeviceIdentification, Data: data})
	if err != nil {
		t.Fatalf("ParseDeviceIdentification failed: %v", err)
	}
	if !ident.MoreFollows || ident.NextObjectID != 2 {
		t.Errorf("Expected continuation at object 2, got %+v", ident)
	}
}

func TestParseDeviceIdentification_Malformed(t *testing.T) {
	malformed := [][]byte{
		{MEITypeDeviceIdentification, ReadDeviceIDBasic, 0x01},             // too short
		{0x0F, ReadDeviceIDBasic, 0x01, 0x00, 0x00, 0x00},                  // wrong MEI type
		{MEITypeDeviceIdentification, ReadDeviceIDBasic, 0x01, 0x00, 0x00, 0x01, 0x00, 0x09, 'x'}, // truncated value
	}
	for i, data := range malformed {
		if _, err := ParseDeviceIdentification(ProtocolDataUnit{Data: data}); err == nil {
			t.Errorf("Case %d: expected parse error", i)
		}
	}
}

func TestIsException(t *testing.T) {
	if (ProtocolDataUnit{FunctionCode: 0x03}).IsException() {
		t.Error("0x03 is not an exception")
	}
	if !(ProtocolDataUnit{FunctionCode: 0x83}).IsException() {
		t.Error("0x83 is an exception")
	}
}
