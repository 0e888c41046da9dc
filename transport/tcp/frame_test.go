// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package tcp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ffutop/modbus-mcp/modbus"
)

func TestEncodeReadFrame_RoundTrip(t *testing.T) {
	pdu := modbus.ProtocolDataUnit{
		FunctionCode: 0x03,
		Data:         []byte{0x00, 0x64, 0x00, 0x02},
	}
	adu := NewRequest(0x1234, 17, pdu)

	raw, err := adu.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// TransactionID (0-1), ProtocolID (2-3), Length (4-5), UnitID (6), Func (7)
	want := []byte{0x12, 0x34, 0x00, 0x00, 0x00, 0x06, 0x11, 0x03, 0x00, 0x64, 0x00, 0x02}
	if !bytes.Equal(raw, want) {
		t.Fatalf("Expected %X, got %X", want, raw)
	}

	got, err := ReadFrame(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if got.TransactionID != 0x1234 || got.UnitID != 17 {
		t.Errorf("Header mismatch: tid=%04X unit=%d", got.TransactionID, got.UnitID)
	}
	if got.Pdu.FunctionCode != 0x03 || !bytes.Equal(got.Pdu.Data, pdu.Data) {
		t.Errorf("PDU mismatch: %02X %X", got.Pdu.FunctionCode, got.Pdu.Data)
	}
}

func TestReadFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"nonzero protocol id", []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x02, 0x01, 0x03}},
		{"length too small", []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x01}},
		{"length too large", []byte{0x00, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x03}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.raw))
			var fe *FrameError
			if !errors.As(err, &fe) {
				t.Errorf("Expected FrameError, got %v", err)
			}
		})
	}
}

func TestReadFrame_TruncatedBody(t *testing.T) {
	// Header announces 6 body bytes, only 3 arrive.
	raw := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x02}
	_, err := ReadFrame(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("Expected error on truncated body")
	}
}

func TestEncode_OversizedPDU(t *testing.T) {
	pdu := modbus.ProtocolDataUnit{
		FunctionCode: 0x10,
		Data:         make([]byte, 300),
	}
	adu := NewRequest(1, 1, pdu)
	if _, err := adu.Encode(); err == nil {
		t.Error("Expected error for oversized PDU")
	}
}
