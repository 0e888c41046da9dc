// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"fmt"
	"io"

	"github.com/ffutop/modbus-mcp/modbus"
)

const (
	headerSize = 6 // transaction id + protocol id + length

	// Length field bounds: unit id + function code at minimum,
	// unit id + 253-byte PDU at maximum.
	minLength = 2
	maxLength = 254

	tcpMaxSize = headerSize + maxLength
)

// FrameError reports a malformed or mismatched ADU.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return "modbus tcp: " + e.Reason
}

func frameErrf(format string, args ...any) *FrameError {
	return &FrameError{Reason: fmt.Sprintf(format, args...)}
}

// ApplicationDataUnit is a full Modbus TCP message: MBAP header plus PDU.
type ApplicationDataUnit struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16
	UnitID        byte
	Pdu           modbus.ProtocolDataUnit
}

// NewRequest builds a request ADU around a PDU, computing the length field.
func NewRequest(transactionID uint16, unitID byte, pdu modbus.ProtocolDataUnit) *ApplicationDataUnit {
	return &ApplicationDataUnit{
		TransactionID: transactionID,
		ProtocolID:    0,
		Length:        uint16(2 + len(pdu.Data)), // UnitID + FunctionCode + Data
		UnitID:        unitID,
		Pdu:           pdu,
	}
}

// Encode serializes the ADU for the wire.
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	size := headerSize + 2 + len(adu.Pdu.Data)
	if size > tcpMaxSize {
		return nil, frameErrf("ADU length %d exceeds maximum %d", size, tcpMaxSize)
	}
	raw := make([]byte, size)

	raw[0] = byte(adu.TransactionID >> 8)
	raw[1] = byte(adu.TransactionID)
	raw[2] = byte(adu.ProtocolID >> 8)
	raw[3] = byte(adu.ProtocolID)
	raw[4] = byte(adu.Length >> 8)
	raw[5] = byte(adu.Length)
	raw[6] = adu.UnitID
	raw[7] = adu.Pdu.FunctionCode
	copy(raw[8:], adu.Pdu.Data)

	return raw, nil
}

// ReadFrame reads exactly one ADU from the stream. Modbus TCP has no
// delimiter: the header's length field is authoritative, so the fixed
// header is read first and then exactly the declared remainder. Socket
// read boundaries are never assumed to equal message boundaries.
func ReadFrame(r io.Reader) (*ApplicationDataUnit, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	adu := &ApplicationDataUnit{
		TransactionID: uint16(header[0])<<8 | uint16(header[1]),
		ProtocolID:    uint16(header[2])<<8 | uint16(header[3]),
		Length:        uint16(header[4])<<8 | uint16(header[5]),
	}

	if adu.ProtocolID != 0 {
		return nil, frameErrf("protocol id %d, want 0", adu.ProtocolID)
	}
	if adu.Length < minLength || adu.Length > maxLength {
		return nil, frameErrf("declared length %d outside [%d, %d]", adu.Length, minLength, maxLength)
	}

	payload := make([]byte, adu.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	adu.UnitID = payload[0]
	adu.Pdu.FunctionCode = payload[1]
	adu.Pdu.Data = payload[2:]
	return adu, nil
}
