// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "fmt"

// PackBits packs coil states into the wire layout used by FC15 and the
// FC1/FC2 responses: LSB of the first byte is the first coil.
func PackBits(values []bool) []byte {
	packed := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	return packed
}

// UnpackBits extracts count coil states from a packed byte slice.
// Bits beyond the end of data read as false.
func UnpackBits(data []byte, count int) []bool {
	values := make([]bool, count)
	for i := range values {
		if i/8 >= len(data) {
			break
		}
		values[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return values
}

// RegistersToBytes serializes registers big-endian, as carried in the
// FC16 request payload.
func RegistersToBytes(regs []uint16) []byte {
	data := make([]byte, 2*len(regs))
	for i, r := range regs {
		data[2*i] = byte(r >> 8)
		data[2*i+1] = byte(r)
	}
	return data
}

// BytesToRegisters parses a big-endian register payload, as carried in
// the FC3/FC4 responses.
func BytesToRegisters(data []byte) ([]uint16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("modbus: register payload length %d is not even", len(data))
	}
	regs := make([]uint16, len(data)/2)
	for i := range regs {
		regs[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return regs, nil
}
