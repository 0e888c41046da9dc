// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package model holds the simulated device data in memory: the four
// Modbus tables over the full 16-bit address space.
package model

import (
	"encoding/binary"
	"errors"
	"sync"
)

const MaxAddress = 65535

// Table identifies one of the Modbus data tables.
type Table int

const (
	TableCoils Table = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

var (
	ErrAddress = errors.New("model: address range outside the table")
	ErrValue   = errors.New("model: invalid value")
)

// DataModel is a flat memory model. The slices are exported so storage
// backends can rebind them to persistent memory (file or mmap backed);
// all access still goes through the lock-guarded methods.
type DataModel struct {
	mu sync.RWMutex

	// Bit tables, stored one byte per point: 1 (ON) or 0 (OFF).
	Coils          []byte
	DiscreteInputs []byte
	// Word tables.
	HoldingRegisters []uint16
	InputRegisters   []uint16
}

// NewDataModel creates a zeroed model covering the full address space.
func NewDataModel() *DataModel {
	return &DataModel{
		Coils:            make([]byte, MaxAddress+1),
		DiscreteInputs:   make([]byte, MaxAddress+1),
		HoldingRegisters: make([]uint16, MaxAddress+1),
		InputRegisters:   make([]uint16, MaxAddress+1),
	}
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 || int(address)+int(quantity) > MaxAddress+1 {
		return ErrAddress
	}
	return nil
}

func (m *DataModel) bitTable(t Table) []byte {
	if t == TableCoils {
		return m.Coils
	}
	return m.DiscreteInputs
}

func (m *DataModel) wordTable(t Table) []uint16 {
	if t == TableHoldingRegisters {
		return m.HoldingRegisters
	}
	return m.InputRegisters
}

// ReadBits reads a run from a bit table, packed in wire order (LSB of
// the first byte is the first point).
func (m *DataModel) ReadBits(t Table, address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	table := m.bitTable(t)
	packed := make([]byte, (int(quantity)+7)/8)
	for i := 0; i < int(quantity); i++ {
		if table[int(address)+i] != 0 {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	return packed, nil
}

// ReadWords reads a run from a word table as big-endian bytes.
func (m *DataModel) ReadWords(t Table, address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	table := m.wordTable(t)
	data := make([]byte, 2*quantity)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(data[2*i:], table[int(address)+i])
	}
	return data, nil
}

// WriteCoil writes one coil from the FC5 wire value, which must be
// 0xFF00 (ON) or 0x0000 (OFF).
func (m *DataModel) WriteCoil(address, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch value {
	case 0xFF00:
		m.Coils[address] = 1
	case 0x0000:
		m.Coils[address] = 0
	default:
		return ErrValue
	}
	return nil
}

// WriteRegister writes one holding register.
func (m *DataModel) WriteRegister(address, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HoldingRegisters[address] = value
	return nil
}

// WriteCoils writes a run of coils from packed bytes.
func (m *DataModel) WriteCoils(address, quantity uint16, packed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, quantity); err != nil {
		return err
	}
	if len(packed) < (int(quantity)+7)/8 {
		return ErrValue
	}
	for i := 0; i < int(quantity); i++ {
		m.Coils[int(address)+i] = (packed[i/8] >> (i % 8)) & 1
	}
	return nil
}

// WriteRegisters writes a run of holding registers from big-endian bytes.
func (m *DataModel) WriteRegisters(address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, quantity); err != nil {
		return err
	}
	if len(data) < 2*int(quantity) {
		return ErrValue
	}
	for i := 0; i < int(quantity); i++ {
		m.HoldingRegisters[int(address)+i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return nil
}

// Seed helpers for test setups: they bypass the write-only-through-
// protocol restriction on input and discrete tables.

func (m *DataModel) SetInputRegister(address, value uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InputRegisters[address] = value
}

func (m *DataModel) SetDiscreteInput(address uint16, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.DiscreteInputs[address] = 1
	} else {
		m.DiscreteInputs[address] = 0
	}
}

func (m *DataModel) SetHoldingRegister(address, value uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HoldingRegisters[address] = value
}

// HoldingRegister returns one holding register value.
func (m *DataModel) HoldingRegister(address uint16) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HoldingRegisters[address]
}

// Coil returns one coil state.
func (m *DataModel) Coil(address uint16) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Coils[address] != 0
}
