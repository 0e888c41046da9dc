// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package value converts between raw 16-bit register words and typed
// values. 32-bit types span two consecutive registers, most-significant
// word first; each word is itself big-endian on the wire.
package value

import (
	"errors"
	"fmt"
	"math"
)

// Type enumerates the supported data types for register interpretation.
type Type int

const (
	Uint16 Type = iota
	Int16
	Uint32
	Int32
	Float32
	Bool
)

// ErrRegisterCount is returned by Decode when the register slice does
// not match the width of the requested type.
var ErrRegisterCount = errors.New("value: register count does not match data type width")

// RangeError reports a value that cannot be represented in the target type.
type RangeError struct {
	Value float64
	Type  Type
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("value: %v out of range for %s", e.Value, e.Type)
}

// ParseType resolves a data type tag. Unknown tags are rejected here so
// the rest of the codec can match exhaustively.
func ParseType(s string) (Type, error) {
	switch s {
	case "uint16":
		return Uint16, nil
	case "int16":
		return Int16, nil
	case "uint32":
		return Uint32, nil
	case "int32":
		return Int32, nil
	case "float32":
		return Float32, nil
	case "bool":
		return Bool, nil
	default:
		return 0, fmt.Errorf("value: unknown data type %q", s)
	}
}

func (t Type) String() string {
	switch t {
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Registers returns the number of 16-bit registers one value occupies.
func (t Type) Registers() int {
	switch t {
	case Uint32, Int32, Float32:
		return 2
	default:
		return 1
	}
}

// Encode converts a value to its register representation. Numeric input
// arrives as float64 (the tool boundary is JSON); integer types reject
// non-integral input.
func Encode(v float64, t Type) ([]uint16, error) {
	switch t {
	case Uint16:
		if v != math.Trunc(v) || v < 0 || v > math.MaxUint16 {
			return nil, &RangeError{Value: v, Type: t}
		}
		return []uint16{uint16(v)}, nil
	case Int16:
		if v != math.Trunc(v) || v < math.MinInt16 || v > math.MaxInt16 {
			return nil, &RangeError{Value: v, Type: t}
		}
		return []uint16{uint16(int16(v))}, nil
	case Uint32:
		if v != math.Trunc(v) || v < 0 || v > math.MaxUint32 {
			return nil, &RangeError{Value: v, Type: t}
		}
		u := uint32(v)
		return []uint16{uint16(u >> 16), uint16(u)}, nil
	case Int32:
		if v != math.Trunc(v) || v < math.MinInt32 || v > math.MaxInt32 {
			return nil, &RangeError{Value: v, Type: t}
		}
		u := uint32(int32(v))
		return []uint16{uint16(u >> 16), uint16(u)}, nil
	case Float32:
		if !math.IsInf(v, 0) && math.IsInf(float64(float32(v)), 0) {
			return nil, &RangeError{Value: v, Type: t}
		}
		u := math.Float32bits(float32(v))
		return []uint16{uint16(u >> 16), uint16(u)}, nil
	case Bool:
		if v != 0 {
			return []uint16{1}, nil
		}
		return []uint16{0}, nil
	default:
		return nil, fmt.Errorf("value: unknown data type %v", t)
	}
}

// Decode converts registers back to a typed value. The register count
// must equal t.Registers().
func Decode(regs []uint16, t Type) (any, error) {
	if len(regs) != t.Registers() {
		return nil, fmt.Errorf("%w: got %d registers for %s", ErrRegisterCount, len(regs), t)
	}
	switch t {
	case Uint16:
		return regs[0], nil
	case Int16:
		return int16(regs[0]), nil
	case Uint32:
		return uint32(regs[0])<<16 | uint32(regs[1]), nil
	case Int32:
		return int32(uint32(regs[0])<<16 | uint32(regs[1])), nil
	case Float32:
		return math.Float32frombits(uint32(regs[0])<<16 | uint32(regs[1])), nil
	case Bool:
		return regs[0] != 0, nil
	default:
		return nil, fmt.Errorf("value: unknown data type %v", t)
	}
}
