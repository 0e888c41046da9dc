// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package service

import (
	"errors"
	"fmt"
	"net"

	"github.com/ffutop/modbus-mcp/modbus"
	"github.com/ffutop/modbus-mcp/modbus/value"
	"github.com/ffutop/modbus-mcp/transport/tcp"
)

// FaultKind classifies an operation failure. Every operation reports
// through this one taxonomy so callers keep a single error-handling path.
type FaultKind string

const (
	KindConnection      FaultKind = "connection"       // TCP-level failure
	KindTimeout         FaultKind = "timeout"          // no matching response within deadline
	KindFrame           FaultKind = "frame"            // malformed or mismatched ADU
	KindDeviceException FaultKind = "device_exception" // device returned a Modbus exception
	KindValidation      FaultKind = "validation"       // bad parameters, detected before I/O
	KindReadOnly        FaultKind = "read_only"        // write against a read-only class
	KindNotSupported    FaultKind = "not_supported"    // device declines an optional function
	KindEncoding        FaultKind = "encoding"         // value/type mismatch in the codec
)

// Fault carries enough structured detail for a caller to render an
// actionable message without our internal state.
type Fault struct {
	Kind    FaultKind `json:"kind"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`

	// ExceptionCode holds the numeric Modbus exception for
	// device_exception faults, surfaced verbatim.
	ExceptionCode int `json:"exception_code,omitempty"`
}

// Result is the uniform outcome of every operation. Exactly one of Data
// and Fault is set.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Fault   *Fault `json:"error,omitempty"`
}

func success(data any) Result {
	return Result{Success: true, Data: data}
}

func failure(f *Fault) Result {
	return Result{Success: false, Fault: f}
}

func validationFault(param, format string, args ...any) Result {
	return failure(&Fault{Kind: KindValidation, Param: param, Message: fmt.Sprintf(format, args...)})
}

// classify maps a typed error from the protocol engine onto the fault
// taxonomy. Errors never downgrade to success.
func classify(err error) *Fault {
	var ex *modbus.ExceptionError
	if errors.As(err, &ex) {
		return &Fault{
			Kind:          KindDeviceException,
			Message:       fmt.Sprintf("device returned exception %d: %s", ex.ExceptionCode, ex.Meaning()),
			ExceptionCode: int(ex.ExceptionCode),
		}
	}

	var fe *tcp.FrameError
	if errors.As(err, &fe) {
		return &Fault{Kind: KindFrame, Message: err.Error()}
	}

	var te *tcp.TimeoutError
	if errors.As(err, &te) {
		return &Fault{Kind: KindTimeout, Message: err.Error()}
	}

	var re *value.RangeError
	if errors.As(err, &re) {
		return &Fault{Kind: KindEncoding, Message: err.Error(), Param: "value"}
	}
	if errors.Is(err, value.ErrRegisterCount) {
		return &Fault{Kind: KindEncoding, Message: err.Error()}
	}

	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return &Fault{Kind: KindTimeout, Message: err.Error()}
	}

	// ConnectError, ErrNotConnected and anything else from the socket.
	return &Fault{Kind: KindConnection, Message: err.Error()}
}
