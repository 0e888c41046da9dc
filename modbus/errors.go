// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "fmt"

// exceptionMeanings maps the standard Modbus exception codes to their
// names as given in the Modbus Application Protocol specification.
var exceptionMeanings = map[byte]string{
	ExceptionCodeIllegalFunction:        "Illegal Function",
	ExceptionCodeIllegalDataAddress:     "Illegal Data Address",
	ExceptionCodeIllegalDataValue:       "Illegal Data Value",
	ExceptionCodeSlaveDeviceFailure:     "Slave Device Failure",
	ExceptionCodeAcknowledge:            "Acknowledge",
	ExceptionCodeSlaveDeviceBusy:        "Slave Device Busy",
	ExceptionCodeNegativeAcknowledge:    "Negative Acknowledge",
	ExceptionCodeMemoryParityError:      "Memory Parity Error",
	ExceptionCodeGatewayPathUnavailable: "Gateway Path Unavailable",
	ExceptionCodeGatewayTargetFailed:    "Gateway Target Device Failed to Respond",
}

// ExceptionError is a Modbus exception response returned by the device.
// FunctionCode is the original request function code (high bit cleared).
type ExceptionError struct {
	FunctionCode  byte
	ExceptionCode byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception %d (%s) on function 0x%02X",
		e.ExceptionCode, e.Meaning(), e.FunctionCode)
}

// Meaning returns the standard name of the exception code, or a
// generic "Device Exception(code)" for codes outside the standard set.
func (e *ExceptionError) Meaning() string {
	if m, ok := exceptionMeanings[e.ExceptionCode]; ok {
		return m
	}
	return fmt.Sprintf("Device Exception(%d)", e.ExceptionCode)
}
