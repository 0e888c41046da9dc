// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package service

import "fmt"

// RegisterType is the closed set of Modbus register classes.
type RegisterType int

const (
	RegisterHolding RegisterType = iota // FC3 read, FC6/FC16 write
	RegisterInput                       // FC4 read only
	RegisterCoil                        // FC1 read, FC5/FC15 write
	RegisterDiscrete                    // FC2 read only
)

// ParseRegisterType resolves a register type tag, rejecting unknown tags
// at the boundary.
func ParseRegisterType(s string) (RegisterType, error) {
	switch s {
	case "holding":
		return RegisterHolding, nil
	case "input":
		return RegisterInput, nil
	case "coil":
		return RegisterCoil, nil
	case "discrete":
		return RegisterDiscrete, nil
	default:
		return 0, fmt.Errorf("unknown register type %q", s)
	}
}

func (t RegisterType) String() string {
	switch t {
	case RegisterHolding:
		return "holding"
	case RegisterInput:
		return "input"
	case RegisterCoil:
		return "coil"
	case RegisterDiscrete:
		return "discrete"
	default:
		return fmt.Sprintf("RegisterType(%d)", int(t))
	}
}

// Bit reports whether the class addresses single bits rather than
// 16-bit registers.
func (t RegisterType) Bit() bool {
	return t == RegisterCoil || t == RegisterDiscrete
}

// Writable reports whether the class accepts writes.
func (t RegisterType) Writable() bool {
	return t == RegisterHolding || t == RegisterCoil
}

// ConnectParams are the inputs of the connect operation. Timeout is in
// seconds; zero values take the configured defaults.
type ConnectParams struct {
	Host    string  `json:"host"`
	Port    int     `json:"port"`
	Timeout float64 `json:"timeout"`
	UnitID  int     `json:"unit_id"`
}

// ReadParams are the inputs of the read_registers operation.
type ReadParams struct {
	Host         string `json:"host"`
	RegisterType string `json:"register_type"`
	StartAddress int    `json:"start_address"`
	Count        int    `json:"count"`
	DataType     string `json:"data_type"`
	Port         int    `json:"port"`
	UnitID       int    `json:"unit_id"`
}

// WriteParams are the inputs of the write_register operation. Value is
// either a JSON number or a JSON bool.
type WriteParams struct {
	Host         string `json:"host"`
	Address      int    `json:"address"`
	Value        any    `json:"value"`
	RegisterType string `json:"register_type"`
	DataType     string `json:"data_type"`
	Port         int    `json:"port"`
	UnitID       int    `json:"unit_id"`
}

// WriteMultipleParams are the inputs of the write_multiple_registers
// operation.
type WriteMultipleParams struct {
	Host         string `json:"host"`
	StartAddress int    `json:"start_address"`
	Values       []any  `json:"values"`
	RegisterType string `json:"register_type"`
	DataType     string `json:"data_type"`
	Port         int    `json:"port"`
	UnitID       int    `json:"unit_id"`
}

// DeviceInfoParams are the inputs of the device_info operation.
type DeviceInfoParams struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	UnitID int    `json:"unit_id"`
}

// DiagnosticsParams are the inputs of the diagnostics operation.
// TestRead defaults to the configured value; use a pointer so an absent
// field is distinguishable from an explicit false.
type DiagnosticsParams struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	UnitID   int    `json:"unit_id"`
	TestRead *bool  `json:"test_read"`
}

// DisconnectParams are the inputs of the disconnect operation.
type DisconnectParams struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ConnectReport is the data payload of a successful connect.
type ConnectReport struct {
	Device  string  `json:"device"`
	UnitID  int     `json:"unit_id"`
	Status  string  `json:"status"`
	Timeout float64 `json:"timeout"`
}

// ReadValue is one decoded element of a read.
type ReadValue struct {
	Address int `json:"address"`
	Raw     any `json:"raw_value"`
	Decoded any `json:"decoded_value"`
}

// ReadReport is the data payload of a successful read_registers.
type ReadReport struct {
	Device       string      `json:"device"`
	RegisterType string      `json:"register_type"`
	StartAddress int         `json:"start_address"`
	Count        int         `json:"count"`
	DataType     string      `json:"data_type"`
	Values       []ReadValue `json:"values"`
}

// WriteReport is the data payload of a successful write.
type WriteReport struct {
	Device       string `json:"device"`
	RegisterType string `json:"register_type"`
	Address      int    `json:"address"`
	Count        int    `json:"count,omitempty"`
	DataType     string `json:"data_type"`
	Written      any    `json:"value_written"`
}

// DeviceInfoReport is the data payload of a successful device_info.
type DeviceInfoReport struct {
	Device      string            `json:"device"`
	UnitID      int               `json:"unit_id"`
	Conformity  string            `json:"conformity"`
	Information map[string]string `json:"information"`
}

// DiagnosticCheck is one entry of a diagnostics run.
type DiagnosticCheck struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"` // PASS, PARTIAL or FAIL
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Details   string  `json:"details"`
}

// DiagnosticsReport aggregates per-check results; partial failures are
// reported here, never raised.
type DiagnosticsReport struct {
	Device    string            `json:"device"`
	UnitID    int               `json:"unit_id"`
	Healthy   bool              `json:"healthy"`
	ElapsedMs float64           `json:"elapsed_ms"`
	Checks    []DiagnosticCheck `json:"checks"`
}

// DisconnectReport is the data payload of a disconnect.
type DisconnectReport struct {
	Device   string `json:"device"`
	Released bool   `json:"released"`
}

// Diagnostic check statuses.
const (
	CheckPass    = "PASS"
	CheckPartial = "PARTIAL"
	CheckFail    = "FAIL"
)
