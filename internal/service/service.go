// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package service implements the seven device operations on top of the
// connection pool, transport and codec. Every operation validates its
// parameters before touching the network and reports through the same
// Result shape.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/ffutop/modbus-mcp/internal/config"
	"github.com/ffutop/modbus-mcp/internal/pool"
	"github.com/ffutop/modbus-mcp/modbus"
	"github.com/ffutop/modbus-mcp/modbus/value"
	"github.com/ffutop/modbus-mcp/transport/tcp"
)

const maxConnectTimeout = 60 // seconds

// Service composes pool, transport and codec into the tool operations.
type Service struct {
	pool *pool.Pool
	cfg  *config.Config
}

// New creates a Service around an injected pool and configuration.
func New(p *pool.Pool, cfg *config.Config) *Service {
	return &Service{pool: p, cfg: cfg}
}

func (s *Service) port(p int) int {
	if p == 0 {
		return s.cfg.DefaultPort
	}
	return p
}

func deviceAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// toNumber coerces a JSON-decoded value to float64. Booleans map to
// 0/1 so coil-ish writes through numeric types behave as the device
// would treat them.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint16:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	default:
		n, ok := toNumber(v)
		return n != 0, ok
	}
}

// validateTarget covers the parameters every operation shares.
func validateTarget(host string, port, unit int) *Fault {
	if host == "" {
		return &Fault{Kind: KindValidation, Param: "host", Message: "host is required"}
	}
	if port < 1 || port > 65535 {
		return &Fault{Kind: KindValidation, Param: "port", Message: fmt.Sprintf("port %d out of range [1, 65535]", port)}
	}
	if unit < 0 || unit > 255 {
		return &Fault{Kind: KindValidation, Param: "unit_id", Message: fmt.Sprintf("unit_id %d out of range [0, 255]", unit)}
	}
	return nil
}

func (s *Service) acquire(ctx context.Context, host string, port int) (*tcp.Conn, error) {
	return s.pool.GetOrCreate(ctx, host, port, s.cfg.RequestTimeout)
}

// Connect establishes (or reuses) the pooled connection and probes the
// device with a one-register read to report how it responds.
func (s *Service) Connect(ctx context.Context, p ConnectParams) Result {
	port := s.port(p.Port)
	if f := validateTarget(p.Host, port, p.UnitID); f != nil {
		return failure(f)
	}
	if p.Timeout < 0 || p.Timeout > maxConnectTimeout {
		return validationFault("timeout", "timeout %v out of range (0, %d] seconds", p.Timeout, maxConnectTimeout)
	}
	timeout := s.cfg.ConnectTimeout
	if p.Timeout > 0 {
		timeout = time.Duration(p.Timeout * float64(time.Second))
	}

	conn, err := s.pool.GetOrCreate(ctx, p.Host, port, timeout)
	if err != nil {
		return failure(classify(err))
	}

	status := "connected and responding"
	_, err = conn.Execute(ctx, byte(p.UnitID), modbus.NewReadRequest(modbus.FuncCodeReadHoldingRegisters, 0, 1))
	if err != nil {
		if _, ok := errAsException(err); ok {
			// Some devices reject address 0; the connection itself is fine.
			status = "connected (device returned exception to test read)"
		} else {
			status = "connected (test read failed)"
		}
	}

	return success(ConnectReport{
		Device:  deviceAddr(p.Host, port),
		UnitID:  p.UnitID,
		Status:  status,
		Timeout: timeout.Seconds(),
	})
}

// ReadRegisters reads and decodes a run of registers or coils.
func (s *Service) ReadRegisters(ctx context.Context, p ReadParams) Result {
	port := s.port(p.Port)
	if f := validateTarget(p.Host, port, p.UnitID); f != nil {
		return failure(f)
	}

	regType, err := ParseRegisterType(p.RegisterType)
	if err != nil {
		return validationFault("register_type", "%v", err)
	}
	dataType, f := parseDataType(p.DataType)
	if f != nil {
		return failure(f)
	}
	if p.StartAddress < 0 || p.StartAddress > 65535 {
		return validationFault("start_address", "start_address %d out of range [0, 65535]", p.StartAddress)
	}
	if p.Count < 1 {
		return validationFault("count", "count must be at least 1")
	}

	width := dataType.Registers()
	var quantity int
	if regType.Bit() {
		// Coils and discrete inputs are 1 bit per element; multi-register
		// types have no meaning there.
		if width != 1 {
			return validationFault("data_type", "data type %s cannot be read from %s registers", dataType, regType)
		}
		if p.Count > modbus.MaxReadBits {
			return validationFault("count", "count %d exceeds %d for %s registers", p.Count, modbus.MaxReadBits, regType)
		}
		quantity = p.Count
	} else {
		maxValues := modbus.MaxReadRegisters / width
		if p.Count > maxValues {
			return validationFault("count", "count %d exceeds %d for %s values of type %s", p.Count, maxValues, regType, dataType)
		}
		quantity = p.Count * width
	}
	if p.StartAddress+quantity > 65536 {
		return validationFault("count", "read of %d elements at %d passes the end of the address space", quantity, p.StartAddress)
	}

	conn, err := s.acquire(ctx, p.Host, port)
	if err != nil {
		return failure(classify(err))
	}

	var fc byte
	switch regType {
	case RegisterCoil:
		fc = modbus.FuncCodeReadCoils
	case RegisterDiscrete:
		fc = modbus.FuncCodeReadDiscreteInputs
	case RegisterHolding:
		fc = modbus.FuncCodeReadHoldingRegisters
	case RegisterInput:
		fc = modbus.FuncCodeReadInputRegisters
	}

	resp, err := conn.Execute(ctx, byte(p.UnitID), modbus.NewReadRequest(fc, uint16(p.StartAddress), uint16(quantity)))
	if err != nil {
		return failure(classify(err))
	}
	payload, f := readPayload(resp)
	if f != nil {
		return failure(f)
	}

	report := ReadReport{
		Device:       deviceAddr(p.Host, port),
		RegisterType: regType.String(),
		StartAddress: p.StartAddress,
		Count:        p.Count,
		DataType:     dataType.String(),
	}

	if regType.Bit() {
		for i, v := range modbus.UnpackBits(payload, p.Count) {
			raw := 0
			if v {
				raw = 1
			}
			report.Values = append(report.Values, ReadValue{
				Address: p.StartAddress + i,
				Raw:     raw,
				Decoded: v,
			})
		}
		return success(report)
	}

	regs, err := modbus.BytesToRegisters(payload)
	if err != nil {
		return failure(&Fault{Kind: KindFrame, Message: err.Error()})
	}
	if len(regs) < quantity {
		return failure(&Fault{Kind: KindFrame, Message: fmt.Sprintf("device returned %d registers, want %d", len(regs), quantity)})
	}
	for i := 0; i < p.Count; i++ {
		window := regs[i*width : (i+1)*width]
		decoded, err := value.Decode(window, dataType)
		if err != nil {
			return failure(classify(err))
		}
		var raw any = window[0]
		if width == 2 {
			raw = []uint16{window[0], window[1]}
		}
		report.Values = append(report.Values, ReadValue{
			Address: p.StartAddress + i*width,
			Raw:     raw,
			Decoded: decoded,
		})
	}
	return success(report)
}

// WriteRegister writes one value to a holding register or coil. A
// two-register data type goes out as FC16; everything else as FC6/FC5.
func (s *Service) WriteRegister(ctx context.Context, p WriteParams) Result {
	port := s.port(p.Port)
	if f := validateTarget(p.Host, port, p.UnitID); f != nil {
		return failure(f)
	}
	regType, f := parseWritableType(p.RegisterType)
	if f != nil {
		return failure(f)
	}
	dataType, f := parseDataType(p.DataType)
	if f != nil {
		return failure(f)
	}
	if p.Address < 0 || p.Address > 65535 {
		return validationFault("address", "address %d out of range [0, 65535]", p.Address)
	}

	var req modbus.ProtocolDataUnit
	var written any
	count := 1
	if regType == RegisterCoil {
		on, ok := toBool(p.Value)
		if !ok {
			return validationFault("value", "value %v is not a boolean or number", p.Value)
		}
		req = modbus.NewWriteSingleCoilRequest(uint16(p.Address), on)
		written = on
	} else {
		n, ok := toNumber(p.Value)
		if !ok {
			return validationFault("value", "value %v is not a number", p.Value)
		}
		regs, err := value.Encode(n, dataType)
		if err != nil {
			return failure(classify(err))
		}
		if len(regs) == 1 {
			req = modbus.NewWriteSingleRegisterRequest(uint16(p.Address), regs[0])
		} else {
			if p.Address+len(regs) > 65536 {
				return validationFault("address", "write of %d registers at %d passes the end of the address space", len(regs), p.Address)
			}
			req = modbus.NewWriteMultipleRegistersRequest(uint16(p.Address), regs)
			count = len(regs)
		}
		written = p.Value
	}

	conn, err := s.acquire(ctx, p.Host, port)
	if err != nil {
		return failure(classify(err))
	}
	resp, err := conn.Execute(ctx, byte(p.UnitID), req)
	if err != nil {
		return failure(classify(err))
	}
	if len(resp.Data) != 4 {
		return failure(&Fault{Kind: KindFrame, Message: fmt.Sprintf("write echo carries %d bytes, want 4", len(resp.Data))})
	}

	return success(WriteReport{
		Device:       deviceAddr(p.Host, port),
		RegisterType: regType.String(),
		Address:      p.Address,
		Count:        count,
		DataType:     dataType.String(),
		Written:      written,
	})
}

// WriteMultipleRegisters writes a run of values as FC16 or FC15.
func (s *Service) WriteMultipleRegisters(ctx context.Context, p WriteMultipleParams) Result {
	port := s.port(p.Port)
	if f := validateTarget(p.Host, port, p.UnitID); f != nil {
		return failure(f)
	}
	regType, f := parseWritableType(p.RegisterType)
	if f != nil {
		return failure(f)
	}
	dataType, f := parseDataType(p.DataType)
	if f != nil {
		return failure(f)
	}
	if p.StartAddress < 0 || p.StartAddress > 65535 {
		return validationFault("start_address", "start_address %d out of range [0, 65535]", p.StartAddress)
	}
	if len(p.Values) == 0 {
		return validationFault("values", "values must not be empty")
	}

	var req modbus.ProtocolDataUnit
	var quantity int
	if regType == RegisterCoil {
		if len(p.Values) > modbus.MaxWriteBits {
			return validationFault("values", "%d values exceed %d for coils", len(p.Values), modbus.MaxWriteBits)
		}
		coils := make([]bool, len(p.Values))
		for i, v := range p.Values {
			on, ok := toBool(v)
			if !ok {
				return validationFault("values", "values[%d] %v is not a boolean or number", i, v)
			}
			coils[i] = on
		}
		quantity = len(coils)
		if p.StartAddress+quantity > 65536 {
			return validationFault("values", "write of %d coils at %d passes the end of the address space", quantity, p.StartAddress)
		}
		req = modbus.NewWriteMultipleCoilsRequest(uint16(p.StartAddress), coils)
	} else {
		width := dataType.Registers()
		if len(p.Values) > modbus.MaxWriteRegisters || len(p.Values)*width > modbus.MaxWriteRegisters {
			return validationFault("values", "%d values of type %s exceed the %d-register limit of a single write", len(p.Values), dataType, modbus.MaxWriteRegisters)
		}
		regs := make([]uint16, 0, len(p.Values)*width)
		for i, v := range p.Values {
			n, ok := toNumber(v)
			if !ok {
				return validationFault("values", "values[%d] %v is not a number", i, v)
			}
			encoded, err := value.Encode(n, dataType)
			if err != nil {
				return failure(classify(err))
			}
			regs = append(regs, encoded...)
		}
		quantity = len(regs)
		if p.StartAddress+quantity > 65536 {
			return validationFault("values", "write of %d registers at %d passes the end of the address space", quantity, p.StartAddress)
		}
		req = modbus.NewWriteMultipleRegistersRequest(uint16(p.StartAddress), regs)
	}

	conn, err := s.acquire(ctx, p.Host, port)
	if err != nil {
		return failure(classify(err))
	}
	resp, err := conn.Execute(ctx, byte(p.UnitID), req)
	if err != nil {
		return failure(classify(err))
	}
	if len(resp.Data) != 4 {
		return failure(&Fault{Kind: KindFrame, Message: fmt.Sprintf("write echo carries %d bytes, want 4", len(resp.Data))})
	}

	return success(WriteReport{
		Device:       deviceAddr(p.Host, port),
		RegisterType: regType.String(),
		Address:      p.StartAddress,
		Count:        len(p.Values),
		DataType:     dataType.String(),
		Written:      p.Values,
	})
}

// DeviceInfo queries FC43/14 identification objects, following the
// "more follows" continuation until the device runs out.
func (s *Service) DeviceInfo(ctx context.Context, p DeviceInfoParams) Result {
	port := s.port(p.Port)
	if f := validateTarget(p.Host, port, p.UnitID); f != nil {
		return failure(f)
	}

	conn, err := s.acquire(ctx, p.Host, port)
	if err != nil {
		return failure(classify(err))
	}

	info := make(map[string]string)
	var conformity byte
	objectID := byte(0)
	// A device cannot have more continuation rounds than object ids.
	for round := 0; round < 256; round++ {
		resp, err := conn.Execute(ctx, byte(p.UnitID),
			modbus.NewDeviceIdentificationRequest(modbus.ReadDeviceIDBasic, objectID))
		if err != nil {
			if ex, ok := errAsException(err); ok && ex.ExceptionCode == modbus.ExceptionCodeIllegalFunction {
				return failure(&Fault{
					Kind:    KindNotSupported,
					Message: "device does not support Read Device Identification (FC43)",
				})
			}
			return failure(classify(err))
		}
		ident, err := modbus.ParseDeviceIdentification(resp)
		if err != nil {
			return failure(&Fault{Kind: KindFrame, Message: err.Error()})
		}
		conformity = ident.Conformity
		for _, obj := range ident.Objects {
			info[obj.Name()] = obj.Value
		}
		if !ident.MoreFollows {
			break
		}
		objectID = ident.NextObjectID
	}

	return success(DeviceInfoReport{
		Device:      deviceAddr(p.Host, port),
		UnitID:      p.UnitID,
		Conformity:  fmt.Sprintf("0x%02X", conformity),
		Information: info,
	})
}

// Diagnostics runs the health checks in order and reports per-check
// status; a failing check never fails the operation itself.
func (s *Service) Diagnostics(ctx context.Context, p DiagnosticsParams) Result {
	port := s.port(p.Port)
	if f := validateTarget(p.Host, port, p.UnitID); f != nil {
		return failure(f)
	}
	testRead := s.cfg.Diag.TestRead
	if p.TestRead != nil {
		testRead = *p.TestRead
	}

	report := DiagnosticsReport{
		Device: deviceAddr(p.Host, port),
		UnitID: p.UnitID,
	}
	started := time.Now()

	connStart := time.Now()
	conn, err := s.acquire(ctx, p.Host, port)
	latency := msSince(connStart)
	if err != nil {
		report.Checks = append(report.Checks, DiagnosticCheck{
			Name:    "Connection Test",
			Status:  CheckFail,
			Details: fmt.Sprintf("connection failed: %v", err),
		})
		report.ElapsedMs = msSince(started)
		return success(report)
	}
	report.Checks = append(report.Checks, DiagnosticCheck{
		Name:      "Connection Test",
		Status:    CheckPass,
		LatencyMs: latency,
		Details:   "connected successfully",
	})

	// Round-trip latency via a minimal one-register read.
	report.Checks = append(report.Checks, s.probeCheck(ctx, conn, byte(p.UnitID), 0, "Latency Test"))

	if testRead {
		addr := uint16(s.cfg.Diag.TestAddress)
		report.Checks = append(report.Checks, s.probeCheck(ctx, conn, byte(p.UnitID), addr,
			fmt.Sprintf("Test Read (Address %d)", addr)))
	}

	report.Healthy = true
	for _, c := range report.Checks {
		if c.Status != CheckPass {
			report.Healthy = false
			break
		}
	}
	report.ElapsedMs = msSince(started)
	return success(report)
}

// probeCheck performs one latency-measured holding register read. A
// device exception still proves the round trip, so it scores PARTIAL.
func (s *Service) probeCheck(ctx context.Context, conn *tcp.Conn, unit byte, addr uint16, name string) DiagnosticCheck {
	start := time.Now()
	resp, err := conn.Execute(ctx, unit, modbus.NewReadRequest(modbus.FuncCodeReadHoldingRegisters, addr, 1))
	latency := msSince(start)
	if err != nil {
		if ex, ok := errAsException(err); ok {
			return DiagnosticCheck{
				Name:      name,
				Status:    CheckPartial,
				LatencyMs: latency,
				Details:   fmt.Sprintf("device responded with exception code %d (%s)", ex.ExceptionCode, ex.Meaning()),
			}
		}
		return DiagnosticCheck{
			Name:    name,
			Status:  CheckFail,
			Details: fmt.Sprintf("read failed: %v", err),
		}
	}

	details := "read successful"
	if payload, f := readPayload(resp); f == nil {
		if regs, err := modbus.BytesToRegisters(payload); err == nil && len(regs) > 0 {
			details = fmt.Sprintf("read successful, value: %d", regs[0])
		}
	}
	return DiagnosticCheck{Name: name, Status: CheckPass, LatencyMs: latency, Details: details}
}

// Disconnect releases the pooled connection; releasing an unknown
// endpoint is a no-op.
func (s *Service) Disconnect(ctx context.Context, p DisconnectParams) Result {
	port := s.port(p.Port)
	if f := validateTarget(p.Host, port, 0); f != nil {
		return failure(f)
	}
	released := s.pool.Release(p.Host, port)
	if released {
		slog.Info("disconnected from device", "addr", deviceAddr(p.Host, port))
	}
	return success(DisconnectReport{
		Device:   deviceAddr(p.Host, port),
		Released: released,
	})
}

// parseDataType applies the uint16 default and rejects unknown tags.
func parseDataType(s string) (value.Type, *Fault) {
	if s == "" {
		s = "uint16"
	}
	t, err := value.ParseType(s)
	if err != nil {
		return 0, &Fault{Kind: KindValidation, Param: "data_type", Message: err.Error()}
	}
	return t, nil
}

// parseWritableType applies the holding default and enforces the
// read-only classes before any I/O happens.
func parseWritableType(s string) (RegisterType, *Fault) {
	if s == "" {
		s = "holding"
	}
	t, err := ParseRegisterType(s)
	if err != nil {
		return 0, &Fault{Kind: KindValidation, Param: "register_type", Message: err.Error()}
	}
	if !t.Writable() {
		return 0, &Fault{
			Kind:    KindReadOnly,
			Param:   "register_type",
			Message: fmt.Sprintf("cannot write to read-only register type %q", t),
		}
	}
	return t, nil
}

// readPayload strips the byte-count prefix of an FC1-FC4 response.
func readPayload(pdu modbus.ProtocolDataUnit) ([]byte, *Fault) {
	if len(pdu.Data) < 1 {
		return nil, &Fault{Kind: KindFrame, Message: "read response carries no byte count"}
	}
	count := int(pdu.Data[0])
	if len(pdu.Data)-1 < count {
		return nil, &Fault{Kind: KindFrame, Message: fmt.Sprintf("read response shorter than its byte count %d", count)}
	}
	return pdu.Data[1 : 1+count], nil
}

func errAsException(err error) (*modbus.ExceptionError, bool) {
	var ex *modbus.ExceptionError
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
