// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package sim is a Modbus TCP device simulator. It answers the standard
// data functions (FC1-FC6, FC15, FC16) against a storage-backed data
// model and FC43/14 device identification, and exists so the client
// stack can be exercised end to end without hardware.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/ffutop/modbus-mcp/internal/sim/model"
	"github.com/ffutop/modbus-mcp/internal/sim/persistence"
	"github.com/ffutop/modbus-mcp/modbus"
	"github.com/ffutop/modbus-mcp/transport/tcp"
)

// Server simulates one Modbus TCP device. Configure the exported fields
// before Start.
type Server struct {
	Addr string

	// Storage backs the data model; memory (non-persistent) when nil.
	Storage persistence.Storage

	// Identification holds the FC43 objects by object id. A nil map
	// makes the device decline FC43 with Illegal Function.
	Identification map[byte]string

	data     *model.DataModel
	listener net.Listener
	closeOne sync.Once
	closeErr error
}

// NewServer creates a simulator listening on addr (host:port; port 0
// picks an ephemeral port).
func NewServer(addr string) *Server {
	return &Server{Addr: addr}
}

// Model exposes the data model for seeding and inspection.
func (s *Server) Model() *model.DataModel {
	return s.data
}

// ListenAddr returns the bound address once Start has succeeded.
func (s *Server) ListenAddr() net.Addr {
	return s.listener.Addr()
}

// Start loads the model, binds the listener and serves in the
// background until ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	if s.Storage == nil {
		s.Storage = persistence.NewMemoryStorage()
	}
	data, err := s.Storage.Load()
	if err != nil {
		return fmt.Errorf("failed to load data model: %w", err)
	}
	s.data = data

	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr, err)
	}
	s.listener = listener
	slog.Info("simulated Modbus device listening", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	go func() {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
				default:
					if !errors.Is(err, net.ErrClosed) {
						slog.Error("Failed to accept connection", "err", err)
					}
				}
				return
			}
			go s.handleConnection(ctx, conn)
		}
	}()
	return nil
}

// Close stops the listener, saves the model and closes the storage.
// Safe to call more than once.
func (s *Server) Close() error {
	s.closeOne.Do(func() {
		if s.listener != nil {
			s.closeErr = s.listener.Close()
		}
		if s.data != nil {
			if err := s.Storage.Save(s.data); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
			if err := s.Storage.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	slog.Debug("simulator client connected", "addr", conn.RemoteAddr())

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		adu, err := tcp.ReadFrame(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				slog.Debug("simulator read failed", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}

		respPdu := s.process(adu.Pdu)

		respAdu := &tcp.ApplicationDataUnit{
			TransactionID: adu.TransactionID,
			ProtocolID:    adu.ProtocolID,
			Length:        uint16(2 + len(respPdu.Data)), // UnitID + FunctionCode + Data
			UnitID:        adu.UnitID,
			Pdu:           respPdu,
		}
		raw, err := respAdu.Encode()
		if err != nil {
			slog.Error("Failed to encode simulator response", "err", err)
			continue
		}
		if _, err := conn.Write(raw); err != nil {
			slog.Debug("simulator write failed", "addr", conn.RemoteAddr(), "err", err)
			return
		}
	}
}

// process executes one function code against the data model.
func (s *Server) process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils:
		return s.handleReadBits(req, model.TableCoils, modbus.MaxReadBits)
	case modbus.FuncCodeReadDiscreteInputs:
		return s.handleReadBits(req, model.TableDiscreteInputs, modbus.MaxReadBits)
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleReadWords(req, model.TableHoldingRegisters, modbus.MaxReadRegisters)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleReadWords(req, model.TableInputRegisters, modbus.MaxReadRegisters)
	case modbus.FuncCodeWriteSingleCoil:
		return s.handleWriteSingle(req)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingle(req)
	case modbus.FuncCodeWriteMultipleCoils:
		return s.handleWriteMultiple(req, modbus.MaxWriteBits)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultiple(req, modbus.MaxWriteRegisters)
	case modbus.FuncCodeReadDeviceIdentification:
		return s.handleDeviceIdentification(req)
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func exception(funcCode, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode | 0x80,
		Data:         []byte{code},
	}
}

func (s *Server) handleReadBits(req modbus.ProtocolDataUnit, table model.Table, max int) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	if quantity < 1 || int(quantity) > max {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := s.data.ReadBits(table, address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	return readResponse(req.FunctionCode, data)
}

func (s *Server) handleReadWords(req modbus.ProtocolDataUnit, table model.Table, max int) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	if quantity < 1 || int(quantity) > max {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := s.data.ReadWords(table, address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	return readResponse(req.FunctionCode, data)
}

func readResponse(funcCode byte, data []byte) modbus.ProtocolDataUnit {
	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)
	return modbus.ProtocolDataUnit{FunctionCode: funcCode, Data: respData}
}

func (s *Server) handleWriteSingle(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	var err error
	var table model.Table
	if req.FunctionCode == modbus.FuncCodeWriteSingleCoil {
		table = model.TableCoils
		err = s.data.WriteCoil(address, value)
	} else {
		table = model.TableHoldingRegisters
		err = s.data.WriteRegister(address, value)
	}
	if err != nil {
		if errors.Is(err, model.ErrValue) {
			return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
		}
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.Storage.OnWrite(table, address, 1)

	return req // Echo request
}

func (s *Server) handleWriteMultiple(req modbus.ProtocolDataUnit, max int) modbus.ProtocolDataUnit {
	if len(req.Data) < 6 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || int(quantity) > max {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if byte(len(req.Data)-5) != byteCount {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	var err error
	var table model.Table
	if req.FunctionCode == modbus.FuncCodeWriteMultipleCoils {
		table = model.TableCoils
		err = s.data.WriteCoils(address, quantity, req.Data[5:])
	} else {
		table = model.TableHoldingRegisters
		err = s.data.WriteRegisters(address, quantity, req.Data[5:])
	}
	if err != nil {
		if errors.Is(err, model.ErrValue) {
			return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
		}
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	s.Storage.OnWrite(table, address, quantity)

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: respData}
}

func (s *Server) handleDeviceIdentification(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 3 || req.Data[0] != modbus.MEITypeDeviceIdentification {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	if s.Identification == nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
	startID := req.Data[2]

	ids := make([]int, 0, len(s.Identification))
	for id := range s.Identification {
		if id >= startID {
			ids = append(ids, int(id))
		}
	}
	if len(ids) == 0 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	sort.Ints(ids)

	// MEI type, ReadDevID code, conformity (basic, stream access),
	// more follows, next object id, number of objects.
	data := []byte{modbus.MEITypeDeviceIdentification, req.Data[1], 0x01, 0x00, 0x00, byte(len(ids))}
	for _, id := range ids {
		v := s.Identification[byte(id)]
		data = append(data, byte(id), byte(len(v)))
		data = append(data, v...)
	}
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: data}
}
