// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ffutop/modbus-mcp/modbus"
)

const tcpTimeout = 10 * time.Second

// State is the lifecycle state of a Conn.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Conn owns one TCP socket to one Modbus endpoint and serializes
// transactions on it: one outstanding request at a time, matched to its
// response by transaction id. The unit id is carried per request, so a
// single Conn can serve multiple units behind a gateway.
type Conn struct {
	Host string
	Port int

	// DialTimeout bounds Open; Timeout bounds each Execute round trip.
	DialTimeout time.Duration
	Timeout     time.Duration

	mu            sync.Mutex
	sock          net.Conn
	state         State
	lastUsed      time.Time
	transactionID uint16
}

// NewConn allocates a Conn in the Disconnected state.
func NewConn(host string, port int) *Conn {
	return &Conn{
		Host:        host,
		Port:        port,
		DialTimeout: tcpTimeout,
		Timeout:     tcpTimeout,
	}
}

// Addr returns the host:port endpoint string.
func (c *Conn) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Open establishes the TCP connection. It is not retried here; the
// caller decides whether to retry.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateConnected {
		return nil
	}

	dialer := net.Dialer{Timeout: c.DialTimeout}
	sock, err := dialer.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		c.state = StateDisconnected
		return &ConnectError{Addr: c.Addr(), Err: err}
	}

	c.sock = sock
	c.state = StateConnected
	c.lastUsed = time.Now()
	slog.Debug("modbus tcp connected", "addr", c.Addr())
	return nil
}

// Close releases the socket. Closing an already-closed Conn is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.sock == nil {
		c.state = StateDisconnected
		return nil
	}
	err := c.sock.Close()
	c.sock = nil
	c.state = StateDisconnected
	return err
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Alive reports whether the Conn is usable for Execute.
func (c *Conn) Alive() bool {
	return c.State() == StateConnected
}

// SetTimeouts replaces the dial and per-request deadlines. Safe to call
// on a Conn already shared with other goroutines; in-flight transactions
// keep the deadline they started with.
func (c *Conn) SetTimeouts(dial, request time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DialTimeout = dial
	c.Timeout = request
}

// LastUsed returns the time of the last completed transaction.
func (c *Conn) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// fault marks the Conn unusable and closes the socket. A faulted Conn is
// never reused: the pool replaces it on the next acquisition, so a late
// response on the old socket can never be matched to a later request.
func (c *Conn) faultLocked() {
	c.closeLocked()
	c.state = StateFaulted
}

// Execute performs one request/response transaction. Concurrent callers
// are serialized; request bytes of a second call are never written before
// the first call's response (or timeout) is resolved.
func (c *Conn) Execute(ctx context.Context, unitID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return modbus.ProtocolDataUnit{}, ErrNotConnected
	}

	c.transactionID++ // cycles modulo 65536
	tid := c.transactionID

	adu := NewRequest(tid, unitID, pdu)
	raw, err := adu.Encode()
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.sock.SetDeadline(deadline); err != nil {
		c.faultLocked()
		return modbus.ProtocolDataUnit{}, &ConnectError{Addr: c.Addr(), Err: err}
	}

	if _, err := c.sock.Write(raw); err != nil {
		c.faultLocked()
		return modbus.ProtocolDataUnit{}, c.wrapIOError("write", err)
	}
	slog.Debug("sent modbus tcp request", "addr", c.Addr(), "request", hex.EncodeToString(raw))

	for {
		resp, err := ReadFrame(c.sock)
		if err != nil {
			c.faultLocked()
			if fe, ok := err.(*FrameError); ok {
				return modbus.ProtocolDataUnit{}, fe
			}
			return modbus.ProtocolDataUnit{}, c.wrapIOError("read", err)
		}

		if resp.TransactionID != tid {
			// A stale frame from an abandoned exchange. Discard it and
			// keep reading; the deadline bounds the loop.
			slog.Debug("discarding stale modbus tcp frame", "addr", c.Addr(),
				"got", resp.TransactionID, "want", tid)
			continue
		}

		if resp.UnitID != unitID {
			c.faultLocked()
			return modbus.ProtocolDataUnit{}, frameErrf("response unit id %d does not match request %d", resp.UnitID, unitID)
		}

		c.lastUsed = time.Now()

		if resp.Pdu.FunctionCode == pdu.FunctionCode|0x80 {
			if len(resp.Pdu.Data) < 1 {
				c.faultLocked()
				return modbus.ProtocolDataUnit{}, frameErrf("exception response carries no exception code")
			}
			return modbus.ProtocolDataUnit{}, &modbus.ExceptionError{
				FunctionCode:  pdu.FunctionCode,
				ExceptionCode: resp.Pdu.Data[0],
			}
		}
		if resp.Pdu.FunctionCode != pdu.FunctionCode {
			c.faultLocked()
			return modbus.ProtocolDataUnit{}, frameErrf("response function 0x%02X does not match request 0x%02X", resp.Pdu.FunctionCode, pdu.FunctionCode)
		}

		return resp.Pdu, nil
	}
}

func (c *Conn) wrapIOError(op string, err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return &TimeoutError{Op: op, Addr: c.Addr()}
	}
	return &ConnectError{Addr: c.Addr(), Err: err}
}
