// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Execute on a connection that is not
// in the Connected state.
var ErrNotConnected = errors.New("modbus tcp: connection not open")

// ConnectError reports a TCP-level failure to establish or maintain a
// connection.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("modbus tcp: connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TimeoutError reports that no matching response arrived within the
// deadline.
type TimeoutError struct {
	Op   string
	Addr string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("modbus tcp: %s timed out on %s", e.Op, e.Addr)
}

// Timeout reports true so the error tests as a timeout through the
// net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }
