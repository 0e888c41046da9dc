// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package pool maintains at most one live Modbus TCP connection per
// host:port endpoint. The unit id is not part of the pooling key: one
// TCP connection can serve multiple units behind a gateway, so the unit
// id travels with each request instead.
package pool

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ffutop/modbus-mcp/transport/tcp"
)

// Pool is the process-wide connection registry. Construct one explicitly
// and inject it; tests can then run against isolated pools.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry serializes create/replace/remove for a single endpoint, so
// concurrent acquisitions of the same key never dial two sockets while
// distinct keys proceed in parallel.
type entry struct {
	mu   sync.Mutex
	conn *tcp.Conn
}

// New creates an empty Pool.
func New() *Pool {
	return &Pool{entries: make(map[string]*entry)}
}

func key(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (p *Pool) entryFor(k string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[k]
	if !ok {
		e = &entry{}
		p.entries[k] = e
	}
	return e
}

// GetOrCreate returns the live connection for (host, port), replacing a
// faulted one and dialing a fresh one when none exists. timeout applies
// to both the dial and subsequent request round trips, on a reused
// connection as well as a fresh one; zero keeps the current settings.
func (p *Pool) GetOrCreate(ctx context.Context, host string, port int, timeout time.Duration) (*tcp.Conn, error) {
	k := key(host, port)

	for {
		e := p.entryFor(k)
		e.mu.Lock()

		// Release may have removed the entry between the map lookup and
		// the entry lock. A connection stored on a removed entry would be
		// unreachable for Release and Close, so start over on a fresh one.
		p.mu.Lock()
		current := p.entries[k] == e
		p.mu.Unlock()
		if !current {
			e.mu.Unlock()
			continue
		}

		if e.conn != nil {
			if e.conn.State() == tcp.StateConnected {
				c := e.conn
				if timeout > 0 {
					c.SetTimeouts(timeout, timeout)
				}
				e.mu.Unlock()
				return c, nil
			}
			// Faulted or disconnected: discard, never silently reuse.
			slog.Debug("replacing dead pooled connection", "addr", e.conn.Addr(), "state", e.conn.State().String())
			e.conn.Close()
			e.conn = nil
		}

		c := tcp.NewConn(host, port)
		if timeout > 0 {
			c.DialTimeout = timeout
			c.Timeout = timeout
		}
		if err := c.Open(ctx); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.conn = c
		e.mu.Unlock()
		return c, nil
	}
}

// Release closes and removes the connection for (host, port). Releasing
// an unknown key is a no-op. It reports whether a connection was held.
func (p *Pool) Release(host string, port int) bool {
	k := key(host, port)

	p.mu.Lock()
	e, ok := p.entries[k]
	if ok {
		delete(p.entries, k)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return false
	}
	e.conn.Close()
	e.conn = nil
	return true
}

// Close releases every pooled connection. Called at process teardown.
func (p *Pool) Close() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.conn != nil {
			e.conn.Close()
			e.conn = nil
		}
		e.mu.Unlock()
	}
}
