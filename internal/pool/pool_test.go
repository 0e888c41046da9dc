// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package pool

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ffutop/modbus-mcp/transport/tcp"
)

// acceptServer accepts and holds connections, counting them.
func acceptServer(t *testing.T) (net.Listener, *atomic.Int32) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })

	var accepted atomic.Int32
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 512)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return listener, &accepted
}

func listenerPort(t *testing.T, l net.Listener) int {
	t.Helper()
	return l.Addr().(*net.TCPAddr).Port
}

func TestPool_ReusesConnection(t *testing.T) {
	listener, accepted := acceptServer(t)
	port := listenerPort(t, listener)

	p := New()
	defer p.Close()

	c1, err := p.GetOrCreate(context.Background(), "127.0.0.1", port, 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	c2, err := p.GetOrCreate(context.Background(), "127.0.0.1", port, 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if c1 != c2 {
		t.Error("Expected the same connection for the same endpoint")
	}

	// The accept count may lag the dial slightly.
	time.Sleep(50 * time.Millisecond)
	if n := accepted.Load(); n != 1 {
		t.Errorf("Expected 1 accepted connection, got %d", n)
	}
}

func TestPool_ConcurrentSameKey(t *testing.T) {
	listener, accepted := acceptServer(t)
	port := listenerPort(t, listener)

	p := New()
	defer p.Close()

	var wg sync.WaitGroup
	conns := make([]*tcp.Conn, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := p.GetOrCreate(context.Background(), "127.0.0.1", port, 0)
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
				return
			}
			conns[i] = c
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(conns); i++ {
		if conns[i] != conns[0] {
			t.Fatal("Concurrent acquisitions returned distinct connections")
		}
	}
	time.Sleep(50 * time.Millisecond)
	if n := accepted.Load(); n != 1 {
		t.Errorf("Expected 1 accepted connection, got %d", n)
	}
}

func TestPool_DistinctKeys(t *testing.T) {
	l1, _ := acceptServer(t)
	l2, _ := acceptServer(t)

	p := New()
	defer p.Close()

	c1, err := p.GetOrCreate(context.Background(), "127.0.0.1", listenerPort(t, l1), 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	c2, err := p.GetOrCreate(context.Background(), "127.0.0.1", listenerPort(t, l2), 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if c1 == c2 {
		t.Error("Expected distinct connections for distinct endpoints")
	}
}

func TestPool_ReplacesDeadConnection(t *testing.T) {
	listener, _ := acceptServer(t)
	port := listenerPort(t, listener)

	p := New()
	defer p.Close()

	c1, err := p.GetOrCreate(context.Background(), "127.0.0.1", port, 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	c1.Close() // now Disconnected, must not be silently reused

	c2, err := p.GetOrCreate(context.Background(), "127.0.0.1", port, 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if c1 == c2 {
		t.Error("Expected a fresh connection after the old one died")
	}
	if c2.State() != tcp.StateConnected {
		t.Errorf("Expected connected replacement, got %s", c2.State())
	}
}

func TestPool_Release(t *testing.T) {
	listener, _ := acceptServer(t)
	port := listenerPort(t, listener)

	p := New()
	defer p.Close()

	if _, err := p.GetOrCreate(context.Background(), "127.0.0.1", port, 0); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	if !p.Release("127.0.0.1", port) {
		t.Error("Expected Release to report a held connection")
	}
	if p.Release("127.0.0.1", port) {
		t.Error("Expected second Release to be a no-op")
	}
	if p.Release("127.0.0.1", port+1) {
		t.Error("Expected Release of unknown endpoint to be a no-op")
	}
}

func TestPool_TimeoutOverride(t *testing.T) {
	listener, _ := acceptServer(t)
	port := listenerPort(t, listener)

	p := New()
	defer p.Close()

	c, err := p.GetOrCreate(context.Background(), "127.0.0.1", port, 3*time.Second)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if c.Timeout != 3*time.Second || c.DialTimeout != 3*time.Second {
		t.Errorf("Expected 3s timeouts, got dial=%v request=%v", c.DialTimeout, c.Timeout)
	}
}

func TestPool_TimeoutOverrideOnReuse(t *testing.T) {
	listener, _ := acceptServer(t)
	port := listenerPort(t, listener)

	p := New()
	defer p.Close()

	c1, err := p.GetOrCreate(context.Background(), "127.0.0.1", port, 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	// A later acquisition with an override must retune the pooled
	// connection, not leave it on its previous deadlines.
	c2, err := p.GetOrCreate(context.Background(), "127.0.0.1", port, 3*time.Second)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if c1 != c2 {
		t.Fatal("Expected the pooled connection to be reused")
	}
	if c2.Timeout != 3*time.Second || c2.DialTimeout != 3*time.Second {
		t.Errorf("Expected 3s timeouts on reuse, got dial=%v request=%v", c2.DialTimeout, c2.Timeout)
	}
}

// Release racing GetOrCreate must never strand a connection: a conn
// stored on an entry that Release already removed from the map would be
// unreachable for any later Release or Close, leaking its socket.
func TestPool_ReleaseDuringGetOrCreate(t *testing.T) {
	listener, _ := acceptServer(t)
	port := listenerPort(t, listener)

	p := New()

	var mu sync.Mutex
	var handedOut []*tcp.Conn

	for i := 0; i < 200; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c, err := p.GetOrCreate(context.Background(), "127.0.0.1", port, 0)
			if err != nil {
				t.Errorf("GetOrCreate failed: %v", err)
				return
			}
			mu.Lock()
			handedOut = append(handedOut, c)
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			p.Release("127.0.0.1", port)
		}()
		wg.Wait()
	}

	// Draining the pool must reach every connection it ever dialed.
	p.Release("127.0.0.1", port)
	p.Close()
	mu.Lock()
	defer mu.Unlock()
	for _, c := range handedOut {
		if c.Alive() {
			t.Fatalf("Connection %s still alive after the pool was drained", c.Addr())
		}
	}
}
