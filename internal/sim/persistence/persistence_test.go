// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package persistence

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ffutop/modbus-mcp/internal/sim/model"
)

// seedAndClose writes a few values through the model, triggers the
// write hooks and closes the backend.
func seedAndClose(t *testing.T, s Storage) {
	t.Helper()
	m, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := m.WriteRegister(100, 1500); err != nil {
		t.Fatalf("WriteRegister failed: %v", err)
	}
	s.OnWrite(model.TableHoldingRegisters, 100, 1)

	if err := m.WriteCoil(7, 0xFF00); err != nil {
		t.Fatalf("WriteCoil failed: %v", err)
	}
	s.OnWrite(model.TableCoils, 7, 1)

	if err := s.Save(m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func verifyReload(t *testing.T, s Storage) {
	t.Helper()
	m, err := s.Load()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	defer s.Close()

	if got := m.HoldingRegister(100); got != 1500 {
		t.Errorf("Expected holding register 100 = 1500 after reload, got %d", got)
	}
	if !m.Coil(7) {
		t.Error("Expected coil 7 ON after reload")
	}
	if got := m.HoldingRegister(101); got != 0 {
		t.Errorf("Expected untouched register to stay 0, got %d", got)
	}
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	m, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := m.WriteRegister(0, 1); err != nil {
		t.Fatalf("WriteRegister failed: %v", err)
	}
	s.OnWrite(model.TableHoldingRegisters, 0, 1)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestFileStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.dat")
	seedAndClose(t, NewFileStorage(path))
	verifyReload(t, NewFileStorage(path))
}

func TestMmapStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.mmap")
	seedAndClose(t, NewMmapStorage(path))
	verifyReload(t, NewMmapStorage(path))
}

func TestMmapStorage_ReadableByFileStorage(t *testing.T) {
	// Both backends share the flat layout, so an image written through
	// mmap loads through the plain file backend.
	path := filepath.Join(t.TempDir(), "sim.dat")
	seedAndClose(t, NewMmapStorage(path))
	verifyReload(t, NewFileStorage(path))
}

func TestSQLStorage_RoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sim.db")
	seedAndClose(t, NewSQLStorage("sqlite3", dsn))
	verifyReload(t, NewSQLStorage("sqlite3", dsn))
}

func TestSQLStorage_Upsert(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sim.db")

	s := NewSQLStorage("sqlite3", dsn)
	m, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// Two writes to the same address must end up as one row with the
	// latest value.
	m.WriteRegister(5, 10)
	s.OnWrite(model.TableHoldingRegisters, 5, 1)
	m.WriteRegister(5, 20)
	s.OnWrite(model.TableHoldingRegisters, 5, 1)
	s.Close()

	s2 := NewSQLStorage("sqlite3", dsn)
	m2, err := s2.Load()
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	defer s2.Close()
	if got := m2.HoldingRegister(5); got != 20 {
		t.Errorf("Expected latest value 20, got %d", got)
	}
}
