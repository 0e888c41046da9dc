// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-mcp/internal/sim/model"
)

// SQLStorage persists registers in a SQL database, one row per
// non-default register. The driver (e.g. sqlite3) must be imported by
// the program using this backend.
type SQLStorage struct {
	driver string
	dsn    string
	db     *sql.DB
	model  *model.DataModel
}

// NewSQLStorage creates a new SQLStorage.
func NewSQLStorage(driver, dsn string) *SQLStorage {
	return &SQLStorage{driver: driver, dsn: dsn}
}

// Load connects, creates the schema if needed and restores all rows.
func (s *SQLStorage) Load() (*model.DataModel, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	m := model.NewDataModel()
	s.model = m

	rows, err := db.Query("SELECT table_type, address, value FROM sim_registers")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to query registers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t, addr, val int
		if err := rows.Scan(&t, &addr, &val); err != nil {
			continue
		}
		if addr > model.MaxAddress {
			continue
		}
		switch model.Table(t) {
		case model.TableCoils:
			m.Coils[addr] = byte(val)
		case model.TableDiscreteInputs:
			m.DiscreteInputs[addr] = byte(val)
		case model.TableHoldingRegisters:
			m.HoldingRegisters[addr] = uint16(val)
		case model.TableInputRegisters:
			m.InputRegisters[addr] = uint16(val)
		}
	}

	return m, rows.Err()
}

func (s *SQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sim_registers (
		table_type INTEGER,
		address INTEGER,
		value INTEGER,
		PRIMARY KEY (table_type, address)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save is a no-op: OnWrite keeps the database current row by row, so a
// full dump would only repeat work.
func (s *SQLStorage) Save(m *model.DataModel) error {
	return nil
}

// OnWrite upserts the changed range. Synchronous on purpose: the point
// of this backend is surviving a power cut mid-write.
func (s *SQLStorage) OnWrite(table model.Table, address, quantity uint16) {
	if s.db == nil || s.model == nil {
		return
	}

	const query = "INSERT INTO sim_registers (table_type, address, value) VALUES (?, ?, ?) " +
		"ON CONFLICT(table_type, address) DO UPDATE SET value=excluded.value"

	for i := 0; i < int(quantity); i++ {
		addr := int(address) + i
		var val int64
		switch table {
		case model.TableCoils:
			val = int64(s.model.Coils[addr])
		case model.TableDiscreteInputs:
			val = int64(s.model.DiscreteInputs[addr])
		case model.TableHoldingRegisters:
			val = int64(s.model.HoldingRegisters[addr])
		case model.TableInputRegisters:
			val = int64(s.model.InputRegisters[addr])
		}

		if _, err := s.db.Exec(query, int(table), addr, val); err != nil {
			slog.Error("Failed to persist register", "table", int(table), "addr", addr, "err", err)
		}
	}
}

func (s *SQLStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
