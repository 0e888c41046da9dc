// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence provides pluggable backing stores for the
// simulator data model.
package persistence

import (
	"github.com/ffutop/modbus-mcp/internal/sim/model"
)

// Storage persists the simulator data model.
type Storage interface {
	// Load returns the data model, restored from storage when data
	// exists there.
	Load() (*model.DataModel, error)

	// Save writes a full snapshot.
	Save(m *model.DataModel) error

	// OnWrite is invoked after each protocol write so the backend can
	// persist the changed range immediately.
	OnWrite(table model.Table, address, quantity uint16)

	// Close releases backend resources.
	Close() error
}
