// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// A nonexistent explicit path still errors; an absent default-path
	// file falls back to defaults. Point at an empty temp dir.
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ConnectTimeout != 10*time.Second || cfg.RequestTimeout != 10*time.Second {
		t.Errorf("Expected 10s timeouts, got %v / %v", cfg.ConnectTimeout, cfg.RequestTimeout)
	}
	if cfg.DefaultPort != 502 {
		t.Errorf("Expected default port 502, got %d", cfg.DefaultPort)
	}
	if !cfg.Diag.TestRead || cfg.Diag.TestAddress != 0 {
		t.Errorf("Unexpected diag defaults: %+v", cfg.Diag)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected log level info, got %q", cfg.Log.Level)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
connect_timeout: 5s
request_timeout: 3s
default_port: 1502
diag:
  test_read: false
  test_address: 100
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ConnectTimeout != 5*time.Second || cfg.RequestTimeout != 3*time.Second {
		t.Errorf("Unexpected timeouts: %v / %v", cfg.ConnectTimeout, cfg.RequestTimeout)
	}
	if cfg.DefaultPort != 1502 {
		t.Errorf("Expected port 1502, got %d", cfg.DefaultPort)
	}
	if cfg.Diag.TestRead || cfg.Diag.TestAddress != 100 {
		t.Errorf("Unexpected diag config: %+v", cfg.Diag)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %q", cfg.Log.Level)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "bad_port.yaml")
	if err := os.WriteFile(path, []byte("default_port: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for out-of-range default_port")
	}

	path = filepath.Join(dir, "bad_addr.yaml")
	if err := os.WriteFile(path, []byte("diag:\n  test_address: 70000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for out-of-range diag.test_address")
	}
}
