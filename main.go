// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-mcp/internal/config"
	"github.com/ffutop/modbus-mcp/internal/pool"
	"github.com/ffutop/modbus-mcp/internal/service"
	"github.com/ffutop/modbus-mcp/internal/sim"
	"github.com/ffutop/modbus-mcp/internal/sim/persistence"
)

// request is one line of the stdio tool loop:
//
//	{"id": 1, "op": "read_registers", "params": {"host": "10.0.0.5", ...}}
type request struct {
	ID     any             `json:"id,omitempty"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

// response wraps the operation result with the caller's id.
type response struct {
	ID any `json:"id,omitempty"`
	service.Result
}

func main() {
	configFile := pflag.String("config", "", "Path to config file")
	simulate := pflag.String("simulate", "", "Run a simulated Modbus TCP device on host:port instead of the tool loop")
	simBacking := pflag.String("simulate-backing", "", "File backing the simulated device's data model (memory when empty)")
	pflag.Parse()

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Shutting down...")
		cancel()
	}()

	if *simulate != "" {
		runSimulator(ctx, *simulate, *simBacking)
		return
	}

	slog.Info("Starting Modbus tool service...")

	p := pool.New()
	defer p.Close()
	svc := service.New(p, cfg)

	runToolLoop(ctx, svc)
	slog.Info("Goodbye.")
}

// runToolLoop reads newline-delimited JSON requests from stdin and writes
// one JSON result per line to stdout. Malformed input produces a
// validation fault instead of terminating the loop.
func runToolLoop(ctx context.Context, svc *service.Service) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	encoder := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(encoder, response{Result: invalidRequest("malformed request: " + err.Error())})
			continue
		}

		result := dispatch(ctx, svc, req)
		writeResponse(encoder, response{ID: req.ID, Result: result})
	}
	if err := scanner.Err(); err != nil {
		slog.Error("Failed to read stdin", "err", err)
	}
}

func dispatch(ctx context.Context, svc *service.Service, req request) service.Result {
	params := req.Params
	if params == nil {
		params = json.RawMessage("{}")
	}

	// unit_id defaults to 1: the structs are pre-seeded so an absent
	// field keeps the default while an explicit 0 still goes through.
	switch req.Op {
	case "connect":
		p := service.ConnectParams{UnitID: 1}
		if err := json.Unmarshal(params, &p); err != nil {
			return invalidRequest(err.Error())
		}
		return svc.Connect(ctx, p)
	case "read_registers":
		p := service.ReadParams{UnitID: 1}
		if err := json.Unmarshal(params, &p); err != nil {
			return invalidRequest(err.Error())
		}
		return svc.ReadRegisters(ctx, p)
	case "write_register":
		p := service.WriteParams{UnitID: 1}
		if err := json.Unmarshal(params, &p); err != nil {
			return invalidRequest(err.Error())
		}
		return svc.WriteRegister(ctx, p)
	case "write_multiple_registers":
		p := service.WriteMultipleParams{UnitID: 1}
		if err := json.Unmarshal(params, &p); err != nil {
			return invalidRequest(err.Error())
		}
		return svc.WriteMultipleRegisters(ctx, p)
	case "device_info":
		p := service.DeviceInfoParams{UnitID: 1}
		if err := json.Unmarshal(params, &p); err != nil {
			return invalidRequest(err.Error())
		}
		return svc.DeviceInfo(ctx, p)
	case "diagnostics":
		p := service.DiagnosticsParams{UnitID: 1}
		if err := json.Unmarshal(params, &p); err != nil {
			return invalidRequest(err.Error())
		}
		return svc.Diagnostics(ctx, p)
	case "disconnect":
		var p service.DisconnectParams
		if err := json.Unmarshal(params, &p); err != nil {
			return invalidRequest(err.Error())
		}
		return svc.Disconnect(ctx, p)
	default:
		return invalidRequest(fmt.Sprintf("unknown operation %q", req.Op))
	}
}

func invalidRequest(msg string) service.Result {
	return service.Result{
		Success: false,
		Fault:   &service.Fault{Kind: service.KindValidation, Message: msg},
	}
}

func writeResponse(encoder *json.Encoder, resp response) {
	if err := encoder.Encode(resp); err != nil {
		slog.Error("Failed to write response", "err", err)
	}
}

// runSimulator serves a simulated Modbus device until ctx is cancelled.
func runSimulator(ctx context.Context, addr, backing string) {
	srv := sim.NewServer(addr)
	if backing != "" {
		srv.Storage = persistence.NewFileStorage(backing)
	}
	srv.Identification = map[byte]string{
		0: "ffutop",
		1: "MODBUS-SIM",
		2: "1.0.0",
	}
	if err := srv.Start(ctx); err != nil {
		slog.Error("Failed to start simulator", "err", err)
		os.Exit(1)
	}
	defer srv.Close()
	<-ctx.Done()
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		// stdout carries the tool loop, logs go to stderr.
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
