// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	// ConnectTimeout bounds the TCP handshake; RequestTimeout bounds each
	// request/response round trip.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// DefaultPort is used when an operation omits the port.
	DefaultPort int `mapstructure:"default_port"`

	Diag DiagConfig `mapstructure:"diag"`
	Log  LogConfig  `mapstructure:"log"`
}

// DiagConfig defines defaults for the diagnostics operation
type DiagConfig struct {
	TestRead    bool `mapstructure:"test_read"`    // Perform the test read check
	TestAddress int  `mapstructure:"test_address"` // Holding register probed by the test read
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbusmcp/")
		v.AddConfigPath("$HOME/.modbusmcp")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("default_port", 502)
	v.SetDefault("diag.test_read", true)
	v.SetDefault("diag.test_address", 0)
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine: everything has a default. Any
		// other read failure is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.DefaultPort < 1 || config.DefaultPort > 65535 {
		return nil, fmt.Errorf("default_port %d out of range", config.DefaultPort)
	}
	if config.Diag.TestAddress < 0 || config.Diag.TestAddress > 65535 {
		return nil, fmt.Errorf("diag.test_address %d out of range", config.Diag.TestAddress)
	}

	return &config, nil
}
