// Package config provides configuration types, defaults, and
// persistence for questdex.
package config

import (
	"fmt"

	"github.com/questdex/questdex/internal/tracing"
)

// Config holds all configuration options for questdex.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `mapstructure:"addr" yaml:"addr"`

	// DBPath is the SQLite database file location.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// LogPath is the debug log file location, used when debug logging
	// is enabled.
	LogPath string `mapstructure:"log_path" yaml:"log_path"`

	// Tracing configures the OpenTelemetry subsystem.
	Tracing tracing.Config `mapstructure:"tracing" yaml:"tracing"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Addr:    "localhost:8264",
		DBPath:  ".questdex/questdex.db",
		LogPath: "questdex.log",
		Tracing: tracing.DefaultConfig(),
	}
}

// Validate checks the configuration for values the service cannot
// start with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	return nil
}
