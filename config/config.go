package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/agentgraph/errors"
	"github.com/c360/agentgraph/graph"
)

// DefaultEnvPrefix is the prefix for environment variable overrides.
const DefaultEnvPrefix = "AGENTGRAPH"

// Config is the application property file: process-level settings plus the
// predefined graphs started when the app runs.
type Config struct {
	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `json:"log_level,omitempty"`

	Gateway GatewayConfig `json:"gateway,omitempty"`
	NATS    NATSConfig    `json:"nats,omitempty"`

	// PredefinedGraphs are graph definitions known at startup. Entries with
	// auto_start are started when the app runs; the rest start on demand by
	// name.
	PredefinedGraphs []graph.Definition `json:"predefined_graphs,omitempty"`
}

// GatewayConfig configures the diagnostics HTTP/websocket gateway.
type GatewayConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Address string `json:"address,omitempty"`
}

// NATSConfig configures the optional NATS bridge connection.
type NATSConfig struct {
	// URL of the NATS server. Empty disables the bridge.
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
	// MaxReconnects caps reconnection attempts; -1 retries forever.
	MaxReconnects int `json:"max_reconnects,omitempty"`
	// ReconnectWaitMS is the delay between reconnection attempts.
	ReconnectWaitMS int `json:"reconnect_wait_ms,omitempty"`
}

// ReconnectWait returns the reconnect delay as a duration, defaulting to 2s.
func (n NATSConfig) ReconnectWait() time.Duration {
	if n.ReconnectWaitMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(n.ReconnectWaitMS) * time.Millisecond
}

// Default returns a configuration with usable defaults and no graphs.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Gateway:  GatewayConfig{Address: "127.0.0.1:8090"},
		NATS:     NATSConfig{MaxReconnects: -1},
	}
}

// Load reads a property file, applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read property file")
	}
	return Parse(data)
}

// Parse decodes configuration from JSON, applies environment overrides, and
// validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Parse", "json decode")
	}

	applyEnvOverrides(cfg, DefaultEnvPrefix)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides on top of the
// decoded file values.
func applyEnvOverrides(cfg *Config, prefix string) {
	if val := os.Getenv(prefix + "_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	if val := os.Getenv(prefix + "_GATEWAY_ADDRESS"); val != "" {
		cfg.Gateway.Address = val
		cfg.Gateway.Enabled = true
	}
	if val := os.Getenv(prefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(prefix + "_NATS_MAX_RECONNECTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.NATS.MaxReconnects = n
		}
	}
}

// Validate checks the configuration, including every predefined graph.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "log_level")
	}

	if c.Gateway.Enabled {
		if c.Gateway.Address == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"gateway enabled without address")
		}
		if _, _, err := net.SplitHostPort(c.Gateway.Address); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate",
				fmt.Sprintf("gateway address %q", c.Gateway.Address))
		}
	}

	names := make(map[string]bool)
	for i := range c.PredefinedGraphs {
		def := &c.PredefinedGraphs[i]
		if def.Name == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				fmt.Sprintf("predefined graph %d has no name", i))
		}
		if names[def.Name] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("duplicate predefined graph %q", def.Name))
		}
		names[def.Name] = true
		if err := def.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Graph returns the predefined graph with the given name.
func (c *Config) Graph(name string) (*graph.Definition, bool) {
	for i := range c.PredefinedGraphs {
		if c.PredefinedGraphs[i].Name == name {
			return &c.PredefinedGraphs[i], true
		}
	}
	return nil, false
}

// SlogLevel converts LogLevel to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
}
