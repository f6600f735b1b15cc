// Package config loads gridd configuration from an optional YAML file with
// environment variable overrides. The database connection string is the one
// setting with no default: it must be supplied explicitly and startup fails
// fast without it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"prioritygrid/internal/store"
)

// Config holds all gridd configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":5000".
	Addr string `yaml:"addr"`
	// ShutdownTimeout bounds graceful drain on SIGINT/SIGTERM.
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	// CORS enables the permissive cross-origin middleware the grid
	// frontend relies on.
	CORS bool `yaml:"cors"`
}

// StorageConfig configures the grid store.
type StorageConfig struct {
	// DSN is the connection string: a postgres URL/keyword DSN or a
	// SQLite path. Required; there is no default.
	DSN string `yaml:"dsn"`
	// Backend selects the storage model: "document" (whole grid as one
	// JSON column) or "cell" (one row per cell).
	Backend string `yaml:"backend"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the configuration used before file and env overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			ShutdownTimeout: "10s",
			CORS:            true,
		},
		Storage: StorageConfig{
			Backend: store.BackendDocument,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if path is non-empty), then environment overrides. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers environment variables over the loaded values.
// DATABASE_URL and PORT match what the grid frontend's deployment already
// exports; the GRIDD_* variables cover the rest.
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Storage.DSN = dsn
	}
	if backend := os.Getenv("GRIDD_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if addr := os.Getenv("GRIDD_ADDR"); addr != "" {
		c.Server.Addr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if level := os.Getenv("GRIDD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate fails fast on configuration that cannot serve requests.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("storage.dsn is required: set it in the config file or via DATABASE_URL")
	}
	switch c.Storage.Backend {
	case store.BackendDocument, store.BackendCell:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q",
			store.BackendDocument, store.BackendCell, c.Storage.Backend)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	return nil
}

// ShutdownTimeout parses the graceful drain bound.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	if c.Server.ShutdownTimeout == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(c.Server.ShutdownTimeout)
}
