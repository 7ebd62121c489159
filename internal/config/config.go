// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Defaults applied by LoadFromEnv.
const (
	DefaultDriver    = "sqlite"
	DefaultSQLiteDSN = "countopt_demo.sqlite"
	DefaultDuckDBDSN = "countopt_demo.duckdb"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

const (
	envDriver    = "COUNTOPT_DRIVER"
	envDSN       = "COUNTOPT_DSN"
	envMetadata  = "COUNTOPT_METADATA"
	envInlining  = "COUNTOPT_ASSOCIATION_INLINING"
	envLogLevel  = "LOG_LEVEL"
	envLogFormat = "LOG_FORMAT"
)

// Config holds the settings shared by every command.
type Config struct {
	Driver       string // sqlite or duckdb
	DSN          string // database file path; empty DuckDB DSN is in-memory
	MetadataPath string // entity mapping YAML; empty selects the demo mapping

	// AssociationInlining rewrites join conditions that reference an
	// association join alias so that join can be pruned (default true).
	AssociationInlining bool

	LogLevel  string // debug, info, warn, error
	LogFormat string // text or json

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// UsesDemoMapping reports whether no mapping file is configured.
func (c *Config) UsesDemoMapping() bool {
	return c.MetadataPath == ""
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Driver {
	case "sqlite", "duckdb":
	default:
		return fmt.Errorf("%s must be sqlite or duckdb, got %q", envDriver, c.Driver)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%s must be text or json, got %q", envLogFormat, c.LogFormat)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables and applies
// defaults. Command-line flags override the result.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Driver:              strings.ToLower(strings.TrimSpace(os.Getenv(envDriver))),
		DSN:                 os.Getenv(envDSN),
		MetadataPath:        os.Getenv(envMetadata),
		AssociationInlining: parseBoolEnvDefault(envInlining, true),
		LogLevel:            os.Getenv(envLogLevel),
		LogFormat:           strings.ToLower(os.Getenv(envLogFormat)),
	}

	if cfg.Driver == "sqlite3" {
		cfg.Driver = "sqlite"
	}
	if cfg.Driver == "" {
		cfg.Driver = DefaultDriver
	}
	if cfg.DSN == "" {
		cfg.DSN = DefaultDSN(cfg.Driver)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = DefaultLogFormat
	}
	if cfg.UsesDemoMapping() {
		cfg.Warnings = append(cfg.Warnings, envMetadata+" not set, using the bundled demo mapping")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultDSN returns the demo database file for driver.
func DefaultDSN(driver string) string {
	if driver == "duckdb" {
		return DefaultDuckDBDSN
	}
	return DefaultSQLiteDSN
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "0", "false", "no", "off":
		return false
	case "1", "true", "yes", "on":
		return true
	default:
		return defaultVal
	}
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
