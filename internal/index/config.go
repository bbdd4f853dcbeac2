// File path: internal/index/config.go
package index

import (
	"os"
	"strings"
	"time"
)

// Config controls the SQLite connection behind the index store.
type Config struct {
	Path string

	MaxOpenConns int
	MaxIdleConns int

	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration

	// LeaseTTL bounds how long an indexing lease stays held without renewal.
	LeaseTTL time.Duration
}

// Merge overlays non-zero override fields onto the base configuration.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Path) != "" {
		result.Path = strings.TrimSpace(override.Path)
	}
	if override.MaxOpenConns > 0 {
		result.MaxOpenConns = override.MaxOpenConns
	}
	if override.MaxIdleConns > 0 {
		result.MaxIdleConns = override.MaxIdleConns
	}
	if override.ConnMaxLifetime > 0 {
		result.ConnMaxLifetime = override.ConnMaxLifetime
	}
	if override.BusyTimeout > 0 {
		result.BusyTimeout = override.BusyTimeout
	}
	if override.LeaseTTL > 0 {
		result.LeaseTTL = override.LeaseTTL
	}
	return result
}

// LoadConfig reads environment overrides and applies defaults.
func LoadConfig() (Config, error) {
	cfg := Config{Path: strings.TrimSpace(os.Getenv("INDEX_DB_PATH"))}
	if raw := strings.TrimSpace(os.Getenv("INDEX_BUSY_TIMEOUT")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			cfg.BusyTimeout = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("INDEX_LEASE_TTL")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			cfg.LeaseTTL = parsed
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Path) == "" {
		c.Path = "codeproof.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 8
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 4
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 15 * time.Minute
	}
}
