// File path: internal/vector/config.go
package vector

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config describes the Qdrant endpoint backing the embedding store.
type Config struct {
	Host       string `json:"host"`
	Port       string `json:"port"`
	Scheme     string `json:"scheme"`
	Collection string `json:"collection"`
	APIKey     string `json:"api_key"`

	// Dim is the embedding dimension fixed for the deployment; the store
	// rejects vectors of any other size.
	Dim int `json:"dim"`

	Timeout time.Duration `json:"-"`

	HTTPMaxIdleConns    int           `json:"http_max_idle_conns"`
	HTTPMaxIdlePerHost  int           `json:"http_max_idle_per_host"`
	HTTPIdleConnTimeout time.Duration `json:"-"`
}

// Merge overlays non-zero override fields onto the base configuration.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Host) != "" {
		result.Host = strings.TrimSpace(override.Host)
	}
	if strings.TrimSpace(override.Port) != "" {
		result.Port = strings.TrimSpace(override.Port)
	}
	if strings.TrimSpace(override.Scheme) != "" {
		result.Scheme = strings.TrimSpace(override.Scheme)
	}
	if strings.TrimSpace(override.Collection) != "" {
		result.Collection = strings.TrimSpace(override.Collection)
	}
	if strings.TrimSpace(override.APIKey) != "" {
		result.APIKey = override.APIKey
	}
	if override.Dim > 0 {
		result.Dim = override.Dim
	}
	if override.Timeout > 0 {
		result.Timeout = override.Timeout
	}
	if override.HTTPMaxIdleConns > 0 {
		result.HTTPMaxIdleConns = override.HTTPMaxIdleConns
	}
	if override.HTTPMaxIdlePerHost > 0 {
		result.HTTPMaxIdlePerHost = override.HTTPMaxIdlePerHost
	}
	if override.HTTPIdleConnTimeout > 0 {
		result.HTTPIdleConnTimeout = override.HTTPIdleConnTimeout
	}
	return result
}

// LoadConfig reads QDRANT_* environment variables and applies defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		Host:       strings.TrimSpace(os.Getenv("QDRANT_HOST")),
		Port:       strings.TrimSpace(os.Getenv("QDRANT_PORT")),
		Scheme:     strings.TrimSpace(os.Getenv("QDRANT_SCHEME")),
		Collection: strings.TrimSpace(os.Getenv("QDRANT_COLLECTION")),
		APIKey:     strings.TrimSpace(os.Getenv("QDRANT_API_KEY")),
	}
	if raw := strings.TrimSpace(os.Getenv("VECTOR_DIM")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			cfg.Dim = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("QDRANT_TIMEOUT")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			cfg.Timeout = parsed
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Host) == "" {
		c.Host = "localhost"
	}
	if strings.TrimSpace(c.Port) == "" {
		c.Port = "6333"
	}
	if strings.TrimSpace(c.Scheme) == "" {
		c.Scheme = "http"
	}
	if strings.TrimSpace(c.Collection) == "" {
		c.Collection = "code_embeddings"
	}
	if c.Dim <= 0 {
		c.Dim = 1536
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.HTTPMaxIdleConns <= 0 {
		c.HTTPMaxIdleConns = 64
	}
	if c.HTTPMaxIdlePerHost <= 0 {
		c.HTTPMaxIdlePerHost = 16
	}
	if c.HTTPIdleConnTimeout <= 0 {
		c.HTTPIdleConnTimeout = 90 * time.Second
	}
}
