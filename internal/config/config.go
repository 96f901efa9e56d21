// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Export   ExportConfig
	Rate     RateLimitConfig
	Crypto   CryptoConfig
	Cache    CacheConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 5m,
	// large export downloads need headroom)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds bulk import processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 50MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"52428800"`

	// MaxRows caps how many data rows a single import may carry (default: 50000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"50000"`

	// BatchSize is the number of rows persisted per transaction (default: 50)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"50"`

	// Timeout is the maximum duration for a single import operation (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`
}

// ExportConfig holds bulk export settings.
type ExportConfig struct {
	// PageSize is how many records each datastore page fetch returns (default: 500)
	PageSize int `env:"EXPORT_PAGE_SIZE" default:"500"`

	// MaxRecords caps the total records a single export may return (default: 50000)
	MaxRecords int `env:"EXPORT_MAX_RECORDS" default:"50000"`

	// Timeout is the maximum duration for a single export operation (default: 5m)
	Timeout time.Duration `env:"EXPORT_TIMEOUT" default:"5m"`
}

// RateLimitConfig holds sliding-window rate limit settings for the expensive
// export and template operations.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// MaxRequests is the number of requests allowed per caller per window (default: 10)
	MaxRequests int `env:"RATE_LIMIT_MAX_REQUESTS" default:"10"`

	// Window is the length of the counting window (default: 60s)
	Window time.Duration `env:"RATE_LIMIT_WINDOW" default:"60s"`
}

// CryptoConfig holds field-encryption settings.
type CryptoConfig struct {
	// Key is the hex-encoded 32-byte master key for field encryption (required).
	// The process never generates or persists this key; the deployment
	// environment injects it.
	Key string `env:"FIELD_ENCRYPTION_KEY" required:"true"`
}

// CacheConfig holds settings for the key/TTL cache client.
type CacheConfig struct {
	// CleanupInterval is how often expired entries are swept (default: 1m)
	CleanupInterval time.Duration `env:"CACHE_CLEANUP_INTERVAL" default:"1m"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey controls whether the X-API-Key header is enforced (default: true)
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" default:"true"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"SECURITY_API_KEYS"`

	// BulkAPIKeys is the subset of keys granted bulk import/export permission.
	// Keys not listed here authenticate but are denied bulk operations.
	BulkAPIKeys []string `env:"SECURITY_BULK_API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MasterKey decodes the configured field-encryption key.
func (c *CryptoConfig) MasterKey() ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(c.Key))
	if err != nil {
		return nil, fmt.Errorf("FIELD_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("FIELD_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Import.MaxFileSize <= 0 {
		errs = append(errs, "IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.BatchSize <= 0 {
		errs = append(errs, "IMPORT_BATCH_SIZE must be positive")
	}
	if c.Import.MaxRows <= 0 {
		errs = append(errs, "IMPORT_MAX_ROWS must be positive")
	}

	if c.Export.PageSize <= 0 {
		errs = append(errs, "EXPORT_PAGE_SIZE must be positive")
	}

	if c.Rate.Enabled {
		if c.Rate.MaxRequests <= 0 {
			errs = append(errs, "RATE_LIMIT_MAX_REQUESTS must be positive when rate limiting is enabled")
		}
		if c.Rate.Window <= 0 {
			errs = append(errs, "RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
		}
	}

	if c.Crypto.Key != "" {
		if _, err := c.Crypto.MasterKey(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
