// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Upload     UploadConfig
	Export     ExportConfig
	Extraction ExtractionConfig
	Rate       RateLimitConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 120s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"120s"`
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

	// MigrationsPath is the directory holding schema migrations (default: migrations)
	MigrationsPath string `env:"DB_MIGRATIONS_PATH" default:"migrations"`
}

// UploadConfig holds import upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// JobTimeout is the maximum duration for a single import or export job (default: 10m)
	JobTimeout time.Duration `env:"UPLOAD_JOB_TIMEOUT" default:"10m"`

	// MaxJobErrors caps how many row errors a job records (default: 20)
	MaxJobErrors int `env:"UPLOAD_MAX_JOB_ERRORS" default:"20"`
}

// ExportConfig holds export output settings.
type ExportConfig struct {
	// Dir is the directory where completed export files are written (default: exports)
	Dir string `env:"EXPORT_DIR" default:"exports"`
}

// ExtractionConfig holds agreement rate-extraction settings.
type ExtractionConfig struct {
	// Endpoint is the base URL of an OpenAI-compatible extraction endpoint (required)
	Endpoint string `env:"EXTRACTION_ENDPOINT" required:"true"`

	// Model is the model name used for extraction (default: gpt-4o-mini)
	Model string `env:"EXTRACTION_MODEL" default:"gpt-4o-mini"`

	// APIKey authenticates against the extraction endpoint; optional for local endpoints
	APIKey string `env:"EXTRACTION_API_KEY"`

	// Timeout is the maximum duration for one extraction call (default: 2m)
	Timeout time.Duration `env:"EXTRACTION_TIMEOUT" default:"2m"`

	// DraftTTL is how long agreement drafts are kept in memory (default: 1h)
	DraftTTL time.Duration `env:"EXTRACTION_DRAFT_TTL" default:"1h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
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
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
