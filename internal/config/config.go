// Package config provides centralized configuration for the ETL pipeline
// and the reporting API. Values come from environment variables with
// defaults, and everything is validated on startup to fail fast.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	ETL      ETLConfig
	API      APIConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of pooled connections (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// ETLConfig holds pipeline processing settings.
type ETLConfig struct {
	// RawDataPath is the directory scanned for input files (default: data/raw)
	RawDataPath string `env:"ETL_RAW_DATA_PATH" default:"data/raw"`

	// BatchSize is the number of rows per multi-row INSERT (default: 1000)
	BatchSize int `env:"ETL_BATCH_SIZE" default:"1000"`

	// UseCopy enables the PostgreSQL COPY staging path for large loads
	// (default: false)
	UseCopy bool `env:"ETL_USE_COPY" default:"false"`

	// CopyThreshold is the minimum row count at which the COPY path is
	// selected when UseCopy is enabled (default: 200000)
	CopyThreshold int `env:"ETL_COPY_THRESHOLD" default:"200000"`

	// StaleRunAfter is the age at which an EM_ANDAMENTO run log left by an
	// interrupted process is reconciled to ERRO (default: 1h)
	StaleRunAfter time.Duration `env:"ETL_STALE_RUN_AFTER" default:"1h"`

	// MaxFileSize is the maximum accepted input file size in bytes
	// (default: 256MB)
	MaxFileSize int64 `env:"ETL_MAX_FILE_SIZE" default:"268435456"`
}

// APIConfig holds HTTP server settings for the reporting API.
type APIConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"API_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `env:"API_PORT" default:"8000"`

	// CORSOrigins is a comma-separated list of allowed origins
	CORSOrigins []string `env:"API_CORS_ORIGINS" default:"http://localhost:5173"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"API_READ_TIMEOUT" default:"15s"`

	// RequestTimeout is the per-request middleware timeout (default: 30s)
	RequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" default:"30s"`

	// ShutdownTimeout is the graceful-shutdown budget (default: 15s)
	ShutdownTimeout time.Duration `env:"API_SHUTDOWN_TIMEOUT" default:"15s"`

	// MaxPageSize caps the limit parameter on listing endpoints (default: 2000)
	MaxPageSize int `env:"API_MAX_PAGE_SIZE" default:"2000"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the API listen address in host:port format.
func (c *APIConfig) Addr() string {
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
