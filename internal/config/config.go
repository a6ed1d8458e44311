// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Download DownloadConfig
	Registry RegistryConfig
	Staging  StagingConfig
	Fetch    FetchConfig
	Archive  ArchiveConfig
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

	// WriteTimeout is the maximum duration for writing response (default: 0, a
	// fetch run can outlast any fixed write deadline)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. When empty, fetched
	// companies are not persisted.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// EnsureSchema creates the company table on startup (default: true)
	EnsureSchema bool `env:"DB_ENSURE_SCHEMA" default:"true"`
}

// DownloadConfig holds settings for the FTC open-data document server.
type DownloadConfig struct {
	// BaseURL is the document download endpoint.
	BaseURL string `env:"DOWNLOAD_BASE_URL" default:"https://www.ftc.go.kr/www/downloadBizComm.do"`

	// Referer is sent with every download request.
	Referer string `env:"DOWNLOAD_REFERER" default:"https://www.ftc.go.kr/www/selectBizCommOpenList.do?key=255"`

	// UserAgent is sent with every download request.
	UserAgent string `env:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36"`

	// Cookie is the session cookie header, if the server requires one.
	Cookie string `env:"DOWNLOAD_COOKIE"`

	// BearerToken is sent as "Authorization: Bearer <token>" when set.
	BearerToken string `env:"DOWNLOAD_BEARER_TOKEN"`

	// Headers are extra request headers in Key=Value|Key=Value form.
	Headers map[string]string `env:"DOWNLOAD_HEADERS" default:"Accept=*/*|Accept-Language=ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"`

	// SourceCharset is the charset the document server publishes in (default: euc-kr)
	SourceCharset string `env:"DOWNLOAD_SOURCE_CHARSET" default:"euc-kr"`

	// Timeout bounds the whole download (default: 2m)
	Timeout time.Duration `env:"DOWNLOAD_TIMEOUT" default:"2m"`

	// MaxBytes caps the downloaded document size (default: 512MB)
	MaxBytes int64 `env:"DOWNLOAD_MAX_BYTES" default:"536870912"`
}

// RegistryConfig holds settings for the business registration API.
type RegistryConfig struct {
	// BaseURL is the registry list endpoint (required)
	BaseURL string `env:"REGISTRY_BASE_URL" envAlt:"FTC_API_BASE_URL" required:"true"`

	// APIKey is the data portal service key (required)
	APIKey string `env:"REGISTRY_API_KEY" envAlt:"FTC_API_KEY" required:"true"`

	// PageSize is numOfRows per page (default: 1000)
	PageSize int `env:"REGISTRY_PAGE_SIZE" default:"1000"`

	// Timeout bounds each page request (default: 30s)
	Timeout time.Duration `env:"REGISTRY_TIMEOUT" default:"30s"`

	// MaxRetries is extra attempts per page for transient failures (default: 2)
	MaxRetries int `env:"REGISTRY_MAX_RETRIES" default:"2"`

	// RetryBackoff is the first retry delay, doubled per attempt (default: 500ms)
	RetryBackoff time.Duration `env:"REGISTRY_RETRY_BACKOFF" default:"500ms"`

	// RateLimit is page requests per second; 0 disables pacing (default: 0)
	RateLimit float64 `env:"REGISTRY_RATE_LIMIT" default:"0"`

	// RateBurst is the limiter burst (default: 1)
	RateBurst int `env:"REGISTRY_RATE_BURST" default:"1"`

	// Concurrency is pages fetched in parallel after the first (default: 1)
	Concurrency int `env:"REGISTRY_CONCURRENCY" default:"1"`
}

// StagingConfig holds local file staging settings.
type StagingConfig struct {
	// Dir is the root for per-run staging directories (default: ./data/download)
	Dir string `env:"STAGING_DIR" default:"./data/download"`
}

// FetchConfig holds pipeline concurrency settings.
type FetchConfig struct {
	// MaxConcurrent is the maximum number of parallel fetch runs (default: 2)
	MaxConcurrent int `env:"FETCH_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for a fetch slot (default: 30s)
	MaxWaitTime time.Duration `env:"FETCH_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single fetch run (default: 15m)
	Timeout time.Duration `env:"FETCH_TIMEOUT" default:"15m"`
}

// ArchiveConfig holds S3-compatible object storage settings for enriched files.
type ArchiveConfig struct {
	// Endpoint is host[:port] of the object store. When empty, archiving is off.
	Endpoint string `env:"ARCHIVE_ENDPOINT"`

	// AccessKey is the object store access key.
	AccessKey string `env:"ARCHIVE_ACCESS_KEY"`

	// SecretKey is the object store secret key.
	SecretKey string `env:"ARCHIVE_SECRET_KEY"`

	// Bucket receives archived files.
	Bucket string `env:"ARCHIVE_BUCKET" default:"corpfetch"`

	// Prefix is prepended to every object key (default: companies)
	Prefix string `env:"ARCHIVE_PREFIX" default:"companies"`

	// Region is passed to the client when set.
	Region string `env:"ARCHIVE_REGION"`

	// UseSSL selects https for the endpoint (default: true)
	UseSSL bool `env:"ARCHIVE_USE_SSL" default:"true"`

	// CreateBucket creates the bucket on startup when missing (default: false)
	CreateBucket bool `env:"ARCHIVE_CREATE_BUCKET" default:"false"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Enabled reports whether persistence is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// Enabled reports whether archiving is configured.
func (c *ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}
