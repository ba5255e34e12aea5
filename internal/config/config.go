// Package config loads importer settings from environment variables.
// Every field has a default except where a feature needs an address; the
// loaded config is validated up front so a bad setting fails the process
// before any sheet is touched.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ledger   LedgerConfig
	Redis    RedisConfig
	Sheets   SheetsConfig
	Import   ImportConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP automation API settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	// WriteTimeout must cover a synchronous batch run.
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// Catalog store kinds.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// DatabaseConfig holds the catalog database settings.
type DatabaseConfig struct {
	// Store selects the catalog backend: postgres or memory.
	Store string `env:"CATALOG_STORE" default:"postgres"`

	// URL is the PostgreSQL connection string; required for the postgres store.
	URL string `env:"DATABASE_URL,DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// LedgerConfig selects where import progress is recorded.
type LedgerConfig struct {
	// Driver is sqlite or postgres.
	Driver string `env:"LEDGER_DRIVER" default:"sqlite"`

	// DSN defaults to DATABASE_URL for the postgres driver.
	DSN string `env:"LEDGER_DSN" default:"file:pricesheet-ledger.db?_pragma=busy_timeout(5000)"`
}

// RedisConfig enables cross-process locking when Addr is set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" default:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" default:"10"`

	KeyPrefix string        `env:"LOCK_KEY_PREFIX" default:"pricesheet:lock:"`
	LockTTL   time.Duration `env:"LOCK_TTL" default:"30s"`
	LockWait  time.Duration `env:"LOCK_WAIT" default:"15s"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// SheetsConfig holds sheet source settings.
type SheetsConfig struct {
	Manifest string `env:"SHEETS_MANIFEST" default:"manifest.yaml"`

	MaxConcurrent int           `env:"SHEETS_FETCH_CONCURRENCY" default:"4"`
	MinInterval   time.Duration `env:"SHEETS_FETCH_INTERVAL" default:"250ms"`
	MaxWait       time.Duration `env:"SHEETS_FETCH_MAX_WAIT" default:"1m"`
	HTTPTimeout   time.Duration `env:"SHEETS_HTTP_TIMEOUT" default:"30s"`
}

// ImportConfig holds orchestrator settings.
type ImportConfig struct {
	// Concurrency is how many sheets a batch processes at once.
	Concurrency int `env:"IMPORT_CONCURRENCY" default:"1"`

	// ScanRows is the classifier's header search window.
	ScanRows int `env:"IMPORT_SCAN_ROWS" default:"35"`

	ReconcileAttempts int           `env:"IMPORT_RECONCILE_ATTEMPTS" default:"3"`
	RetryBackoff      time.Duration `env:"IMPORT_RETRY_BACKOFF" default:"500ms"`

	// DumpRows is how many leading rows are logged for an unrecognized sheet.
	DumpRows int `env:"IMPORT_DUMP_ROWS" default:"15"`

	SheetTimeout time.Duration `env:"IMPORT_SHEET_TIMEOUT" default:"5m"`
}

// SecurityConfig holds API authentication settings.
type SecurityConfig struct {
	APIKeys       []string `env:"API_KEYS"`
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`

	// TrustedProxies are CIDRs whose X-Real-IP and X-Forwarded-For headers
	// are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RateLimit is requests per minute per client; 0 disables limiting.
	RateLimit int `env:"RATE_LIMIT_PER_MINUTE" default:"120"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// LedgerDSN returns the ledger DSN, falling back to the catalog database
// for the postgres driver.
func (c *Config) LedgerDSN() string {
	if c.Ledger.Driver == "postgres" && (c.Ledger.DSN == "" || c.Ledger.DSN == defaultLedgerDSN) {
		return c.Database.URL
	}
	return c.Ledger.DSN
}

const defaultLedgerDSN = "file:pricesheet-ledger.db?_pragma=busy_timeout(5000)"
