package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks the variables tests depend on; the loader treats empty
// values as unset.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"CATALOG_STORE", "DATABASE_URL", "DB_URL", "LEDGER_DRIVER", "LEDGER_DSN",
		"REDIS_ADDR", "IMPORT_CONCURRENCY", "IMPORT_SCAN_ROWS", "SERVER_PORT",
		"LOG_LEVEL", "API_KEYS", "REQUIRE_API_KEY", "SHEETS_FETCH_INTERVAL",
	} {
		t.Setenv(k, "")
	}
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Database: DatabaseConfig{Store: StorePostgres, URL: "postgres://localhost/test", MaxConns: 10, MinConns: 1},
		Ledger:   LedgerConfig{Driver: "sqlite", DSN: "file:test.db"},
		Sheets:   SheetsConfig{MaxConcurrent: 1, HTTPTimeout: time.Second},
		Import:   ImportConfig{Concurrency: 1, ScanRows: 35, ReconcileAttempts: 1},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Server.Port", cfg.Server.Port, 8080},
		{"Database.Store", cfg.Database.Store, StorePostgres},
		{"Ledger.Driver", cfg.Ledger.Driver, "sqlite"},
		{"Import.ScanRows", cfg.Import.ScanRows, 35},
		{"Import.Concurrency", cfg.Import.Concurrency, 1},
		{"Import.ReconcileAttempts", cfg.Import.ReconcileAttempts, 3},
		{"Import.RetryBackoff", cfg.Import.RetryBackoff, 500 * time.Millisecond},
		{"Sheets.MinInterval", cfg.Sheets.MinInterval, 250 * time.Millisecond},
		{"Redis.Enabled", cfg.Redis.Enabled(), false},
		{"Redis.LockTTL", cfg.Redis.LockTTL, 30 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOG_STORE", "memory")
	t.Setenv("IMPORT_CONCURRENCY", "4")
	t.Setenv("SHEETS_FETCH_INTERVAL", "1s")
	t.Setenv("API_KEYS", "a, b ,")
	t.Setenv("REQUIRE_API_KEY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Import.Concurrency != 4 {
		t.Errorf("Import.Concurrency = %d, want 4", cfg.Import.Concurrency)
	}
	if cfg.Sheets.MinInterval != time.Second {
		t.Errorf("Sheets.MinInterval = %v, want 1s", cfg.Sheets.MinInterval)
	}
	if len(cfg.Security.APIKeys) != 2 || cfg.Security.APIKeys[1] != "b" {
		t.Errorf("Security.APIKeys = %q, want [a b]", cfg.Security.APIKeys)
	}
}

func TestLoadAltEnvVar(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_URL", "postgres://localhost/alt")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/alt" {
		t.Errorf("Database.URL = %q", cfg.Database.URL)
	}
}

func TestLoadInvalidValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOG_STORE", "memory")
	t.Setenv("IMPORT_SCAN_ROWS", "many")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "IMPORT_SCAN_ROWS") {
		t.Errorf("Load() error = %v, want mention of IMPORT_SCAN_ROWS", err)
	}
}

func TestLoadReportsEveryBadValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOG_STORE", "memory")
	t.Setenv("IMPORT_SCAN_ROWS", "many")
	t.Setenv("SHEETS_FETCH_INTERVAL", "soon")
	t.Setenv("REQUIRE_API_KEY", "maybe")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() error = nil")
	}
	for _, name := range []string{"IMPORT_SCAN_ROWS", "SHEETS_FETCH_INTERVAL", "REQUIRE_API_KEY"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Load() error missing %s: %v", name, err)
		}
	}
}

func TestLoadPrefersFirstEnvName(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/primary")
	t.Setenv("DB_URL", "postgres://localhost/alt")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/primary" {
		t.Errorf("Database.URL = %q, want the DATABASE_URL value", cfg.Database.URL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"postgres without url", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL"},
		{"memory without url", func(c *Config) { c.Database.Store = StoreMemory; c.Database.URL = "" }, ""},
		{"unknown store", func(c *Config) { c.Database.Store = "mongo" }, "CATALOG_STORE"},
		{"max below min", func(c *Config) { c.Database.MaxConns = 1; c.Database.MinConns = 5 }, "DB_MAX_CONNS"},
		{"unknown ledger", func(c *Config) { c.Ledger.Driver = "bolt" }, "LEDGER_DRIVER"},
		{"zero scan rows", func(c *Config) { c.Import.ScanRows = 0 }, "IMPORT_SCAN_ROWS"},
		{"zero concurrency", func(c *Config) { c.Import.Concurrency = 0 }, "IMPORT_CONCURRENCY"},
		{"bad port", func(c *Config) { c.Server.Port = 99999 }, "SERVER_PORT"},
		{"keys required", func(c *Config) { c.Security.RequireAPIKey = true }, "API_KEYS"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"redis without ttl", func(c *Config) { c.Redis.Addr = "localhost:6379" }, "LOCK_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := validConfig()
	cfg.Import.ScanRows = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{"IMPORT_SCAN_ROWS", "LOG_FORMAT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %s: %v", want, err)
		}
	}
}

func TestLedgerDSN(t *testing.T) {
	cfg := validConfig()
	if got := cfg.LedgerDSN(); got != "file:test.db" {
		t.Errorf("sqlite LedgerDSN() = %q", got)
	}

	cfg.Ledger = LedgerConfig{Driver: "postgres", DSN: defaultLedgerDSN}
	if got := cfg.LedgerDSN(); got != cfg.Database.URL {
		t.Errorf("postgres LedgerDSN() = %q, want catalog URL", got)
	}

	cfg.Ledger.DSN = "postgres://other/ledger"
	if got := cfg.LedgerDSN(); got != "postgres://other/ledger" {
		t.Errorf("explicit LedgerDSN() = %q", got)
	}
}

func TestServerAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"", 8080, ":8080"},
		{"0.0.0.0", 8080, "0.0.0.0:8080"},
		{"127.0.0.1", 3000, "127.0.0.1:3000"},
	}
	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: tt.port}
		if got := cfg.Addr(); got != tt.want {
			t.Errorf("Addr() with host=%q, port=%d = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = "postgres://user:hunter2@db/catalog"
	cfg.Redis.Password = "s3cret"
	cfg.Security.APIKeys = []string{"key-abc"}

	s := cfg.String()
	for _, secret := range []string{"hunter2", "s3cret", "key-abc"} {
		if strings.Contains(s, secret) {
			t.Errorf("String() leaks %q: %s", secret, s)
		}
	}
	if !strings.Contains(s, "[MASKED]") {
		t.Errorf("String() = %s, want [MASKED]", s)
	}
}
