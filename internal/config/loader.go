package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables, applies defaults
// and validates the result.
//
// A field's env tag lists one or more variable names separated by commas;
// the first one that is set wins. An empty variable counts as unset, so the
// default tag applies.
func Load() (*Config, error) {
	cfg := &Config{}

	var errs []string
	loadFields(reflect.ValueOf(cfg).Elem(), &errs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("config load:\n  - %s", strings.Join(errs, "\n  - "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loadFields fills every tagged field of the section struct v, descending
// into nested sections, and appends one message per unparsable value.
func loadFields(v reflect.Value, errs *[]string) {
	for i := 0; i < v.NumField(); i++ {
		field, sf := v.Field(i), v.Type().Field(i)
		if !field.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			loadFields(field, errs)
			continue
		}

		tag := sf.Tag.Get("env")
		if tag == "" {
			continue
		}
		names := strings.Split(tag, ",")
		name, raw := lookupEnv(names)
		if raw == "" {
			name, raw = names[0], sf.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := parseInto(field, raw); err != nil {
			*errs = append(*errs, fmt.Sprintf("%s=%q: %v", name, raw, err))
		}
	}
}

// lookupEnv returns the first of names with a non-empty value.
func lookupEnv(names []string) (string, string) {
	for _, n := range names {
		if val := os.Getenv(n); val != "" {
			return n, val
		}
	}
	return "", ""
}

var durationType = reflect.TypeOf(time.Duration(0))

// parseInto stores raw in field according to the field's type. String
// slices are comma-separated with blanks dropped.
func parseInto(field reflect.Value, raw string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("not a duration")
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(raw)
	case field.Kind() == reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("not an integer")
		}
		field.SetInt(int64(n))
	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("not a boolean")
		}
		field.SetBool(b)
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when CATALOG_STORE=postgres")
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Sprintf("CATALOG_STORE (%q) must be one of: postgres, memory", c.Database.Store))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}

	switch c.Ledger.Driver {
	case "sqlite":
		if c.Ledger.DSN == "" {
			errs = append(errs, "LEDGER_DSN is required for the sqlite ledger")
		}
	case "postgres":
		if c.LedgerDSN() == "" {
			errs = append(errs, "LEDGER_DSN or DATABASE_URL is required for the postgres ledger")
		}
	default:
		errs = append(errs, fmt.Sprintf("LEDGER_DRIVER (%q) must be one of: sqlite, postgres", c.Ledger.Driver))
	}

	if c.Redis.Enabled() {
		if c.Redis.LockTTL <= 0 {
			errs = append(errs, "LOCK_TTL must be positive")
		}
		if c.Redis.LockWait <= 0 {
			errs = append(errs, "LOCK_WAIT must be positive")
		}
	}

	if c.Sheets.MaxConcurrent <= 0 {
		errs = append(errs, "SHEETS_FETCH_CONCURRENCY must be positive")
	}
	if c.Sheets.MinInterval < 0 {
		errs = append(errs, "SHEETS_FETCH_INTERVAL must be non-negative")
	}
	if c.Sheets.HTTPTimeout <= 0 {
		errs = append(errs, "SHEETS_HTTP_TIMEOUT must be positive")
	}

	if c.Import.Concurrency <= 0 {
		errs = append(errs, "IMPORT_CONCURRENCY must be positive")
	}
	if c.Import.ScanRows <= 0 {
		errs = append(errs, "IMPORT_SCAN_ROWS must be positive")
	}
	if c.Import.ReconcileAttempts <= 0 {
		errs = append(errs, "IMPORT_RECONCILE_ATTEMPTS must be positive")
	}
	if c.Import.RetryBackoff < 0 {
		errs = append(errs, "IMPORT_RETRY_BACKOFF must be non-negative")
	}
	if c.Import.DumpRows < 0 {
		errs = append(errs, "IMPORT_DUMP_ROWS must be non-negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty")
	}
	if c.Security.RateLimit < 0 {
		errs = append(errs, "RATE_LIMIT_PER_MINUTE must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String renders the config for logging with secrets masked.
func (c *Config) String() string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "[MASKED]"
	}
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Database: {Store: %s, URL: %s, MaxConns: %d}, ", c.Database.Store, mask(c.Database.URL), c.Database.MaxConns)
	ledgerDSN := c.Ledger.DSN
	if c.Ledger.Driver == "postgres" {
		ledgerDSN = mask(c.LedgerDSN())
	}
	fmt.Fprintf(&b, "Ledger: {Driver: %s, DSN: %s}, ", c.Ledger.Driver, ledgerDSN)
	fmt.Fprintf(&b, "Redis: {Addr: %q, Password: %s}, ", c.Redis.Addr, mask(c.Redis.Password))
	fmt.Fprintf(&b, "Import: {Concurrency: %d, ScanRows: %d, ReconcileAttempts: %d}, ",
		c.Import.Concurrency, c.Import.ScanRows, c.Import.ReconcileAttempts)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d}, ", c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
