package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/pricesheet/internal/admin"
	"github.com/JonMunkholm/pricesheet/internal/catalog"
	"github.com/JonMunkholm/pricesheet/internal/catalog/pgstore"
	"github.com/JonMunkholm/pricesheet/internal/config"
	"github.com/JonMunkholm/pricesheet/internal/importer"
	"github.com/JonMunkholm/pricesheet/internal/ledger"
	"github.com/JonMunkholm/pricesheet/internal/lock"
	"github.com/JonMunkholm/pricesheet/internal/metrics"
	"github.com/JonMunkholm/pricesheet/internal/sheets"
)

// app holds the process-wide dependencies of a command.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	redis    *redis.Client
	ledgerDB *ledger.SQLStore

	catalog  catalog.Store
	reset    *admin.Reset
	ledger   *ledger.Ledger
	throttle *sheets.Throttle
	metrics  *metrics.Collectors
	manifest *sheets.Manifest
	orch     *importer.Orchestrator
}

// openApp connects the stores. The manifest and orchestrator are only
// built when withBatch is set.
func openApp(ctx context.Context, cfg *config.Config, withBatch bool) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var truncater admin.Truncater
	switch cfg.Database.Store {
	case config.StorePostgres:
		if a.pool, err = openPool(ctx, cfg.Database); err != nil {
			return nil, err
		}
		pg := pgstore.New(a.pool)
		a.catalog, truncater = pg, pg
	default:
		slog.Warn("using in-memory catalog; nothing will be persisted")
		mem := catalog.NewMemoryStore()
		a.catalog, truncater = mem, mem
	}

	if a.ledgerDB, err = ledger.Open(ctx, cfg.Ledger.Driver, cfg.LedgerDSN()); err != nil {
		return nil, err
	}
	a.ledger = ledger.New(a.ledgerDB)
	a.reset = &admin.Reset{Catalog: truncater, Ledger: a.ledger}

	if !withBatch {
		return a, nil
	}

	locker, err := a.locker(ctx)
	if err != nil {
		return nil, err
	}

	if a.manifest, err = sheets.LoadManifest(cfg.Sheets.Manifest); err != nil {
		return nil, err
	}
	slog.Info("manifest loaded", "path", cfg.Sheets.Manifest, "sheets", len(a.manifest.Sheets))

	a.throttle = sheets.NewThrottle(cfg.Sheets.MaxConcurrent, cfg.Sheets.MinInterval, cfg.Sheets.MaxWait)
	src := sheets.Throttled(sheets.NewRouter(sheets.NewHTMLSource(cfg.Sheets.HTTPTimeout)), a.throttle)

	a.metrics = metrics.New(nil)
	a.orch = importer.New(
		a.manifest,
		src,
		catalog.NewReconciler(a.catalog, locker),
		a.ledger,
		a.metrics,
		importer.Options{
			Concurrency:       cfg.Import.Concurrency,
			ScanRows:          cfg.Import.ScanRows,
			ReconcileAttempts: cfg.Import.ReconcileAttempts,
			RetryBackoff:      cfg.Import.RetryBackoff,
			DumpRows:          cfg.Import.DumpRows,
			SheetTimeout:      cfg.Import.SheetTimeout,
		},
	)
	return a, nil
}

// locker returns a Redis locker when Redis is configured, otherwise an
// in-process one.
func (a *app) locker(ctx context.Context) (catalog.Locker, error) {
	rc := a.cfg.Redis
	if !rc.Enabled() {
		return lock.NewKeyedMutex(), nil
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		PoolSize: rc.PoolSize,
	})
	l := lock.NewRedisLocker(a.redis, lock.RedisConfig{
		Prefix: rc.KeyPrefix,
		TTL:    rc.LockTTL,
		Wait:   rc.LockWait,
	})
	if err := l.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", rc.Addr, err)
	}
	slog.Info("using redis locks", "addr", rc.Addr)
	return l, nil
}

func openPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(db.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(db.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}

// migrate creates the catalog and ledger schemas. The ledger migrates on open.
func (a *app) migrate(ctx context.Context) error {
	if m, ok := a.catalog.(interface{ Migrate(context.Context) error }); ok {
		if err := m.Migrate(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.ledgerDB != nil {
		a.ledgerDB.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
