package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL flavor differences.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLStore is a durable Store on database/sql. The postgres dialect uses
// lib/pq; the sqlite dialect uses the pure-Go modernc driver.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens and migrates a ledger database. driver is "postgres" or "sqlite".
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	dialect := Dialect(strings.ToLower(driver))
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported ledger driver: %s", driver)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if dialect == DialectSQLite {
		// One writer at a time avoids SQLITE_BUSY under parallel sheets.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}

	s := NewSQLStore(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the ledger tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	idColumn := "BIGSERIAL PRIMARY KEY"
	if s.dialect == DialectSQLite {
		idColumn = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS import_ledger (
			sheet_id     TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			summary      TEXT,
			error_kind   TEXT NOT NULL DEFAULT '',
			error_detail TEXT NOT NULL DEFAULT '',
			attempts     INTEGER NOT NULL DEFAULT 0,
			updated_at   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS import_ledger_events (
			id       ` + idColumn + `,
			sheet_id TEXT NOT NULL,
			status   TEXT NOT NULL,
			detail   TEXT NOT NULL DEFAULT '',
			at       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS import_ledger_events_sheet ON import_ledger_events (sheet_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Get(ctx context.Context, sheetID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT sheet_id, status, summary, error_kind, error_detail, attempts, updated_at
		FROM import_ledger WHERE sheet_id = ?`), sheetID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e       Entry
		status  string
		summary sql.NullString
		updated string
	)
	if err := sc.Scan(&e.SheetID, &status, &summary, &e.ErrorKind, &e.ErrorDetail, &e.Attempts, &updated); err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	if summary.Valid && summary.String != "" {
		var sm Summary
		if err := json.Unmarshal([]byte(summary.String), &sm); err != nil {
			return Entry{}, fmt.Errorf("decode summary for %s: %w", e.SheetID, err)
		}
		e.Summary = &sm
	}
	t, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return Entry{}, fmt.Errorf("decode updated_at for %s: %w", e.SheetID, err)
	}
	e.UpdatedAt = t
	return e, nil
}

func (s *SQLStore) Record(ctx context.Context, e Entry, ev Event) error {
	var summary sql.NullString
	if e.Summary != nil {
		b, err := json.Marshal(e.Summary)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		summary = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO import_ledger (sheet_id, status, summary, error_kind, error_detail, attempts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sheet_id) DO UPDATE SET
			status = excluded.status,
			summary = excluded.summary,
			error_kind = excluded.error_kind,
			error_detail = excluded.error_detail,
			attempts = excluded.attempts,
			updated_at = excluded.updated_at`),
		e.SheetID, string(e.Status), summary, e.ErrorKind, e.ErrorDetail, e.Attempts,
		e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert ledger entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO import_ledger_events (sheet_id, status, detail, at) VALUES (?, ?, ?, ?)`),
		ev.SheetID, string(ev.Status), ev.Detail, ev.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append ledger event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sheet_id, status, summary, error_kind, error_detail, attempts, updated_at
		FROM import_ledger ORDER BY sheet_id`)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, sheetID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM import_ledger WHERE sheet_id = ?`), sheetID)
	if err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Events(ctx context.Context, sheetID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT sheet_id, status, detail, at FROM import_ledger_events
		WHERE sheet_id = ? ORDER BY id`), sheetID)
	if err != nil {
		return nil, fmt.Errorf("list ledger events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev     Event
			status string
			at     string
		)
		if err := rows.Scan(&ev.SheetID, &status, &ev.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		ev.Status = Status(status)
		if ev.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("decode event time: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
