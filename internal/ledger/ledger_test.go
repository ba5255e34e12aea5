package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// stores returns each Store implementation under test.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestLedgerLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := New(store)

			e, err := l.Status(ctx, "sheet-1")
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			if e.Status != Unseen {
				t.Errorf("Status = %q, want %q", e.Status, Unseen)
			}

			e, err = l.Begin(ctx, "sheet-1")
			if err != nil {
				t.Fatalf("Begin() error = %v", err)
			}
			if e.Status != Processing || e.Attempts != 1 {
				t.Errorf("after Begin = (%q, %d), want (processing, 1)", e.Status, e.Attempts)
			}

			sum := Summary{Layout: "board", Products: 2, Variants: 3, ProductIDs: []string{"a", "b"}}
			if err := l.Complete(ctx, "sheet-1", sum); err != nil {
				t.Fatalf("Complete() error = %v", err)
			}

			e, err = l.Status(ctx, "sheet-1")
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			if e.Status != Completed {
				t.Errorf("Status = %q, want completed", e.Status)
			}
			if e.Summary == nil || e.Summary.Variants != 3 || len(e.Summary.ProductIDs) != 2 {
				t.Errorf("Summary = %+v", e.Summary)
			}
			if e.UpdatedAt.IsZero() {
				t.Error("UpdatedAt is zero")
			}

			if _, err := l.Begin(ctx, "sheet-1"); !errors.Is(err, ErrTerminal) {
				t.Errorf("Begin() on completed error = %v, want ErrTerminal", err)
			}
			if err := l.Fail(ctx, "sheet-1", "extraction", "x"); !errors.Is(err, ErrTerminal) {
				t.Errorf("Fail() on completed error = %v, want ErrTerminal", err)
			}

			events, err := l.History(ctx, "sheet-1")
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}
			if len(events) != 2 || events[0].Status != Processing || events[1].Status != Completed {
				t.Errorf("History() = %+v, want processing then completed", events)
			}
		})
	}
}

func TestLedgerFailedIsRetried(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := New(store)

			if _, err := l.Begin(ctx, "s"); err != nil {
				t.Fatalf("Begin() error = %v", err)
			}
			if err := l.Fail(ctx, "s", "classification", "no signature matched"); err != nil {
				t.Fatalf("Fail() error = %v", err)
			}

			e, _ := l.Status(ctx, "s")
			if e.Status != Failed || e.ErrorKind != "classification" {
				t.Errorf("after Fail = (%q, %q)", e.Status, e.ErrorKind)
			}

			e, err := l.Begin(ctx, "s")
			if err != nil {
				t.Fatalf("Begin() after failure error = %v", err)
			}
			if e.Attempts != 2 || e.ErrorKind != "" {
				t.Errorf("retry = (attempts %d, kind %q), want (2, \"\")", e.Attempts, e.ErrorKind)
			}
		})
	}
}

func TestLedgerTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{Unseen, Processing, true},
		{Failed, Processing, true},
		{Processing, Processing, true},
		{Processing, Completed, true},
		{Unseen, Completed, false},
		{Failed, Completed, false},
		{Processing, Failed, true},
		{Unseen, Failed, true},
		{Completed, Processing, false},
		{Completed, Failed, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestLedgerCompleteRequiresProcessing(t *testing.T) {
	l := New(NewMemoryStore())
	err := l.Complete(context.Background(), "never-started", Summary{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Complete() on unseen error = %v, want ErrInvalidTransition", err)
	}
}

func TestLedgerForget(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := New(store)

			l.Begin(ctx, "s")
			l.Complete(ctx, "s", Summary{})
			if err := l.Forget(ctx, "s"); err != nil {
				t.Fatalf("Forget() error = %v", err)
			}
			if err := l.Forget(ctx, "never-seen"); err != nil {
				t.Errorf("Forget() of unknown sheet error = %v", err)
			}

			e, _ := l.Status(ctx, "s")
			if e.Status != Unseen {
				t.Errorf("Status after Forget = %q, want unseen", e.Status)
			}
			if _, err := l.Begin(ctx, "s"); err != nil {
				t.Errorf("Begin() after Forget error = %v", err)
			}
			events, _ := l.History(ctx, "s")
			if len(events) != 3 {
				t.Errorf("len(History) = %d, want 3 (history survives Forget)", len(events))
			}
		})
	}
}

func TestLedgerProgress(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := New(store)

			l.Begin(ctx, "a")
			l.Complete(ctx, "a", Summary{})
			l.Begin(ctx, "b")
			l.Fail(ctx, "b", "extraction", "no prices")
			l.Begin(ctx, "c")

			p, err := l.Progress(ctx, []string{"a", "b", "c", "d"})
			if err != nil {
				t.Fatalf("Progress() error = %v", err)
			}
			want := Progress{Total: 4, Completed: 1, Failed: 1, Processing: 1, Remaining: 2}
			if p.Total != want.Total || p.Completed != want.Completed || p.Failed != want.Failed ||
				p.Processing != want.Processing || p.Remaining != want.Remaining {
				t.Errorf("Progress() = %+v, want %+v", p, want)
			}
			if len(p.FailedIDs) != 1 || p.FailedIDs[0] != "b" {
				t.Errorf("FailedIDs = %v, want [b]", p.FailedIDs)
			}
		})
	}
}

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s1, err := Open(ctx, "sqlite", path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	l := New(s1)
	l.Begin(ctx, "s")
	if err := l.Complete(ctx, "s", Summary{Variants: 7}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	s1.Close()

	s2, err := Open(ctx, "sqlite", path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	e, err := New(s2).Status(ctx, "s")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if e.Status != Completed || e.Summary == nil || e.Summary.Variants != 7 {
		t.Errorf("after reopen = %+v", e)
	}
}

func TestLedgerRecordFailureLeavesState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l := New(store)
	l.Begin(ctx, "s")

	store.FailRecord = errors.New("disk full")
	if err := l.Complete(ctx, "s", Summary{}); err == nil {
		t.Fatal("Complete() succeeded with failing store")
	}
	store.FailRecord = nil

	e, _ := l.Status(ctx, "s")
	if e.Status != Processing {
		t.Errorf("Status = %q, want processing", e.Status)
	}
}

func TestRebind(t *testing.T) {
	pg := NewSQLStore(nil, DialectPostgres)
	if got, want := pg.rebind("a = ? AND b = ?"), "a = $1 AND b = $2"; got != want {
		t.Errorf("rebind() = %q, want %q", got, want)
	}
	lite := NewSQLStore(nil, DialectSQLite)
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind() = %q", got)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", ""); err == nil {
		t.Error("Open(oracle) succeeded")
	}
}
