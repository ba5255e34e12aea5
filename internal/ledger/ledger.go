// Package ledger records which sheets of a batch have been imported.
//
// Each sheet moves Unseen -> Processing -> Completed | Failed. Completed is
// terminal: a completed sheet is skipped on every later run until it is
// explicitly forgotten. Failed is not terminal: the next run retries it.
// Every transition is written together with an append-only event, so the
// history of a sheet survives later state changes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is a sheet's ledger state.
type Status string

const (
	Unseen     Status = "unseen"
	Processing Status = "processing"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

var (
	// ErrNotFound is returned by stores for a sheet with no entry.
	ErrNotFound = errors.New("ledger: entry not found")
	// ErrTerminal is returned when a completed sheet is started again.
	ErrTerminal = errors.New("ledger: sheet already completed")
	// ErrInvalidTransition is returned for a transition the state machine forbids.
	ErrInvalidTransition = errors.New("ledger: invalid transition")
)

// transitions lists the states each target may be entered from. Processing
// may be re-entered from Processing so a run interrupted mid-sheet can resume.
var transitions = map[Status][]Status{
	Processing: {Unseen, Failed, Processing},
	Completed:  {Processing},
	Failed:     {Unseen, Processing, Failed},
}

func canTransition(from, to Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Summary is recorded with a completed sheet.
type Summary struct {
	Layout          string   `json:"layout"`
	Products        int      `json:"products"`
	Variants        int      `json:"variants"`
	VariantsCreated int      `json:"variants_created"`
	EntriesAdded    int      `json:"entries_added"`
	EntriesUpdated  int      `json:"entries_updated"`
	Unchanged       int      `json:"unchanged"`
	ProductIDs      []string `json:"product_ids,omitempty"`
}

// Entry is the current ledger state of one sheet.
type Entry struct {
	SheetID     string
	Status      Status
	Summary     *Summary
	ErrorKind   string
	ErrorDetail string
	Attempts    int
	UpdatedAt   time.Time
}

// Event is one recorded transition.
type Event struct {
	SheetID string
	Status  Status
	Detail  string
	At      time.Time
}

// Store persists ledger entries and events. Record must write the entry and
// its event atomically.
type Store interface {
	Get(ctx context.Context, sheetID string) (Entry, error)
	Record(ctx context.Context, e Entry, ev Event) error
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, sheetID string) error
	Events(ctx context.Context, sheetID string) ([]Event, error)
}

// Ledger applies the sheet state machine over a Store.
type Ledger struct {
	store Store
	now   func() time.Time
	mu    sync.Mutex
}

// New returns a ledger over store.
func New(store Store) *Ledger {
	return &Ledger{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Status returns the entry for a sheet. Sheets with no entry are Unseen.
func (l *Ledger) Status(ctx context.Context, sheetID string) (Entry, error) {
	e, err := l.store.Get(ctx, sheetID)
	if errors.Is(err, ErrNotFound) {
		return Entry{SheetID: sheetID, Status: Unseen}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ledger status %q: %w", sheetID, err)
	}
	return e, nil
}

// Begin moves a sheet to Processing and counts the attempt. It returns
// ErrTerminal for a completed sheet.
func (l *Ledger) Begin(ctx context.Context, sheetID string) (Entry, error) {
	return l.transition(ctx, sheetID, Processing, func(e *Entry) string {
		e.Attempts++
		e.ErrorKind, e.ErrorDetail = "", ""
		return fmt.Sprintf("attempt %d", e.Attempts)
	})
}

// Complete moves a processing sheet to Completed with its summary.
func (l *Ledger) Complete(ctx context.Context, sheetID string, s Summary) error {
	_, err := l.transition(ctx, sheetID, Completed, func(e *Entry) string {
		e.Summary = &s
		e.ErrorKind, e.ErrorDetail = "", ""
		return fmt.Sprintf("%d variants across %d products", s.Variants, s.Products)
	})
	return err
}

// Fail moves a sheet to Failed with the error kind and detail.
func (l *Ledger) Fail(ctx context.Context, sheetID, kind, detail string) error {
	_, err := l.transition(ctx, sheetID, Failed, func(e *Entry) string {
		e.Summary = nil
		e.ErrorKind, e.ErrorDetail = kind, detail
		return kind + ": " + detail
	})
	return err
}

func (l *Ledger) transition(ctx context.Context, sheetID string, to Status, apply func(*Entry) string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, err := l.Status(ctx, sheetID)
	if err != nil {
		return Entry{}, err
	}
	if e.Status == Completed {
		return e, fmt.Errorf("%w: %s", ErrTerminal, sheetID)
	}
	if !canTransition(e.Status, to) {
		return e, fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, e.Status, to, sheetID)
	}

	e.Status = to
	e.UpdatedAt = l.now()
	detail := apply(&e)
	ev := Event{SheetID: sheetID, Status: to, Detail: detail, At: e.UpdatedAt}
	if err := l.store.Record(ctx, e, ev); err != nil {
		return Entry{}, fmt.Errorf("ledger record %q %s: %w", sheetID, to, err)
	}
	return e, nil
}

// Forget removes a sheet's current entry so the next run imports it again.
// Its event history is kept.
func (l *Ledger) Forget(ctx context.Context, sheetID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Delete(ctx, sheetID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("ledger forget %q: %w", sheetID, err)
	}
	return nil
}

// Entries returns every recorded entry.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	return l.store.List(ctx)
}

// History returns the recorded transitions of a sheet, oldest first.
func (l *Ledger) History(ctx context.Context, sheetID string) ([]Event, error) {
	return l.store.Events(ctx, sheetID)
}

// Progress summarizes a batch. Remaining counts sheets that are neither
// completed nor failed.
type Progress struct {
	Total      int      `json:"total"`
	Completed  int      `json:"completed"`
	Failed     int      `json:"failed"`
	Processing int      `json:"processing"`
	Remaining  int      `json:"remaining"`
	FailedIDs  []string `json:"failed_ids,omitempty"`
}

// Progress counts the ledger state of the given sheets.
func (l *Ledger) Progress(ctx context.Context, sheetIDs []string) (Progress, error) {
	entries, err := l.store.List(ctx)
	if err != nil {
		return Progress{}, fmt.Errorf("ledger progress: %w", err)
	}
	byID := make(map[string]Status, len(entries))
	for _, e := range entries {
		byID[e.SheetID] = e.Status
	}

	p := Progress{Total: len(sheetIDs)}
	for _, id := range sheetIDs {
		switch byID[id] {
		case Completed:
			p.Completed++
		case Failed:
			p.Failed++
			p.FailedIDs = append(p.FailedIDs, id)
		case Processing:
			p.Processing++
			p.Remaining++
		default:
			p.Remaining++
		}
	}
	return p, nil
}
