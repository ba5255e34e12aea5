package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a non-durable Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	events  []Event

	// FailRecord, when set, is returned by Record instead of writing.
	FailRecord error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, sheetID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sheetID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) Record(_ context.Context, e Entry, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailRecord != nil {
		return s.FailRecord
	}
	s.entries[e.SheetID] = e
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SheetID < out[j].SheetID })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, sheetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[sheetID]; !ok {
		return ErrNotFound
	}
	delete(s.entries, sheetID)
	return nil
}

func (s *MemoryStore) Events(_ context.Context, sheetID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, ev := range s.events {
		if ev.SheetID == sheetID {
			out = append(out, ev)
		}
	}
	return out, nil
}
