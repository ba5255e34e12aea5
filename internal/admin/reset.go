// Package admin provides destructive maintenance operations: clearing the
// catalog and forgetting ledger entries so sheets are imported again.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/pricesheet/internal/ledger"
	"github.com/JonMunkholm/pricesheet/internal/logging"
)

// ResetTimeout bounds a reset.
const ResetTimeout = 30 * time.Second

// Truncater empties a catalog store.
type Truncater interface {
	Truncate(ctx context.Context) error
}

// Reset clears catalog and ledger state.
type Reset struct {
	Catalog Truncater
	Ledger  *ledger.Ledger
}

// ResetAll empties the catalog and forgets every ledger entry. Ledger
// history is kept.
func (r *Reset) ResetAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	if err := r.Catalog.Truncate(ctx); err != nil {
		return err
	}
	entries, err := r.Ledger.Entries(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.SheetID
	}
	if _, err := r.ForgetSheets(ctx, ids); err != nil {
		return err
	}
	logging.FromContext(ctx).Warn("catalog and ledger reset", "sheets", len(ids))
	return nil
}

// ForgetSheets returns the given sheets to unseen.
func (r *Reset) ForgetSheets(ctx context.Context, ids []string) (int, error) {
	for i, id := range ids {
		if err := r.Ledger.Forget(ctx, id); err != nil {
			return i, fmt.Errorf("forget %s: %w", id, err)
		}
	}
	return len(ids), nil
}

// ForgetFailed returns every failed sheet to unseen.
func (r *Reset) ForgetFailed(ctx context.Context) (int, error) {
	entries, err := r.Ledger.Entries(ctx)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, e := range entries {
		if e.Status == ledger.Failed {
			ids = append(ids, e.SheetID)
		}
	}
	return r.ForgetSheets(ctx, ids)
}
