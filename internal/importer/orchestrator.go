// Package importer drives sheets through fetch, classification, extraction
// and catalog reconciliation, recording each outcome in the import ledger.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/pricesheet/internal/catalog"
	"github.com/JonMunkholm/pricesheet/internal/classify"
	"github.com/JonMunkholm/pricesheet/internal/extract"
	"github.com/JonMunkholm/pricesheet/internal/grid"
	"github.com/JonMunkholm/pricesheet/internal/ledger"
	"github.com/JonMunkholm/pricesheet/internal/logging"
	"github.com/JonMunkholm/pricesheet/internal/metrics"
	"github.com/JonMunkholm/pricesheet/internal/sheets"
)

// ErrUnknownSheet is returned for a sheet id that is not in the batch.
var ErrUnknownSheet = errors.New("sheet is not in the batch")

// Batch is the ordered set of sheets to import. *sheets.Manifest satisfies it.
type Batch interface {
	IDs() []string
	Sheet(id string) (sheets.Sheet, bool)
}

// Outcome is what happened to one sheet.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeFailed           Outcome = "failed"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeNoData           Outcome = "no_data"
)

// Skipped reports whether the sheet was left untouched.
func (o Outcome) Skipped() bool {
	return o == OutcomeAlreadyCompleted || o == OutcomeNoData
}

// SheetResult reports one sheet.
type SheetResult struct {
	SheetID  string          `json:"sheet_id"`
	Outcome  Outcome         `json:"outcome"`
	Layout   string          `json:"layout,omitempty"`
	Summary  *ledger.Summary `json:"summary,omitempty"`
	Attempt  int             `json:"attempt,omitempty"`
	Duration time.Duration   `json:"duration"`

	ErrorKind Kind         `json:"error_kind,omitempty"`
	Error     string       `json:"error,omitempty"`
	Message   *UserMessage `json:"message,omitempty"`

	// CatalogCommitted is set when the ledger write failed after
	// reconciliation, and a read-back found every product in the catalog.
	CatalogCommitted bool `json:"catalog_committed,omitempty"`

	err error
}

// Err returns the sheet's failure, if any.
func (r SheetResult) Err() error { return r.err }

// Options tune an Orchestrator. Zero values take defaults.
type Options struct {
	Concurrency       int
	ScanRows          int
	ReconcileAttempts int
	RetryBackoff      time.Duration
	DumpRows          int
	SheetTimeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.ScanRows < 1 {
		o.ScanRows = classify.DefaultScanRows
	}
	if o.ReconcileAttempts < 1 {
		o.ReconcileAttempts = 1
	}
	if o.DumpRows < 0 {
		o.DumpRows = 0
	}
	return o
}

// Orchestrator imports the sheets of a batch.
type Orchestrator struct {
	batch      Batch
	source     sheets.Source
	classifier *classify.Classifier
	reconciler *catalog.Reconciler
	ledger     *ledger.Ledger
	metrics    *metrics.Collectors
	opts       Options

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an orchestrator. m may be nil.
func New(batch Batch, src sheets.Source, rec *catalog.Reconciler, led *ledger.Ledger, m *metrics.Collectors, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		batch:      batch,
		source:     src,
		classifier: classify.New(opts.ScanRows),
		reconciler: rec,
		ledger:     led,
		metrics:    m,
		opts:       opts,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Ledger returns the orchestrator's ledger.
func (o *Orchestrator) Ledger() *ledger.Ledger { return o.ledger }

// Batch returns the orchestrator's batch.
func (o *Orchestrator) Batch() Batch { return o.batch }

// Progress reports the ledger state of the batch.
func (o *Orchestrator) Progress(ctx context.Context) (ledger.Progress, error) {
	return o.ledger.Progress(ctx, o.batch.IDs())
}

// ProcessSheet imports one sheet by id. Sheet failures are reported in the
// result; the error is non-nil only when the id is not in the batch.
func (o *Orchestrator) ProcessSheet(ctx context.Context, id string) (SheetResult, error) {
	sheet, ok := o.batch.Sheet(id)
	if !ok {
		return SheetResult{}, fmt.Errorf("%w: %s", ErrUnknownSheet, id)
	}
	return o.process(ctx, sheet), nil
}

// NextResult is the outcome of ProcessNext. Sheet is nil when no sheet is
// left to import. NoData lists empty sheets passed over on the way.
type NextResult struct {
	Sheet  *SheetResult  `json:"sheet,omitempty"`
	NoData []SheetResult `json:"no_data,omitempty"`
}

// ProcessNext imports the first sheet that has never been attempted, or,
// when every sheet has been, the first failed one. Sheets without data are
// passed over.
func (o *Orchestrator) ProcessNext(ctx context.Context) (NextResult, error) {
	candidates, err := o.pending(ctx)
	if err != nil {
		return NextResult{}, err
	}

	var res NextResult
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sheet, _ := o.batch.Sheet(id)
		r := o.process(ctx, sheet)
		switch r.Outcome {
		case OutcomeNoData:
			res.NoData = append(res.NoData, r)
		case OutcomeAlreadyCompleted:
			// Completed by another process since pending was read.
		default:
			res.Sheet = &r
			return res, nil
		}
	}
	return res, nil
}

// pending returns unseen and interrupted sheets in batch order, followed by
// failed ones.
func (o *Orchestrator) pending(ctx context.Context) ([]string, error) {
	var fresh, failed []string
	for _, id := range o.batch.IDs() {
		e, err := o.ledger.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		switch e.Status {
		case ledger.Completed:
		case ledger.Failed:
			failed = append(failed, id)
		default:
			fresh = append(fresh, id)
		}
	}
	return append(fresh, failed...), nil
}

// FailedSheet names a failed sheet in a batch report.
type FailedSheet struct {
	SheetID string `json:"sheet_id"`
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	Total            int           `json:"total"`
	Completed        int           `json:"completed"`
	Failed           int           `json:"failed"`
	AlreadyCompleted int           `json:"already_completed"`
	NoData           int           `json:"no_data"`
	NotRun           int           `json:"not_run"`
	FailedSheets     []FailedSheet `json:"failed_sheets,omitempty"`
	Results          []SheetResult `json:"results"`
	Duration         time.Duration `json:"duration"`
}

func (b *BatchReport) add(r SheetResult) {
	b.Results = append(b.Results, r)
	switch r.Outcome {
	case OutcomeCompleted:
		b.Completed++
	case OutcomeAlreadyCompleted:
		b.AlreadyCompleted++
	case OutcomeNoData:
		b.NoData++
	case OutcomeFailed:
		b.Failed++
		fs := FailedSheet{SheetID: r.SheetID, Kind: r.ErrorKind, Error: r.Error}
		if r.Message != nil {
			fs.Code = r.Message.Code
		}
		b.FailedSheets = append(b.FailedSheets, fs)
	}
}

// RunBatch imports every sheet of the batch. A failing sheet never stops
// the batch; only cancellation does, in which case the report covers the
// sheets that ran and the context error is returned.
func (o *Orchestrator) RunBatch(ctx context.Context) (BatchReport, error) {
	start := time.Now()
	ids := o.batch.IDs()
	results := make([]*SheetResult, len(ids))

	log := logging.FromContext(ctx)
	log.Info("batch started", "sheets", len(ids), "concurrency", o.opts.Concurrency)

	if o.opts.Concurrency <= 1 {
		for i, id := range ids {
			if ctx.Err() != nil {
				break
			}
			sheet, _ := o.batch.Sheet(id)
			r := o.process(ctx, sheet)
			results[i] = &r
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.opts.Concurrency)
		for i, id := range ids {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				sheet, _ := o.batch.Sheet(id)
				r := o.process(gctx, sheet)
				results[i] = &r
				return nil
			})
		}
		_ = g.Wait()
	}

	report := BatchReport{Total: len(ids)}
	for _, r := range results {
		if r == nil {
			report.NotRun++
			continue
		}
		report.add(*r)
	}
	report.Duration = time.Since(start)

	log.Info("batch finished",
		"completed", report.Completed,
		"failed", report.Failed,
		"already_completed", report.AlreadyCompleted,
		"no_data", report.NoData,
		"not_run", report.NotRun,
		"duration", report.Duration,
	)
	if report.NotRun > 0 {
		return report, ctx.Err()
	}
	return report, nil
}

// process runs one sheet end to end.
func (o *Orchestrator) process(ctx context.Context, sheet sheets.Sheet) (res SheetResult) {
	start := time.Now()
	ctx, log := logging.ForSheet(ctx, sheet.ID)
	if o.opts.SheetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.SheetTimeout)
		defer cancel()
	}

	res = SheetResult{SheetID: sheet.ID}
	defer func() {
		res.Duration = time.Since(start)
		o.metrics.SheetDone(string(res.Outcome), res.Layout, res.Duration)
	}()

	entry, err := o.ledger.Status(ctx, sheet.ID)
	if err != nil {
		return o.failed(ctx, res, newSheetError(KindLedger, sheet.ID, err), false)
	}
	if entry.Status == ledger.Completed {
		log.Debug("sheet already completed")
		res.Outcome = OutcomeAlreadyCompleted
		res.Summary = entry.Summary
		return res
	}

	sc, err := sheet.Context()
	if err != nil {
		return o.failed(ctx, res, newSheetError(KindInput, sheet.ID, err), true)
	}

	g, err := o.source.Fetch(ctx, sheet)
	if errors.Is(err, sheets.ErrNoData) {
		log.Warn("sheet has no data, skipping")
		res.Outcome = OutcomeNoData
		return res
	}
	if err != nil {
		return o.failed(ctx, res, newSheetError(KindSource, sheet.ID, err), true)
	}

	entry, err = o.ledger.Begin(ctx, sheet.ID)
	if errors.Is(err, ledger.ErrTerminal) {
		res.Outcome = OutcomeAlreadyCompleted
		return res
	}
	if err != nil {
		return o.failed(ctx, res, newSheetError(KindLedger, sheet.ID, err), false)
	}
	res.Attempt = entry.Attempts
	log.Info("processing sheet", "attempt", entry.Attempts, "rows", g.Len())

	cls, err := o.classifier.Classify(g)
	if err != nil {
		o.metrics.Classified("not_recognized")
		log.Warn("sheet layout not recognized", "rows", o.dump(g))
		return o.failed(ctx, res, newSheetError(KindClassification, sheet.ID, err), true)
	}
	res.Layout = cls.Layout.String()
	o.metrics.Classified(res.Layout)
	log.Debug("sheet classified", "layout", res.Layout, "header_row", cls.HeaderRow)

	recs, err := extract.Extract(g, cls, sc)
	if err != nil {
		se := newSheetError(KindExtraction, sheet.ID, err)
		se.Row = cls.HeaderRow
		log.Warn("no variants extracted", "layout", res.Layout, "rows", o.dump(g))
		return o.failed(ctx, res, se, true)
	}

	sum, written, err := o.reconcile(ctx, sc, cls, recs)
	if err != nil {
		return o.failed(ctx, res, newSheetError(KindReconciliation, sheet.ID, err), true)
	}
	res.Summary = &sum

	if err := o.ledger.Complete(ctx, sheet.ID, sum); err != nil {
		res.CatalogCommitted = o.readBack(ctx, written)
		log.Error("ledger write failed after reconciliation",
			"error", err, "catalog_committed", res.CatalogCommitted)
		return o.failed(ctx, res, newSheetError(KindLedger, sheet.ID, err), true)
	}

	res.Outcome = OutcomeCompleted
	log.Info("sheet completed",
		"layout", sum.Layout,
		"products", sum.Products,
		"variants", sum.Variants,
		"variants_created", sum.VariantsCreated,
		"entries_added", sum.EntriesAdded,
		"entries_updated", sum.EntriesUpdated,
		"unchanged", sum.Unchanged,
	)
	return res
}

// writtenProduct is what one reconcile stored for a product: the pricing
// the sheet's distributor holds on each variant, keyed by property bag.
type writtenProduct struct {
	id          uuid.UUID
	distributor uuid.UUID
	pricing     map[string]catalog.Pricing
}

// reconcile merges every product group of the sheet.
func (o *Orchestrator) reconcile(ctx context.Context, sc extract.SheetContext, cls classify.Classification, recs []catalog.VariantRecord) (ledger.Summary, []writtenProduct, error) {
	sum := ledger.Summary{Layout: cls.Layout.String(), Variants: len(recs)}

	var parties catalog.Parties
	err := o.retry(ctx, "resolve companies", func() error {
		var err error
		parties, err = o.reconciler.ResolveCompanies(ctx, sc.Distributor, sc.Manufacturer)
		return err
	})
	if err != nil {
		return sum, nil, err
	}

	meta := catalog.PricebookMetadata{
		Section:    sc.Section,
		PageNumber: sc.PageNumber,
		PageName:   sc.PageName,
		GroupCode:  sc.GroupCode,
	}
	var written []writtenProduct
	for _, group := range extract.GroupByProduct(recs, sc.ProductName) {
		in := catalog.ReconcileInput{
			ProductName:     group.Name,
			Parties:         parties,
			Records:         group.Records,
			Metadata:        meta,
			DiscountPercent: sc.DiscountPercent,
		}
		var r *catalog.ReconcileResult
		err := o.retry(ctx, "reconcile "+group.Name, func() error {
			var err error
			r, err = o.reconciler.Reconcile(ctx, in)
			return err
		})
		if err != nil {
			return sum, written, fmt.Errorf("product %q: %w", group.Name, err)
		}

		sum.Products++
		sum.VariantsCreated += r.VariantsCreated
		sum.EntriesAdded += r.EntriesAdded
		sum.EntriesUpdated += r.EntriesUpdated
		sum.Unchanged += r.Unchanged
		sum.ProductIDs = append(sum.ProductIDs, r.Product.ID.String())
		o.metrics.VariantCounts(r.VariantsCreated, r.EntriesAdded, r.EntriesUpdated, r.Unchanged)

		wp := writtenProduct{
			id:          r.Product.ID,
			distributor: parties.Distributor.ID,
			pricing:     make(map[string]catalog.Pricing, len(group.Records)),
		}
		for _, rec := range group.Records {
			wp.pricing[rec.Properties.Key()] = catalog.ResolvePricing(rec, sc.DiscountPercent)
		}
		written = append(written, wp)
	}
	return sum, written, nil
}

// retry runs fn up to ReconcileAttempts times with linear backoff.
func (o *Orchestrator) retry(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= o.opts.ReconcileAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == o.opts.ReconcileAttempts {
			break
		}
		logging.FromContext(ctx).Warn("retrying", "op", what, "attempt", attempt, "error", err)
		if serr := o.sleep(ctx, o.opts.RetryBackoff*time.Duration(attempt)); serr != nil {
			break
		}
	}
	return err
}

// readBack reports whether the catalog holds this run's data for every
// product written: each variant carries the distributor's entry with the
// pricing the sheet resolved to. A product that exists but still shows
// older prices does not count.
func (o *Orchestrator) readBack(ctx context.Context, written []writtenProduct) bool {
	if len(written) == 0 {
		return false
	}
	products, err := o.reconciler.Store().ListProducts(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("catalog read-back failed", "error", err)
		return false
	}
	byID := make(map[uuid.UUID]*catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, wp := range written {
		p, ok := byID[wp.id]
		if !ok {
			return false
		}
		for key, want := range wp.pricing {
			if !holdsPricing(p, key, wp.distributor, want) {
				return false
			}
		}
	}
	return true
}

func holdsPricing(p *catalog.Product, key string, distributor uuid.UUID, want catalog.Pricing) bool {
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Properties.Key() != key {
			continue
		}
		e, ok := v.Entry(distributor)
		return ok && e.Pricing.Equal(want)
	}
	return false
}

// failed fills res for a failure and, when record is set, moves the sheet
// to Failed in the ledger.
func (o *Orchestrator) failed(ctx context.Context, res SheetResult, se *SheetError, record bool) SheetResult {
	msg := MapError(se)
	res.Outcome = OutcomeFailed
	res.ErrorKind = se.Kind
	res.Error = se.Error()
	res.Message = &msg
	res.err = se

	log := logging.FromContext(ctx)
	log.Error("sheet failed", "kind", se.Kind, "code", msg.Code, "retryable", se.Kind.Retryable(), "error", se.Err)

	if !record {
		return res
	}
	detail := se.Err.Error()
	if res.CatalogCommitted {
		detail = "catalog committed; " + detail
	}
	// A cancelled sheet context must not prevent recording the failure.
	lctx := context.WithoutCancel(ctx)
	if err := o.ledger.Fail(lctx, se.SheetID, string(se.Kind), detail); err != nil {
		log.Error("recording sheet failure", "error", err)
	}
	return res
}

func (o *Orchestrator) dump(g grid.Grid) []string {
	return g.Dump(o.opts.DumpRows)
}

// Preview is a dry run of classification and extraction.
type Preview struct {
	SheetID  string                 `json:"sheet_id"`
	Layout   string                 `json:"layout,omitempty"`
	Header   int                    `json:"header_row"`
	Products []extract.ProductGroup `json:"products,omitempty"`
	Dump     []string               `json:"dump,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// PreviewGrid classifies and extracts g without touching the catalog or
// ledger. A failed step is reported in Error along with a row dump.
func PreviewGrid(g grid.Grid, sc extract.SheetContext, scanRows, dumpRows int) Preview {
	p := Preview{SheetID: sc.SheetID, Header: -1}
	cls, err := classify.New(scanRows).Classify(g)
	if err != nil {
		p.Error = FormatUserError(err)
		p.Dump = g.Dump(dumpRows)
		return p
	}
	p.Layout = cls.Layout.String()
	p.Header = cls.HeaderRow

	recs, err := extract.Extract(g, cls, sc)
	if err != nil {
		p.Error = FormatUserError(err)
		p.Dump = g.Dump(dumpRows)
		return p
	}
	p.Products = extract.GroupByProduct(recs, sc.ProductName)
	return p
}

// Preview fetches a batch sheet and dry-runs it.
func (o *Orchestrator) Preview(ctx context.Context, id string) (Preview, error) {
	sheet, ok := o.batch.Sheet(id)
	if !ok {
		return Preview{}, fmt.Errorf("%w: %s", ErrUnknownSheet, id)
	}
	sc, err := sheet.Context()
	if err != nil {
		return Preview{}, newSheetError(KindInput, id, err)
	}
	g, err := o.source.Fetch(ctx, sheet)
	if err != nil {
		return Preview{}, newSheetError(KindSource, id, err)
	}
	logging.FromContext(ctx).Debug("previewing sheet", "sheet_id", id, "rows", g.Len())
	return PreviewGrid(g, sc, o.opts.ScanRows, o.opts.DumpRows), nil
}
