// Package extract turns a classified grid into priced variant records.
//
// Each layout has one Extractor, registered from its own file's init. An
// extractor is a pure function of the grid, its classification and the
// sheet context: it performs no I/O and never mutates the grid.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/pricesheet/internal/catalog"
	"github.com/JonMunkholm/pricesheet/internal/classify"
	"github.com/JonMunkholm/pricesheet/internal/grid"
)

// ErrNoValidVariants is returned when a sheet classified successfully but
// no priced cell survived filtering.
var ErrNoValidVariants = errors.New("no valid variants extracted")

// ErrNoExtractor is returned for a layout with no registered extractor.
var ErrNoExtractor = errors.New("no extractor registered for layout")

// SheetContext carries what is known about a sheet besides its cells.
type SheetContext struct {
	SheetID      string
	ProductName  string
	PageName     string
	PageNumber   int
	Section      string
	GroupCode    string
	Distributor  string
	Manufacturer string
	// DiscountPercent is the sheet-level discount, when the sheet states one.
	DiscountPercent decimal.NullDecimal
}

// Extractor extracts variant records from one layout.
type Extractor interface {
	Layout() classify.Layout
	Extract(g grid.Grid, c classify.Classification, sc SheetContext) []catalog.VariantRecord
}

var (
	registry   = make(map[classify.Layout]Extractor)
	registryMu sync.RWMutex
)

// Register adds an extractor. It panics if the layout is already registered.
func Register(e Extractor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[e.Layout()]; exists {
		panic(fmt.Sprintf("extractor already registered: %s", e.Layout()))
	}
	registry[e.Layout()] = e
}

// Lookup returns the extractor for a layout.
func Lookup(layout classify.Layout) (Extractor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	e, ok := registry[layout]
	return e, ok
}

// Layouts returns every layout with a registered extractor, sorted.
func Layouts() []classify.Layout {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]classify.Layout, 0, len(registry))
	for l := range registry {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Extract runs the registered extractor for c.Layout.
func Extract(g grid.Grid, c classify.Classification, sc SheetContext) ([]catalog.VariantRecord, error) {
	e, ok := Lookup(c.Layout)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoExtractor, c.Layout)
	}
	recs := e.Extract(g, c, sc)
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: layout %s, header row %d", ErrNoValidVariants, c.Layout, c.HeaderRow)
	}
	return recs, nil
}

// ProductGroup is the records of one product within a sheet.
type ProductGroup struct {
	Name    string
	Records []catalog.VariantRecord
}

// GroupByProduct groups records by VariantRecord.Product in first-seen
// order. Records with no product name belong to defaultName.
func GroupByProduct(recs []catalog.VariantRecord, defaultName string) []ProductGroup {
	var groups []ProductGroup
	index := make(map[string]int)
	for _, rec := range recs {
		name := strings.TrimSpace(rec.Product)
		if name == "" {
			name = defaultName
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, ProductGroup{Name: name})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}
	return groups
}

// ----------------------------------------------------------------------------
// Shared helpers
// ----------------------------------------------------------------------------

// label cleans a header or size cell for use as a property-bag value.
func label(c grid.Cell) string {
	return grid.NormalizeLabel(grid.StripSymbols(c.String()))
}

type labeledColumn struct {
	col   int
	label string
}

// thicknessColumns returns the thickness-shaped cells of row r.
func thicknessColumns(g grid.Grid, r int) []labeledColumn {
	var out []labeledColumn
	for i, c := range g.Row(r) {
		if !grid.IsThicknessCell(c) {
			continue
		}
		out = append(out, labeledColumn{col: i, label: label(c)})
	}
	return out
}

// findColumn returns the first column of row r whose lower-cased text
// contains all of subs, or -1.
func findColumn(g grid.Grid, r int, subs ...string) int {
	for i := range g.Row(r) {
		if s := g.Lower(r, i); s != "" && grid.ContainsAll(s, subs...) {
			return i
		}
	}
	return -1
}

var digitRegex = regexp.MustCompile(`\d`)

// isMarker reports whether a size cell is a section marker rather than a
// size, such as "Iron Pipe Sizes".
func isMarker(s string) bool {
	return !digitRegex.MatchString(s)
}

// propertyKey converts a header label to a camelCase property key.
func propertyKey(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i := 1; i < len(words); i++ {
		words[i] = strings.ToUpper(words[i][:1]) + words[i][1:]
	}
	return strings.Join(words, "")
}

// stopRow reports whether a row with this joined text ends extraction.
func stopRow(text string) bool {
	return grid.IsFooter(text)
}
