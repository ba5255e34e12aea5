package classify

import (
	"regexp"
	"strings"

	"github.com/JonMunkholm/pricesheet/internal/grid"
)

// Window is the row a signature is evaluated against.
type Window struct {
	Grid grid.Grid
	Row  int
	// Text is the lower-cased, space-joined text of Row.
	Text string
}

// FirstCell returns the lower-cased text of the first non-blank cell.
func (w Window) FirstCell() string {
	_, s := w.Grid.FirstText(w.Row)
	return strings.ToLower(s)
}

// Signature recognizes one layout from a candidate header row.
type Signature interface {
	Layout() Layout
	Match(w Window) (Classification, bool)
}

// DefaultSignatures returns the built-in signatures, most specific first.
func DefaultSignatures() []Signature {
	return []Signature{
		elastomericSignature{},
		mineralWoolSignature{},
		fittingMatrixSignature{},
		boardSignature{},
		ductLinerSignature{},
		pipeInsulationSignature{},
		simpleTableSignature{},
	}
}

// elastomericSignature: "Interior Diameter | Copper Tube Size | ..." followed
// by a row of wall thicknesses and an optional List/NET/lf-ctn row. The
// header itself need not carry a thickness; the wall-thickness caption is
// often a bare "Wall Thickness" cell.
type elastomericSignature struct{}

func (elastomericSignature) Layout() Layout { return ElastomericPipe }

func (elastomericSignature) Match(w Window) (Classification, bool) {
	if !grid.ContainsAll(w.Text, "interior diameter", "copper tube size") {
		return Classification{}, false
	}
	thick := w.Row + 1
	if w.Grid.CountThicknessTokens(thick) == 0 {
		return Classification{}, false
	}

	c := newClassification(ElastomericPipe, w.Grid, w.Row)
	c.ThicknessRow = thick
	c.DataStart = w.Row + 2
	if sub := w.Grid.JoinedLower(w.Row + 2); grid.ContainsAll(sub, "list", "net") {
		c.SubHeaderRow = w.Row + 2
		c.DataStart = w.Row + 3
	}
	return c, true
}

var lfWord = regexp.MustCompile(`\blf\b`)

// mineralWoolLookahead is how far below the header the thickness row may sit.
const mineralWoolLookahead = 3

// mineralWoolSignature: "Pipe Diameter ... Price per Lineal Foot" confirmed
// by a thickness row within the next few rows. A row that reads like data,
// with a size in the diameter column or a price-formatted cell, is never the
// thickness row.
type mineralWoolSignature struct{}

func (mineralWoolSignature) Layout() Layout { return MineralWoolPipe }

func (mineralWoolSignature) Match(w Window) (Classification, bool) {
	if !strings.Contains(w.Text, "pipe diameter") {
		return Classification{}, false
	}
	if !strings.Contains(w.Text, "price per lineal foot") && !lfWord.MatchString(w.Text) {
		return Classification{}, false
	}

	diaCol := 0
	for i := range w.Grid.Row(w.Row) {
		if strings.Contains(w.Grid.Lower(w.Row, i), "pipe diameter") {
			diaCol = i
			break
		}
	}

	for t := w.Row + 1; t <= w.Row+mineralWoolLookahead && t < w.Grid.Len(); t++ {
		if w.Grid.CountThicknessTokens(t) == 0 || isDataRow(w.Grid, t, diaCol) {
			continue
		}
		c := newClassification(MineralWoolPipe, w.Grid, w.Row)
		c.ThicknessRow = t
		c.DataStart = t + 1
		if isLFBoxRow(w.Grid.JoinedLower(t + 1)) {
			c.SubHeaderRow = t + 1
			c.DataStart = t + 2
		}
		return c, true
	}
	return Classification{}, false
}

func isDataRow(g grid.Grid, r, diaCol int) bool {
	if grid.IsThicknessCell(g.Cell(r, diaCol)) {
		return true
	}
	for _, c := range g.Row(r) {
		if grid.LooksLikePrice(c) {
			return true
		}
	}
	return false
}

func isLFBoxRow(text string) bool {
	return strings.Contains(text, "lf/box") ||
		(strings.Contains(text, "price") && lfWord.MatchString(text))
}

// fittingMatrixSignature: "Nominal Pipe Size | <wall thickness> | ...".
type fittingMatrixSignature struct{}

func (fittingMatrixSignature) Layout() Layout { return FittingMatrix }

func (fittingMatrixSignature) Match(w Window) (Classification, bool) {
	if !grid.ContainsAll(w.Text, "nominal", "pipe", "size") {
		return Classification{}, false
	}
	return newClassification(FittingMatrix, w.Grid, w.Row), true
}

// boardSignature: "Product | Thickness | ... | Sq.Ft/Bundle | Price ...".
type boardSignature struct{}

func (boardSignature) Layout() Layout { return Board }

func (boardSignature) Match(w Window) (Classification, bool) {
	if !strings.Contains(w.FirstCell(), "product") {
		return Classification{}, false
	}
	if !strings.Contains(w.Text, "thickness") || !strings.Contains(w.Text, "price") {
		return Classification{}, false
	}
	if !grid.ContainsAny(w.Text, "sq.ft", "bundle") {
		return Classification{}, false
	}
	return newClassification(Board, w.Grid, w.Row), true
}

// ductLinerSignature: "Roll Thickness | Dimensions | ...".
type ductLinerSignature struct{}

func (ductLinerSignature) Layout() Layout { return DuctLiner }

func (ductLinerSignature) Match(w Window) (Classification, bool) {
	if !strings.Contains(w.FirstCell(), "roll thickness") || !strings.Contains(w.Text, "dimension") {
		return Classification{}, false
	}
	return newClassification(DuctLiner, w.Grid, w.Row), true
}

// pipeInsulationSignature is the generic matrix: copper and iron diameter
// columns followed by insulation thickness columns.
type pipeInsulationSignature struct{}

func (pipeInsulationSignature) Layout() Layout { return PipeInsulation }

func (pipeInsulationSignature) Match(w Window) (Classification, bool) {
	if !grid.ContainsAll(w.Text, "copper", "iron") {
		return Classification{}, false
	}
	return newClassification(PipeInsulation, w.Grid, w.Row), true
}

// simpleTableSignature is the fallback: a plain list with a price column and
// at least one identifying column.
type simpleTableSignature struct{}

func (simpleTableSignature) Layout() Layout { return SimpleTable }

func (simpleTableSignature) Match(w Window) (Classification, bool) {
	if w.Grid.NonBlankCount(w.Row) < 2 || !strings.Contains(w.Text, "price") {
		return Classification{}, false
	}
	if !grid.ContainsAny(w.Text, "description", "size", "item", "part", "product") {
		return Classification{}, false
	}
	return newClassification(SimpleTable, w.Grid, w.Row), true
}
