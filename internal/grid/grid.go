// Package grid is the input abstraction for price sheets: a page exported from
// a spreadsheet as rows of cells, each cell empty, text, or a number.
//
// Grids are immutable inputs. Nothing in this package mutates a Grid after it
// is built, so a Grid can be classified and extracted from multiple goroutines.
package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies what a cell holds.
type Kind uint8

const (
	Empty Kind = iota
	Text
	Number
)

// Cell is a single spreadsheet cell.
type Cell struct {
	Kind Kind
	Text string
	Num  float64
}

// Str returns a text cell. Whitespace-only strings become empty cells.
func Str(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{}
	}
	return Cell{Kind: Text, Text: s}
}

// Num returns a numeric cell.
func Num(f float64) Cell {
	return Cell{Kind: Number, Num: f}
}

// Blank returns an empty cell.
func Blank() Cell {
	return Cell{}
}

// String renders the cell as trimmed text. Numbers use the shortest
// representation that round-trips.
func (c Cell) String() string {
	switch c.Kind {
	case Text:
		return strings.TrimSpace(c.Text)
	case Number:
		if math.IsNaN(c.Num) || math.IsInf(c.Num, 0) {
			return ""
		}
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// Lower returns the lower-cased trimmed text of the cell.
func (c Cell) Lower() string {
	return strings.ToLower(c.String())
}

// IsBlank reports whether the cell renders to nothing.
func (c Cell) IsBlank() bool {
	return c.String() == ""
}

// Row is an ordered sequence of cells.
type Row []Cell

// Grid is an ordered sequence of rows. Rows may have different lengths.
type Grid []Row

// Len returns the number of rows.
func (g Grid) Len() int {
	return len(g)
}

// Width returns the length of the longest row.
func (g Grid) Width() int {
	w := 0
	for _, r := range g {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// Row returns row r, or nil when r is out of range.
func (g Grid) Row(r int) Row {
	if r < 0 || r >= len(g) {
		return nil
	}
	return g[r]
}

// Cell returns the cell at (r, c). Out-of-range coordinates yield an empty cell.
func (g Grid) Cell(r, c int) Cell {
	row := g.Row(r)
	if c < 0 || c >= len(row) {
		return Cell{}
	}
	return row[c]
}

// Text returns the trimmed text of the cell at (r, c).
func (g Grid) Text(r, c int) string {
	return g.Cell(r, c).String()
}

// Lower returns the lower-cased trimmed text of the cell at (r, c).
func (g Grid) Lower(r, c int) string {
	return g.Cell(r, c).Lower()
}

// JoinedLower joins the non-blank cells of row r with single spaces and
// lower-cases the result. Signatures match against this text.
func (g Grid) JoinedLower(r int) string {
	row := g.Row(r)
	parts := make([]string, 0, len(row))
	for _, c := range row {
		if s := c.Lower(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// IsBlankRow reports whether row r has no non-blank cells. Rows past the end
// of the grid are blank.
func (g Grid) IsBlankRow(r int) bool {
	for _, c := range g.Row(r) {
		if !c.IsBlank() {
			return false
		}
	}
	return true
}

// FirstText returns the index and text of the first non-blank cell in row r,
// or (-1, "") when the row is blank.
func (g Grid) FirstText(r int) (int, string) {
	for i, c := range g.Row(r) {
		if s := c.String(); s != "" {
			return i, s
		}
	}
	return -1, ""
}

// NonBlankCount returns the number of non-blank cells in row r.
func (g Grid) NonBlankCount(r int) int {
	n := 0
	for _, c := range g.Row(r) {
		if !c.IsBlank() {
			n++
		}
	}
	return n
}

// Dump renders the first n rows for diagnostics, one line per row with cells
// separated by " | ".
func (g Grid) Dump(n int) []string {
	if n > len(g) || n < 0 {
		n = len(g)
	}
	lines := make([]string, 0, n)
	for r := 0; r < n; r++ {
		cells := make([]string, len(g[r]))
		for i, c := range g[r] {
			cells[i] = c.String()
		}
		lines = append(lines, fmt.Sprintf("%3d: %s", r, strings.Join(cells, " | ")))
	}
	return lines
}

// FromStrings builds a grid of text cells. Empty strings become empty cells.
func FromStrings(rows [][]string) Grid {
	g := make(Grid, len(rows))
	for i, r := range rows {
		row := make(Row, len(r))
		for j, s := range r {
			row[j] = Str(s)
		}
		g[i] = row
	}
	return g
}

// FromValues builds a grid from loosely typed values: nil, strings, and Go
// numeric types. Anything else is rendered with fmt.
func FromValues(rows [][]any) Grid {
	g := make(Grid, len(rows))
	for i, r := range rows {
		row := make(Row, len(r))
		for j, v := range r {
			row[j] = cellOf(v)
		}
		g[i] = row
	}
	return g
}

func cellOf(v any) Cell {
	switch t := v.(type) {
	case nil:
		return Cell{}
	case string:
		return Str(t)
	case float64:
		return Num(t)
	case float32:
		return Num(float64(t))
	case int:
		return Num(float64(t))
	case int64:
		return Num(float64(t))
	case int32:
		return Num(float64(t))
	default:
		return Str(fmt.Sprint(t))
	}
}
