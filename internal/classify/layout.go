// Package classify recognizes which tabular layout a price-sheet grid uses.
//
// Classification is a prioritized list of layout signatures evaluated row by
// row over the top of the grid. The first row on which any signature matches
// decides the layout; within a row, signatures are tried most specific first.
// New layouts are added by writing a new Signature and placing it in the
// priority list, without touching existing ones.
package classify

import (
	"errors"

	"github.com/JonMunkholm/pricesheet/internal/grid"
)

// Layout tags a recognized tabular convention.
type Layout string

const (
	PipeInsulation  Layout = "pipe_insulation"
	FittingMatrix   Layout = "fitting_matrix"
	MineralWoolPipe Layout = "mineral_wool_pipe"
	ElastomericPipe Layout = "elastomeric_pipe"
	Board           Layout = "board"
	DuctLiner       Layout = "duct_liner"
	SimpleTable     Layout = "simple_table"
)

// String returns the layout tag.
func (l Layout) String() string { return string(l) }

// Layouts returns every layout tag in classification priority order.
func Layouts() []Layout {
	return []Layout{
		ElastomericPipe, MineralWoolPipe, FittingMatrix, Board,
		DuctLiner, PipeInsulation, SimpleTable,
	}
}

// ErrNotRecognized is returned when no signature matches within the scan window.
var ErrNotRecognized = errors.New("sheet layout not recognized")

// Classification describes where a layout's table lives in a grid.
//
// ThicknessRow and SubHeaderRow are -1 when the layout has no such row.
// Mineral-wool and elastomeric layouts carry a thickness row beneath the
// header, and optionally a row of sub-labels (LF/BOX, PRICE/LF or
// List, NET, lf/ctn) beneath that.
type Classification struct {
	Layout        Layout
	HeaderRow     int
	DataStart     int
	HeaderColumns grid.Row
	ThicknessRow  int
	SubHeaderRow  int
}

func newClassification(layout Layout, g grid.Grid, header int) Classification {
	return Classification{
		Layout:        layout,
		HeaderRow:     header,
		DataStart:     header + 1,
		HeaderColumns: g.Row(header),
		ThicknessRow:  -1,
		SubHeaderRow:  -1,
	}
}
