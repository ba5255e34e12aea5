// Package sheets loads price-sheet pages into grids.
//
// A batch is described by a YAML manifest. Each sheet is read either from a
// local workbook (xlsx or csv) or from a published HTML page, through the
// Source interface. A page that exists but holds no cells yields ErrNoData,
// which callers report as a skip rather than a failure.
package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/pricesheet/internal/grid"
)

var (
	// ErrNoData is returned when a sheet exists but has no cells.
	ErrNoData = errors.New("no data available for sheet")
	// ErrSheetNotFound is returned when the workbook lacks the named worksheet.
	ErrSheetNotFound = errors.New("worksheet not found")
)

// Source fetches the grid of one sheet.
type Source interface {
	Fetch(ctx context.Context, s Sheet) (grid.Grid, error)
}

// WorkbookSource reads local .xlsx and .csv files.
type WorkbookSource struct{}

func (WorkbookSource) Fetch(ctx context.Context, s Sheet) (grid.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Workbook == "" {
		return nil, fmt.Errorf("sheet %q has no workbook path", s.ID)
	}

	var (
		g   grid.Grid
		err error
	)
	switch strings.ToLower(filepath.Ext(s.Workbook)) {
	case ".csv":
		g, err = readCSV(s.Workbook)
	default:
		g, err = readXLSX(s.Workbook, s.SheetName)
	}
	if err != nil {
		return nil, err
	}
	return nonEmpty(g, s.ID)
}

func readCSV(path string) (grid.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv %s: %w", filepath.Base(path), err)
		}
		rows = append(rows, rec)
	}
	return grid.FromStrings(rows), nil
}

func readXLSX(path, sheetName string) (grid.Grid, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheetName); err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrSheetNotFound, sheetName, filepath.Base(path))
	}

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows of %q: %w", sheetName, err)
	}

	g := make(grid.Grid, len(rows))
	for i, row := range rows {
		cells := make(grid.Row, len(row))
		for j, v := range row {
			cells[j] = rawCell(v)
		}
		g[i] = cells
	}
	return g, nil
}

// rawCell turns an unformatted workbook value into a cell. Raw numeric
// values become number cells; everything else stays text.
func rawCell(v string) grid.Cell {
	if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return grid.Num(f)
	}
	return grid.Str(v)
}

func nonEmpty(g grid.Grid, sheetID string) (grid.Grid, error) {
	for r := range g {
		if !g.IsBlankRow(r) {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoData, sheetID)
}

// Router sends each sheet to the source that can read it.
type Router struct {
	Workbook Source
	HTML     Source
}

// NewRouter returns a router over a WorkbookSource and html.
func NewRouter(html Source) *Router {
	return &Router{Workbook: WorkbookSource{}, HTML: html}
}

func (r *Router) Fetch(ctx context.Context, s Sheet) (grid.Grid, error) {
	if s.URL != "" {
		if r.HTML == nil {
			return nil, fmt.Errorf("sheet %q: no html source configured", s.ID)
		}
		return r.HTML.Fetch(ctx, s)
	}
	return r.Workbook.Fetch(ctx, s)
}
