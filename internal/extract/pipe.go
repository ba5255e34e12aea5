package extract

import (
	"strings"

	"github.com/JonMunkholm/pricesheet/internal/catalog"
	"github.com/JonMunkholm/pricesheet/internal/classify"
	"github.com/JonMunkholm/pricesheet/internal/grid"
)

func init() {
	Register(pipeInsulation{})
	Register(fittingMatrix{})
}

// pipeInsulation reads a copper/iron matrix: leading columns hold pipe
// diameters for each pipe family and the remaining columns are insulation
// thicknesses. A row yields one record per family with a diameter, per
// priced thickness.
type pipeInsulation struct{}

func (pipeInsulation) Layout() classify.Layout { return classify.PipeInsulation }

func (pipeInsulation) Extract(g grid.Grid, c classify.Classification, _ SheetContext) []catalog.VariantRecord {
	var families, thicknesses []labeledColumn
	for i, cell := range g.Row(c.HeaderRow) {
		s := cell.Lower()
		switch {
		case s == "":
		case strings.Contains(s, "copper"):
			families = append(families, labeledColumn{col: i, label: "copper"})
		case strings.Contains(s, "iron"):
			families = append(families, labeledColumn{col: i, label: "iron"})
		default:
			if l := label(cell); l != "" {
				thicknesses = append(thicknesses, labeledColumn{col: i, label: l})
			}
		}
	}

	var out []catalog.VariantRecord
	for r := c.DataStart; r < g.Len(); r++ {
		text := g.JoinedLower(r)
		if text == "" {
			continue
		}
		if stopRow(text) {
			break
		}
		for _, fam := range families {
			d := g.Cell(r, fam.col)
			if d.IsBlank() || grid.IsDash(d) {
				continue
			}
			diameter := label(d)
			for _, th := range thicknesses {
				price, ok := grid.ParsePrice(g.Cell(r, th.col))
				if !ok {
					continue
				}
				out = append(out, catalog.VariantRecord{
					Properties: catalog.PropertyBag{
						"pipeType":            fam.label,
						"pipeDiameter":        diameter,
						"insulationThickness": th.label,
					},
					ListPrice:     price,
					UnitOfMeasure: "lf",
					Row:           r,
				})
			}
		}
	}
	return out
}

// fittingMatrix reads nominal pipe size rows against wall-thickness columns.
// A sheet may repeat the header for several fitting types; each header's
// title row names the fitting type of the block beneath it.
type fittingMatrix struct{}

func (fittingMatrix) Layout() classify.Layout { return classify.FittingMatrix }

func (fittingMatrix) Extract(g grid.Grid, c classify.Classification, sc SheetContext) []catalog.VariantRecord {
	sizeCol, walls := fittingColumns(g, c.HeaderRow)
	fittingType := titleAbove(g, c.HeaderRow, sc.PageName)

	var out []catalog.VariantRecord
	for r := c.DataStart; r < g.Len(); r++ {
		text := g.JoinedLower(r)
		if text == "" {
			continue
		}
		if stopRow(text) {
			break
		}
		if grid.ContainsAll(text, "nominal", "pipe", "size") {
			sizeCol, walls = fittingColumns(g, r)
			fittingType = titleAbove(g, r, sc.PageName)
			continue
		}

		size := label(g.Cell(r, sizeCol))
		if size == "" || isMarker(size) {
			continue
		}
		for _, w := range walls {
			price, ok := grid.ParsePrice(g.Cell(r, w.col))
			if !ok {
				continue
			}
			bag := catalog.PropertyBag{"pipeSize": size, "wallThickness": w.label}
			if fittingType != "" {
				bag["fittingType"] = fittingType
			}
			out = append(out, catalog.VariantRecord{
				Properties:    bag,
				ListPrice:     price,
				UnitOfMeasure: "each",
				Row:           r,
			})
		}
	}
	return out
}

func fittingColumns(g grid.Grid, header int) (int, []labeledColumn) {
	sizeCol := findColumn(g, header, "nominal")
	if sizeCol < 0 {
		sizeCol = 0
	}
	var walls []labeledColumn
	for i, cell := range g.Row(header) {
		if i == sizeCol {
			continue
		}
		if l := label(cell); l != "" {
			walls = append(walls, labeledColumn{col: i, label: l})
		}
	}
	return sizeCol, walls
}

// titleLookback is how far above a header a block title may sit.
const titleLookback = 3

// titleAbove returns the single-cell row just above a header, skipping
// blank rows, or fallback when there is none.
func titleAbove(g grid.Grid, header int, fallback string) string {
	for r := header - 1; r >= 0 && r >= header-titleLookback; r-- {
		if g.IsBlankRow(r) {
			continue
		}
		if g.NonBlankCount(r) != 1 || grid.IsNarrative(g.JoinedLower(r)) {
			break
		}
		_, s := g.FirstText(r)
		return s
	}
	return strings.TrimSpace(fallback)
}
