package extract

import (
	"strings"

	"github.com/JonMunkholm/pricesheet/internal/catalog"
	"github.com/JonMunkholm/pricesheet/internal/classify"
	"github.com/JonMunkholm/pricesheet/internal/grid"
)

func init() {
	Register(mineralWool{})
}

// subColumnReach is how far right of a thickness header its LF/BOX and
// PRICE/LF sub-columns may sit.
const subColumnReach = 2

// mineralWool reads pipe-diameter rows against a thickness row. In the
// simple sub-layout the price sits directly under each thickness; in the
// LF/BOX + PRICE/LF sub-layout each thickness spans a pair of sub-columns.
// Marker rows between diameter rows are skipped and a footer ends the table.
type mineralWool struct{}

func (mineralWool) Layout() classify.Layout { return classify.MineralWoolPipe }

type mineralWoolColumn struct {
	label    string
	priceCol int
	boxCol   int
}

func (mineralWool) Extract(g grid.Grid, c classify.Classification, _ SheetContext) []catalog.VariantRecord {
	diaCol := findColumn(g, c.HeaderRow, "pipe diameter")
	if diaCol < 0 {
		diaCol = 0
	}

	var cols []mineralWoolColumn
	for _, th := range thicknessColumns(g, c.ThicknessRow) {
		mc := mineralWoolColumn{label: th.label, priceCol: th.col, boxCol: -1}
		if c.SubHeaderRow >= 0 {
			mc.priceCol = -1
			for k := th.col; k <= th.col+subColumnReach; k++ {
				s := g.Lower(c.SubHeaderRow, k)
				switch {
				case strings.Contains(s, "price") && mc.priceCol < 0:
					mc.priceCol = k
				case strings.Contains(s, "box") && mc.boxCol < 0:
					mc.boxCol = k
				}
			}
			if mc.priceCol < 0 {
				continue
			}
		}
		cols = append(cols, mc)
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
		diameter := label(g.Cell(r, diaCol))
		if diameter == "" || isMarker(diameter) {
			continue
		}

		for _, mc := range cols {
			price, ok := grid.ParsePrice(g.Cell(r, mc.priceCol))
			if !ok {
				continue
			}
			rec := catalog.VariantRecord{
				Properties: catalog.PropertyBag{
					"pipeDiameter":        diameter,
					"insulationThickness": mc.label,
				},
				ListPrice:     price,
				UnitOfMeasure: "lf",
				Row:           r,
			}
			if mc.boxCol >= 0 {
				if n, ok := grid.ParseCount(g.Cell(r, mc.boxCol)); ok {
					rec.Extra = map[string]string{"lfPerBox": n.String()}
				}
			}
			out = append(out, rec)
		}
	}
	return out
}
