package extract

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/pricesheet/internal/catalog"
	"github.com/JonMunkholm/pricesheet/internal/classify"
	"github.com/JonMunkholm/pricesheet/internal/grid"
)

func init() {
	Register(elastomeric{})
}

// tripleReach is how far right of a wall-thickness header its List, NET and
// lf/ctn sub-labels are searched for.
const tripleReach = 5

// elastomeric reads tube-size rows against wall thicknesses, each thickness
// spanning List, NET and lf/ctn sub-columns. Cells holding "#N/A" are
// skipped. When a row has a NET price and the sheet states no discount, the
// discount is derived from list and net.
type elastomeric struct{}

func (elastomeric) Layout() classify.Layout { return classify.ElastomericPipe }

type tripleColumn struct {
	label string
	list  int
	net   int
	lfCtn int
}

func (elastomeric) Extract(g grid.Grid, c classify.Classification, sc SheetContext) []catalog.VariantRecord {
	sizeCols := []struct {
		key string
		col int
	}{
		{"interiorDiameter", findColumn(g, c.HeaderRow, "interior diameter")},
		{"copperTubeSize", findColumn(g, c.HeaderRow, "copper tube")},
		{"ironPipeSize", findColumn(g, c.HeaderRow, "iron pipe")},
	}

	thick := thicknessColumns(g, c.ThicknessRow)
	triples := make([]tripleColumn, 0, len(thick))
	for i, th := range thick {
		tc := tripleColumn{label: th.label, list: th.col, net: -1, lfCtn: -1}
		if c.SubHeaderRow >= 0 {
			limit := th.col + tripleReach
			if i+1 < len(thick) && thick[i+1].col-1 < limit {
				limit = thick[i+1].col - 1
			}
			tc.list = -1
			for k := th.col; k <= limit; k++ {
				s := g.Lower(c.SubHeaderRow, k)
				switch {
				case strings.HasPrefix(s, "list") && tc.list < 0:
					tc.list = k
				case strings.Contains(s, "net") && tc.net < 0:
					tc.net = k
				case strings.Contains(s, "lf") && grid.ContainsAny(s, "ctn", "carton") && tc.lfCtn < 0:
					tc.lfCtn = k
				}
			}
			if tc.list < 0 {
				continue
			}
		}
		triples = append(triples, tc)
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

		bag := catalog.PropertyBag{}
		for _, sz := range sizeCols {
			if sz.col < 0 {
				continue
			}
			if v := label(g.Cell(r, sz.col)); v != "" && !grid.IsDash(g.Cell(r, sz.col)) {
				bag[sz.key] = v
			}
		}
		if len(bag) == 0 || isMarker(strings.Join(bag.Values(), " ")) {
			continue
		}

		for _, tc := range triples {
			listCell := g.Cell(r, tc.list)
			if grid.IsNotAvailable(listCell) {
				continue
			}
			list, ok := grid.ParsePrice(listCell)
			if !ok {
				continue
			}

			props := bag.Clone()
			props["wallThickness"] = tc.label
			rec := catalog.VariantRecord{
				Properties:    props,
				ListPrice:     list,
				UnitOfMeasure: "lf",
				Row:           r,
			}
			if tc.net >= 0 {
				if net, ok := grid.ParsePrice(g.Cell(r, tc.net)); ok {
					rec.NetPrice = decimal.NewNullDecimal(net)
					if !sc.DiscountPercent.Valid {
						if d, ok := catalog.DeriveDiscount(list, net); ok {
							rec.DiscountPercent = decimal.NewNullDecimal(d)
						}
					}
				}
			}
			if tc.lfCtn >= 0 {
				if n, ok := grid.ParseCount(g.Cell(r, tc.lfCtn)); ok {
					rec.Extra = map[string]string{"lfPerCarton": n.String()}
				}
			}
			out = append(out, rec)
		}
	}
	return out
}
