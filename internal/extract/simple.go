package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/pricesheet/internal/catalog"
	"github.com/JonMunkholm/pricesheet/internal/classify"
	"github.com/JonMunkholm/pricesheet/internal/grid"
)

func init() {
	Register(simpleTable{})
}

var netWord = regexp.MustCompile(`\bnet\b`)

// simpleTable reads a plain list: one list-price column, an optional net
// column, and every other labeled column as an identifying property.
type simpleTable struct{}

func (simpleTable) Layout() classify.Layout { return classify.SimpleTable }

func (simpleTable) Extract(g grid.Grid, c classify.Classification, _ SheetContext) []catalog.VariantRecord {
	listCol, netCol, partCol := -1, -1, -1
	var props []labeledColumn

	for i := range g.Row(c.HeaderRow) {
		s := g.Lower(c.HeaderRow, i)
		switch {
		case s == "":
		case netWord.MatchString(s):
			if netCol < 0 {
				netCol = i
			}
		case strings.Contains(s, "price") || s == "list":
			if listCol < 0 || strings.Contains(s, "list") {
				listCol = i
			}
		default:
			key := propertyKey(s)
			if key == "" {
				continue
			}
			if partCol < 0 && grid.ContainsAny(s, "part", "sku", "item #", "item no") {
				partCol = i
			}
			props = append(props, labeledColumn{col: i, label: key})
		}
	}
	if listCol < 0 {
		return nil
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
		price, ok := grid.ParsePrice(g.Cell(r, listCol))
		if !ok {
			continue
		}

		bag := catalog.PropertyBag{}
		for _, p := range props {
			if v := g.Text(r, p.col); v != "" {
				bag[p.label] = grid.NormalizeLabel(v)
			}
		}
		if len(bag) == 0 {
			continue
		}

		rec := catalog.VariantRecord{
			Properties:    bag,
			ListPrice:     price,
			UnitOfMeasure: "each",
			Row:           r,
		}
		if partCol >= 0 {
			rec.SupplierPartNumber = g.Text(r, partCol)
		}
		if netCol >= 0 {
			if net, ok := grid.ParsePrice(g.Cell(r, netCol)); ok {
				rec.NetPrice = decimal.NewNullDecimal(net)
			}
		}
		out = append(out, rec)
	}
	return out
}
