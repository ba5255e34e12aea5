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
	Register(board{})
}

// unitColumns locates the columns shared by board and duct-liner tables.
// Missing columns are -1.
type unitColumns struct {
	thickness  int
	dimensions int
	sqftPer    int // square feet per bundle, roll or carton
	unitPrice  int // price per bundle, roll or carton
	sqftPrice  int // price per square foot
	price      int // unqualified price column
	unit       string
}

var sqftWords = []string{"sq.ft", "sq ft", "sqft", "sq. ft", "/sf", "per sf"}

func unitName(s string) string {
	switch {
	case grid.ContainsAny(s, "bundle", "bdl", "bndl"):
		return "bundle"
	case strings.Contains(s, "roll"):
		return "roll"
	case grid.ContainsAny(s, "carton", "ctn"):
		return "carton"
	case strings.Contains(s, "box"):
		return "box"
	case strings.Contains(s, "sheet"):
		return "sheet"
	}
	return ""
}

func discoverUnitColumns(g grid.Grid, header int) unitColumns {
	uc := unitColumns{thickness: -1, dimensions: -1, sqftPer: -1, unitPrice: -1, sqftPrice: -1, price: -1}
	set := func(dst *int, i int) {
		if *dst < 0 {
			*dst = i
		}
	}
	for i := range g.Row(header) {
		s := g.Lower(header, i)
		if s == "" {
			continue
		}
		unit := unitName(s)
		switch {
		case strings.Contains(s, "thickness"):
			set(&uc.thickness, i)
		case strings.Contains(s, "dimension") || s == "size":
			set(&uc.dimensions, i)
		case strings.Contains(s, "price") && grid.ContainsAny(s, sqftWords...):
			set(&uc.sqftPrice, i)
		case strings.Contains(s, "price") && unit != "":
			set(&uc.unitPrice, i)
			if uc.unit == "" {
				uc.unit = unit
			}
		case strings.Contains(s, "price"):
			set(&uc.price, i)
		case grid.ContainsAny(s, sqftWords...) && unit != "":
			set(&uc.sqftPer, i)
			if uc.unit == "" {
				uc.unit = unit
			}
		}
	}
	return uc
}

// listPrice returns the price of row r: the per-unit price when present,
// else price per square foot times square feet per unit, else an
// unqualified price.
func (uc unitColumns) listPrice(g grid.Grid, r int) (decimal.Decimal, string, bool) {
	unit := uc.unit
	if unit == "" {
		unit = "each"
	}
	if uc.unitPrice >= 0 {
		if p, ok := grid.ParsePrice(g.Cell(r, uc.unitPrice)); ok {
			return p, unit, true
		}
	}
	if uc.sqftPrice >= 0 && uc.sqftPer >= 0 {
		psf, ok1 := grid.ParsePrice(g.Cell(r, uc.sqftPrice))
		sqft, ok2 := grid.ParseCount(g.Cell(r, uc.sqftPer))
		if ok1 && ok2 {
			return psf.Mul(sqft), unit, true
		}
	}
	if uc.price >= 0 {
		if p, ok := grid.ParsePrice(g.Cell(r, uc.price)); ok {
			return p, "each", true
		}
	}
	return decimal.Decimal{}, "", false
}

// record builds the variant for row r, or false when the row has no
// thickness or no usable price.
func (uc unitColumns) record(g grid.Grid, r int, product string) (catalog.VariantRecord, bool) {
	if uc.thickness < 0 {
		return catalog.VariantRecord{}, false
	}
	thickness := label(g.Cell(r, uc.thickness))
	if thickness == "" || isMarker(thickness) {
		return catalog.VariantRecord{}, false
	}
	price, unit, ok := uc.listPrice(g, r)
	if !ok {
		return catalog.VariantRecord{}, false
	}

	bag := catalog.PropertyBag{"thickness": thickness}
	if uc.dimensions >= 0 {
		if d := label(g.Cell(r, uc.dimensions)); d != "" {
			bag["dimensions"] = d
		}
	}
	rec := catalog.VariantRecord{
		Product:       product,
		Properties:    bag,
		ListPrice:     price,
		UnitOfMeasure: unit,
		Row:           r,
	}
	extra := map[string]string{}
	if uc.sqftPer >= 0 {
		if n, ok := grid.ParseCount(g.Cell(r, uc.sqftPer)); ok {
			extra["sqftPer"+strings.ToUpper(unit[:1])+unit[1:]] = n.String()
		}
	}
	if uc.sqftPrice >= 0 {
		if p, ok := grid.ParsePrice(g.Cell(r, uc.sqftPrice)); ok {
			extra["pricePerSqft"] = p.String()
		}
	}
	if len(extra) > 0 {
		rec.Extra = extra
	}
	return rec, true
}

var (
	densityRegex     = regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*lb\b`)
	productCodeRegex = regexp.MustCompile(`(?i)^(jm|oc|ct|kn|rw|im|hs)[\s-]*\d{3,}|\b(micro-?lok|spin-?glas|1000 series|800 series|700 series)\b`)
	bareCodeRegex    = regexp.MustCompile(`^\d{4}$`)
)

// board reads alternating product-name rows and thickness rows. A blank row
// closes the current product; a footer ends the table.
type board struct{}

func (board) Layout() classify.Layout { return classify.Board }

func (board) Extract(g grid.Grid, c classify.Classification, _ SheetContext) []catalog.VariantRecord {
	uc := discoverUnitColumns(g, c.HeaderRow)
	nameCol := findColumn(g, c.HeaderRow, "product")
	if nameCol < 0 {
		nameCol = 0
	}

	var out []catalog.VariantRecord
	current := ""
	for r := c.DataStart; r < g.Len(); r++ {
		text := g.JoinedLower(r)
		if text == "" {
			current = ""
			continue
		}
		if stopRow(text) {
			break
		}
		if isBoardProductRow(g, r, nameCol, uc) {
			current = g.Text(r, nameCol)
		}
		if rec, ok := uc.record(g, r, current); ok {
			out = append(out, rec)
		}
	}
	return out
}

func isBoardProductRow(g grid.Grid, r, nameCol int, uc unitColumns) bool {
	name := g.Text(r, nameCol)
	if name == "" || nameCol == uc.thickness {
		return false
	}
	if densityRegex.MatchString(name) || productCodeRegex.MatchString(name) || bareCodeRegex.MatchString(name) {
		return true
	}
	// A lone label with no thickness and no price also names a product.
	_, _, priced := uc.listPrice(g, r)
	return !priced && (uc.thickness < 0 || g.Cell(r, uc.thickness).IsBlank())
}
