package grid

// price.go parses price cells.
//
// Price sheets are hand-maintained, so a price cell may carry currency
// symbols, thousands separators, stray whitespace, or placeholder text such
// as "-", "N/A", "#N/A", or "call". Only finite, strictly positive numbers are
// prices; everything else is excluded from extraction.

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numericRegex validates a cleaned-up price string.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// currencyReplacer removes currency symbols and thousands separators.
var currencyReplacer = strings.NewReplacer(
	"$", "",
	"\u20ac", "", // Euro
	"\u00a3", "", // Pound
	",", "",
	" ", "",
	"\u00a0", "", // non-breaking space
)

// StripCurrency removes currency symbols and thousands separators and trims
// the result.
func StripCurrency(s string) string {
	return strings.TrimSpace(currencyReplacer.Replace(strings.TrimSpace(s)))
}

var symbolReplacer = strings.NewReplacer("$", "", "€", "", "£", "")

// StripSymbols removes currency symbols only, keeping spacing intact. It is
// used on header labels, where "1\" x 48\"" must keep its spaces.
func StripSymbols(s string) string {
	return strings.TrimSpace(symbolReplacer.Replace(s))
}

// ParsePrice returns the price held by a cell. The second result is false
// when the cell is empty, a dash, not numeric, not finite, or not positive.
func ParsePrice(c Cell) (decimal.Decimal, bool) {
	switch c.Kind {
	case Number:
		if math.IsNaN(c.Num) || math.IsInf(c.Num, 0) || c.Num <= 0 {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(c.Num), true
	case Text:
		return ParsePriceText(c.Text)
	default:
		return decimal.Decimal{}, false
	}
}

// ParsePriceText is ParsePrice for raw text.
func ParsePriceText(s string) (decimal.Decimal, bool) {
	s = StripCurrency(s)
	if s == "" || s == "-" {
		return decimal.Decimal{}, false
	}
	if !numericRegex.MatchString(s) {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// priceShapeRegex matches text written the way prices are: a leading
// currency symbol or exactly two decimal places.
var priceShapeRegex = regexp.MustCompile(`^[$€£]\s*\d|^\d[\d,]*\.\d{2}$`)

// LooksLikePrice reports whether a text cell is written as a price. Number
// cells carry no formatting and never look like prices.
func LooksLikePrice(c Cell) bool {
	return c.Kind == Text && priceShapeRegex.MatchString(strings.TrimSpace(c.Text))
}

// ParseCount parses a positive quantity cell such as square feet per bundle
// or linear feet per carton. It accepts the same formats as ParsePrice.
func ParseCount(c Cell) (decimal.Decimal, bool) {
	return ParsePrice(c)
}

// IsNotAvailable reports whether a cell holds a spreadsheet error sentinel
// such as "#N/A".
func IsNotAvailable(c Cell) bool {
	s := strings.ToUpper(c.String())
	return s == "#N/A" || s == "N/A" || s == "#VALUE!" || s == "#REF!"
}
