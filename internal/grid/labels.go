package grid

import (
	"regexp"
	"strings"
)

// thicknessRegex matches thickness-shaped tokens: 1", 2', 1.5", 1/2", 1-1/2".
var thicknessRegex = regexp.MustCompile(`^(\d+(\.\d+)?|\d+/\d+|\d+-\d+/\d+)\s*("|'|''|”|in\.?)?$`)

// IsThicknessToken reports whether s looks like a thickness or size label.
func IsThicknessToken(s string) bool {
	return thicknessRegex.MatchString(strings.TrimSpace(s))
}

// IsThicknessCell reports whether a text or number cell holds a thickness
// label. Spreadsheets often store bare thicknesses such as 1 or 1.5 as numbers.
func IsThicknessCell(c Cell) bool {
	switch c.Kind {
	case Text, Number:
		return IsThicknessToken(c.String())
	default:
		return false
	}
}

// CountThicknessTokens returns the number of thickness-shaped cells in row r.
func (g Grid) CountThicknessTokens(r int) int {
	n := 0
	for _, c := range g.Row(r) {
		if IsThicknessCell(c) {
			n++
		}
	}
	return n
}

// manufacturerNames are stripped from thickness and dimension labels. Longer
// names come first so "Johns Manville" is removed before "JM".
var manufacturerNames = []string{
	"johns manville", "owens corning", "certainteed", "armacell", "aeroflex",
	"rockwool", "k-flex", "knauf", "jm",
}

var (
	moqRegex       = regexp.MustCompile(`(?i)\(?\s*(moq|min\.?\s*order\s*qty)\s*[:=]?\s*[\d,]*\s*[a-z./]*\s*\)?`)
	nonStockRegex  = regexp.MustCompile(`(?i)[\s\-–(]*non[\s\-]?stock\)?\s*$`)
	whitespace     = regexp.MustCompile(`\s+`)
	manufacturerRe = buildManufacturerRegex(manufacturerNames)
)

func buildManufacturerRegex(names []string) *regexp.Regexp {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b\.?`)
}

// NormalizeLabel cleans a thickness or dimension label before it becomes a
// property-bag value: embedded manufacturer names, MOQ annotations, and a
// trailing "Non-Stock" marker are removed and whitespace is collapsed.
func NormalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = nonStockRegex.ReplaceAllString(s, "")
	s = moqRegex.ReplaceAllString(s, "")
	s = manufacturerRe.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.Trim(s, " -–,;:")
}

// ContainsAny reports whether s contains any of the substrings.
func ContainsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ContainsAll reports whether s contains every substring.
func ContainsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

// NarrativeMaxLen is the length above which a row is treated as free text.
const NarrativeMaxLen = 200

var narrativeRegex = regexp.MustCompile(`\b(designed|manufactured|available)\b`)

// IsNarrative reports whether joined row text reads like a product
// description rather than a table header.
func IsNarrative(joinedLower string) bool {
	return len(joinedLower) > NarrativeMaxLen || narrativeRegex.MatchString(joinedLower)
}

var footerRegex = regexp.MustCompile(`\b(invoice|please call|subject to change|freight|prices are|minimum order|terms:)`)

// IsFooter reports whether joined row text belongs to a trailing footer block.
func IsFooter(joinedLower string) bool {
	return footerRegex.MatchString(joinedLower)
}

// IsDash reports whether a cell is a placeholder dash.
func IsDash(c Cell) bool {
	s := c.String()
	return s == "-" || s == "–" || s == "—" || s == "--"
}
