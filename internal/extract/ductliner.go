package extract

import (
	"regexp"
	"strings"

	"github.com/JonMunkholm/pricesheet/internal/catalog"
	"github.com/JonMunkholm/pricesheet/internal/classify"
	"github.com/JonMunkholm/pricesheet/internal/grid"
)

func init() {
	Register(ductLiner{})
}

// ductLinerProducts name the product sections a duct-liner sheet may hold.
var ductLinerProducts = []*regexp.Regexp{
	regexp.MustCompile(`\blinacoustic\b`),
	regexp.MustCompile(`\bquiet\s*r\b`),
	regexp.MustCompile(`\btough\s*gard\b`),
	regexp.MustCompile(`\bpermacote\b`),
	regexp.MustCompile(`\bspiracoustic\b`),
	regexp.MustCompile(`\baeroflex\b.*\bliner\b`),
	regexp.MustCompile(`\bduct\s*liner\b`),
	regexp.MustCompile(`\bduct\s*board\b`),
}

// ductLiner reads one or more named product sections. Each section uses its
// nearest header row, above or below the section marker, and runs until the
// next marker, a blank row, or a footer.
type ductLiner struct{}

func (ductLiner) Layout() classify.Layout { return classify.DuctLiner }

type section struct {
	name   string
	marker int
	header int
}

func (ductLiner) Extract(g grid.Grid, c classify.Classification, sc SheetContext) []catalog.VariantRecord {
	var markers, headers []int
	for r := 0; r < g.Len(); r++ {
		switch {
		case isDuctHeader(g, r):
			headers = append(headers, r)
		case isSectionMarker(g, r):
			markers = append(markers, r)
		}
	}

	var sections []section
	if len(markers) == 0 {
		sections = []section{{name: "", marker: -1, header: c.HeaderRow}}
	}
	for _, m := range markers {
		h := nearestHeader(headers, m)
		if h < 0 {
			continue
		}
		_, name := g.FirstText(m)
		sections = append(sections, section{name: name, marker: m, header: h})
	}

	var out []catalog.VariantRecord
	for i, s := range sections {
		end := g.Len()
		if i+1 < len(sections) && sections[i+1].marker > s.marker {
			end = sections[i+1].marker
		}
		recs, footer := extractSection(g, s, end)
		out = append(out, recs...)
		if footer {
			break
		}
	}
	return out
}

// extractSection returns the section's records and whether it hit a footer.
func extractSection(g grid.Grid, s section, end int) ([]catalog.VariantRecord, bool) {
	uc := discoverUnitColumns(g, s.header)
	start := s.header + 1
	if s.marker >= start {
		start = s.marker + 1
	}

	var out []catalog.VariantRecord
	for r := start; r < end; r++ {
		text := g.JoinedLower(r)
		if text == "" {
			if len(out) > 0 {
				break
			}
			continue
		}
		if stopRow(text) {
			return out, true
		}
		if isDuctHeader(g, r) || isSectionMarker(g, r) {
			if len(out) > 0 {
				break
			}
			continue
		}
		if rec, ok := uc.record(g, r, s.name); ok {
			out = append(out, rec)
		}
	}
	return out, false
}

func isDuctHeader(g grid.Grid, r int) bool {
	_, first := g.FirstText(r)
	return strings.Contains(strings.ToLower(first), "thickness") &&
		strings.Contains(g.JoinedLower(r), "dimension")
}

// maxMarkerCells bounds how many cells a section marker row may fill.
const maxMarkerCells = 2

func isSectionMarker(g grid.Grid, r int) bool {
	if n := g.NonBlankCount(r); n == 0 || n > maxMarkerCells {
		return false
	}
	text := g.JoinedLower(r)
	if stopRow(text) {
		return false
	}
	for _, re := range ductLinerProducts {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// nearestHeader returns the header row closest to marker m, preferring the
// following header on a tie, or -1 when there are no headers.
func nearestHeader(headers []int, m int) int {
	best, bestDist := -1, 0
	for _, h := range headers {
		d := h - m
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist || (d == bestDist && h > m) {
			best, bestDist = h, d
		}
	}
	return best
}
