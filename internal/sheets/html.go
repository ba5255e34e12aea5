package sheets

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JonMunkholm/pricesheet/internal/grid"
)

// DefaultHTTPTimeout bounds a single page fetch.
const DefaultHTTPTimeout = 30 * time.Second

// maxColspan caps how many cells one merged cell expands to.
const maxColspan = 64

// HTMLSource reads the first table of a published spreadsheet page.
// Google's "publish to web" pages render each tab as a table.waffle whose
// row-number and column-letter headers are skipped.
type HTMLSource struct {
	Client    *http.Client
	UserAgent string
}

// NewHTMLSource returns a source with its own client.
func NewHTMLSource(timeout time.Duration) *HTMLSource {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTMLSource{Client: &http.Client{Timeout: timeout}, UserAgent: "pricesheet/1"}
}

func (h *HTMLSource) Fetch(ctx context.Context, s Sheet) (grid.Grid, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.ID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, fmt.Errorf("%w: %s (HTTP %d)", ErrNoData, s.ID, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: HTTP %d", s.ID, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.ID, err)
	}
	return nonEmpty(tableGrid(doc), s.ID)
}

// tableGrid converts the sheet table of doc into a grid.
func tableGrid(doc *goquery.Document) grid.Grid {
	table := doc.Find("table.waffle").First()
	if table.Length() == 0 {
		table = doc.Find("table").First()
	}

	var g grid.Grid
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// Column letters live in thead.
		if tr.ParentsFiltered("thead").Length() > 0 {
			return
		}
		var row grid.Row
		tr.Children().Each(func(_ int, cell *goquery.Selection) {
			if goquery.NodeName(cell) != "td" && goquery.NodeName(cell) != "th" {
				return
			}
			if cell.HasClass("row-headers-background") || cell.HasClass("freezebar-cell") {
				return
			}
			row = append(row, grid.Str(strings.TrimSpace(cell.Text())))
			for i := 1; i < colspan(cell); i++ {
				row = append(row, grid.Blank())
			}
		})
		g = append(g, row)
	})
	return g
}

func colspan(s *goquery.Selection) int {
	v, ok := s.Attr("colspan")
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return min(n, maxColspan)
}
