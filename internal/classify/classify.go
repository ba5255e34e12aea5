package classify

import (
	"github.com/JonMunkholm/pricesheet/internal/grid"
)

// DefaultScanRows is how many leading rows are considered as header candidates.
const DefaultScanRows = 35

// Classifier evaluates signatures against the leading rows of a grid.
type Classifier struct {
	Signatures []Signature
	ScanRows   int
}

// New returns a classifier with the built-in signatures. A non-positive
// scanRows uses DefaultScanRows.
func New(scanRows int) *Classifier {
	if scanRows <= 0 {
		scanRows = DefaultScanRows
	}
	return &Classifier{Signatures: DefaultSignatures(), ScanRows: scanRows}
}

var defaultClassifier = New(DefaultScanRows)

// Classify classifies g with the default classifier.
func Classify(g grid.Grid) (Classification, error) {
	return defaultClassifier.Classify(g)
}

// Classify returns the classification for the first row a signature
// accepts. Narrative rows are never header candidates. It returns
// ErrNotRecognized when nothing matches within the scan window.
func (c *Classifier) Classify(g grid.Grid) (Classification, error) {
	limit := c.ScanRows
	if limit <= 0 {
		limit = DefaultScanRows
	}
	if limit > g.Len() {
		limit = g.Len()
	}

	for r := 0; r < limit; r++ {
		text := g.JoinedLower(r)
		if text == "" || grid.IsNarrative(text) {
			continue
		}
		w := Window{Grid: g, Row: r, Text: text}
		for _, sig := range c.Signatures {
			if cl, ok := sig.Match(w); ok {
				return cl, nil
			}
		}
	}
	return Classification{}, ErrNotRecognized
}
