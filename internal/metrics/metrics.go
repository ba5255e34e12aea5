// Package metrics exposes import counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors holds the import metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	Sheets          *prometheus.CounterVec
	Variants        *prometheus.CounterVec
	SheetDuration   *prometheus.HistogramVec
	Classifications *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. A nil reg uses a
// fresh registry.
func New(reg *prometheus.Registry) *Collectors {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collectors{
		Sheets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricesheet_sheets_total",
				Help: "Sheets processed, by outcome.",
			},
			[]string{"outcome"},
		),
		Variants: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricesheet_variants_total",
				Help: "Variant records merged into the catalog, by result.",
			},
			[]string{"result"},
		),
		SheetDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricesheet_sheet_duration_seconds",
				Help:    "Time to fetch, classify, extract and reconcile one sheet.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"layout"},
		),
		Classifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricesheet_classifications_total",
				Help: "Classifier results, by layout.",
			},
			[]string{"layout"},
		),
		gatherer: reg,
	}
	reg.MustRegister(c.Sheets, c.Variants, c.SheetDuration, c.Classifications)
	return c
}

// SheetDone records a finished sheet.
func (c *Collectors) SheetDone(outcome, layout string, d time.Duration) {
	if c == nil {
		return
	}
	c.Sheets.WithLabelValues(outcome).Inc()
	if layout != "" {
		c.SheetDuration.WithLabelValues(layout).Observe(d.Seconds())
	}
}

// Classified records a classifier result. Use "not_recognized" for misses.
func (c *Collectors) Classified(layout string) {
	if c == nil {
		return
	}
	c.Classifications.WithLabelValues(layout).Inc()
}

// VariantCounts records reconcile results.
func (c *Collectors) VariantCounts(created, added, updated, unchanged int) {
	if c == nil {
		return
	}
	c.Variants.WithLabelValues("created").Add(float64(created))
	c.Variants.WithLabelValues("entry_added").Add(float64(added))
	c.Variants.WithLabelValues("entry_updated").Add(float64(updated))
	c.Variants.WithLabelValues("unchanged").Add(float64(unchanged))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
