// Package metrics holds the Prometheus collectors shared by the content scan
// and the taxonomy engine. The daemon registers them on its own registry and
// serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var ScanItems = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bookshelf",
	Subsystem: "scan",
	Name:      "items_total",
	Help:      "Items processed by the content scan, by outcome.",
}, []string{"outcome"})

var ScanTokens = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "bookshelf",
	Subsystem: "scan",
	Name:      "tokens_total",
	Help:      "Model tokens consumed by successful taggings.",
})

var ScanActive = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "bookshelf",
	Subsystem: "scan",
	Name:      "active",
	Help:      "1 while a content scan is running.",
})

var ScanItemDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "bookshelf",
	Subsystem: "scan",
	Name:      "item_duration_seconds",
	Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
}, []string{"outcome"})

var TaxonomyTagsLearned = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bookshelf",
	Subsystem: "taxonomy",
	Name:      "tags_learned_total",
	Help:      "Tags added to the taxonomy mapping, by source.",
}, []string{"source"})

var TaxonomyBatchFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "bookshelf",
	Subsystem: "taxonomy",
	Name:      "batch_failures_total",
	Help:      "Model learning batches that were skipped.",
})

// Scan outcomes.
const (
	OutcomeTagged  = "tagged"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeCrashed = "crashed"
)

// Taxonomy learning sources.
const (
	SourceRule = "rule"
	SourceAI   = "ai"
)

// Collectors returns every collector owned by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ScanItems,
		ScanTokens,
		ScanActive,
		ScanItemDuration,
		TaxonomyTagsLearned,
		TaxonomyBatchFailures,
	}
}

// NewRegistry returns a registry carrying the package collectors plus the
// standard Go and process collectors.
func NewRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	extra := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range append(Collectors(), extra...) {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
