// Package telemetry exposes Prometheus collectors for the pipeline.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	targetsTotal          *prometheus.CounterVec
	fetchDurationSeconds  prometheus.Histogram
	fieldsExtractedTotal  prometheus.Counter
	normalizationGapTotal prometheus.Counter

	once sync.Once
)

// Init registers the pipeline collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		targetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_targets_total",
				Help: "Total targets processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		fieldsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_fields_extracted_total",
				Help: "Total metric fields discovered across all pages.",
			},
		)

		normalizationGapTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_normalization_gaps_total",
				Help: "Total values that failed normalization and became missing.",
			},
		)
	})
}

// CountOutcome increments the per-outcome target counter.
func CountOutcome(outcome string) {
	if targetsTotal != nil {
		targetsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveFetchDuration records one fetch latency.
func ObserveFetchDuration(d time.Duration) {
	if fetchDurationSeconds != nil {
		fetchDurationSeconds.Observe(d.Seconds())
	}
}

// AddFieldsExtracted adds the number of fields discovered on one page.
func AddFieldsExtracted(n int) {
	if fieldsExtractedTotal != nil {
		fieldsExtractedTotal.Add(float64(n))
	}
}

// CountNormalizationGap increments the missing-value counter.
func CountNormalizationGap() {
	if normalizationGapTotal != nil {
		normalizationGapTotal.Inc()
	}
}
