// Package metrics exposes Prometheus instrumentation for recommendation
// resolution, provider circuit breakers and catalog imports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution sources and outcomes used as label values.
const (
	SourcePrimary  = "primary"
	SourceFallback = "fallback"

	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeInvalid  = "invalid"
)

var (
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_total",
			Help: "Recommendation requests by serving source and outcome",
		},
		[]string{"source", "outcome"},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_duration_seconds",
			Help:    "End-to-end recommendation resolution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	PrimaryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_primary_failures_total",
			Help: "Primary path failures that routed a request to the fallback",
		},
		[]string{"stage"}, // "provider", "reconcile"
	)

	ReconcileGapsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendation_reconcile_gaps_total",
			Help: "Provider identifiers with no matching catalog record",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	ImportedMoviesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_import_movies_total",
			Help: "Catalog import rows by result",
		},
		[]string{"result"}, // "imported", "existing", "no_poster", "failed"
	)
)

// RecordRecommendation records one finished recommendation request.
func RecordRecommendation(source, outcome string, duration time.Duration) {
	RecommendationsTotal.WithLabelValues(source, outcome).Inc()
	RecommendationDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordPrimaryFailure records a primary path failure at the given stage.
func RecordPrimaryFailure(stage string) {
	PrimaryFailuresTotal.WithLabelValues(stage).Inc()
}

// RecordGaps adds n reconcile gaps.
func RecordGaps(n int) {
	if n > 0 {
		ReconcileGapsTotal.Add(float64(n))
	}
}

// RecordImport records one import row result.
func RecordImport(result string) {
	ImportedMoviesTotal.WithLabelValues(result).Inc()
}
