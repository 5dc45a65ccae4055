package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// backendStates lists every lifecycle state exported by BackendState.
var backendStates = []string{"uninitialized", "initializing", "ready", "failed"}

// Retrieval backend Prometheus metrics.
var (
	BackendState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "colsearch",
			Name:      "backend_state",
			Help:      "Current retrieval backend lifecycle state (1 for the active state)",
		},
		[]string{"state"},
	)

	BackendInitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colsearch",
			Name:      "backend_init_total",
			Help:      "Total retrieval backend construction attempts",
		},
		[]string{"status"},
	)

	BackendInitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "colsearch",
			Name:      "backend_init_duration_seconds",
			Help:      "Retrieval backend construction duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	BackendSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "colsearch",
			Name:      "backend_search_duration_seconds",
			Help:      "Retrieval engine search duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	MetadataInconsistencyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "colsearch",
			Name:      "metadata_inconsistency_total",
			Help:      "Engine ids with no metadata record (index/metadata drift)",
		},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colsearch",
			Name:      "search_cache_total",
			Help:      "Search result cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var backendMetricsRegistered bool

// RegisterBackendMetrics registers Prometheus backend metrics. Must be called once from main.
func RegisterBackendMetrics() {
	if backendMetricsRegistered {
		return
	}
	prometheus.MustRegister(BackendState)
	prometheus.MustRegister(BackendInitTotal)
	prometheus.MustRegister(BackendInitDuration)
	prometheus.MustRegister(BackendSearchDuration)
	prometheus.MustRegister(MetadataInconsistencyTotal)
	prometheus.MustRegister(SearchCacheTotal)
	backendMetricsRegistered = true
}

// SetBackendState marks state as the active lifecycle state.
func SetBackendState(state string) {
	for _, s := range backendStates {
		v := 0.0
		if s == state {
			v = 1
		}
		BackendState.WithLabelValues(s).Set(v)
	}
}

// ObserveBackendInit records one construction attempt.
func ObserveBackendInit(status string, d time.Duration) {
	BackendInitTotal.WithLabelValues(status).Inc()
	BackendInitDuration.Observe(d.Seconds())
}

// ObserveBackendSearch records one engine search call.
func ObserveBackendSearch(status string, d time.Duration) {
	BackendSearchDuration.WithLabelValues(status).Observe(d.Seconds())
}
