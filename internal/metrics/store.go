package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Entry store Prometheus metrics.
var (
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jsonstore",
			Name:      "store_operations_total",
			Help:      "Total number of entry store operations",
		},
		[]string{"op", "status"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jsonstore",
			Name:      "store_operation_duration_seconds",
			Help:      "Entry store operation duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
		[]string{"op"},
	)

	SearchSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jsonstore",
			Name:      "search_skipped_candidates_total",
			Help:      "Indexed ids skipped by search because the document store had no entry",
		},
	)

	ReindexEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jsonstore",
			Name:      "reindex_entries",
			Help:      "Number of entries indexed by the last reindex",
		},
	)
)

var registerStoreOnce sync.Once

// RegisterStoreMetrics registers entry store metrics. Safe to call more than once.
func RegisterStoreMetrics() {
	registerStoreOnce.Do(func() {
		prometheus.MustRegister(StoreOperationsTotal)
		prometheus.MustRegister(StoreOperationDuration)
		prometheus.MustRegister(SearchSkippedTotal)
		prometheus.MustRegister(ReindexEntries)
	})
}

// ObserveOperation records one store operation outcome.
func ObserveOperation(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreOperationsTotal.WithLabelValues(op, status).Inc()
	StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
