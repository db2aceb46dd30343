package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation results used as the result label.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// StoreMetrics tracks image store operations. A nil *StoreMetrics is valid
// and records nothing.
type StoreMetrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewStoreMetrics creates and registers the store collectors.
func NewStoreMetrics(registry prometheus.Registerer) (*StoreMetrics, error) {
	m := &StoreMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of image store operations by operation and result.",
		}, []string{"op", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of image store operations in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{m.Operations, m.Duration} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register store metrics: %w", err)
		}
	}
	return m, nil
}

// Observe records one finished operation.
func (m *StoreMetrics) Observe(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
