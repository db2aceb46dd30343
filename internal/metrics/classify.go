package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ClassifyMetrics tracks calls to the inference service. A nil
// *ClassifyMetrics is valid and records nothing.
type ClassifyMetrics struct {
	Requests *prometheus.CounterVec
	Files    prometheus.Counter
}

// NewClassifyMetrics creates and registers the classification collectors.
func NewClassifyMetrics(registry prometheus.Registerer) (*ClassifyMetrics, error) {
	m := &ClassifyMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classify_requests_total",
			Help:      "Total number of classification requests by result.",
		}, []string{"result"}),
		Files: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classify_files_total",
			Help:      "Total number of files sent for classification.",
		}),
	}

	for _, c := range []prometheus.Collector{m.Requests, m.Files} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register classify metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveRequest records one classification request covering files uploads.
func (m *ClassifyMetrics) ObserveRequest(result string, files int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(result).Inc()
	if result == ResultOK {
		m.Files.Add(float64(files))
	}
}
