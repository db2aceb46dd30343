// Package metrics provides Prometheus metrics for swanid components.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swanid"

// Metrics holds all the metric collectors for the server.
type Metrics struct {
	registry *prometheus.Registry
	Store    *StoreMetrics
	Classify *ClassifyMetrics
}

// New creates a registry and registers every collector on it.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	storeMetrics, err := NewStoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create store metrics: %w", err)
	}
	classifyMetrics, err := NewClassifyMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create classify metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Store:    storeMetrics,
		Classify: classifyMetrics,
	}, nil
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:          m.registry,
		EnableOpenMetrics: true,
	})
}
