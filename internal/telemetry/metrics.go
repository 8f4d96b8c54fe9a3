// Package telemetry records indexing and search metrics.
//
// Metrics are exported through Prometheus collectors registered on a
// registry owned by the engine, and recent query activity is kept in a
// small in-memory log for status output. Nothing leaves the machine
// unless the daemon's metrics endpoint is enabled.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fsindex"

// Metrics holds the Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	FilesIndexed     prometheus.Counter
	IndexUpdate      prometheus.Histogram
	IndexUpdateFails prometheus.Counter
	SearchLatency    *prometheus.HistogramVec
	SearchResults    prometheus.Histogram
	Registrations    *prometheus.CounterVec
	Events           *prometheus.CounterVec
	CleanupRemoved   prometheus.Counter
	IndexTerms       *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FilesIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_indexed_total",
			Help:      "Total file update pipeline runs that completed.",
		}),
		IndexUpdate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_update_seconds",
			Help:      "Latency of one file update pipeline run.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		IndexUpdateFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_update_failures_total",
			Help:      "Total file update pipeline runs that failed.",
		}),
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_seconds",
			Help:      "Search latency by term kind.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"kind"}),
		SearchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of paths returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Register and unregister calls by result.",
		}, []string{"result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_events_total",
			Help:      "Filesystem change events handled by operation.",
		}, []string{"op"}),
		CleanupRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_removed_total",
			Help:      "File ids purged from the indices by the cleanup sweep.",
		}),
		IndexTerms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_terms",
			Help:      "Distinct terms held per index.",
		}, []string{"index"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FilesIndexed,
		m.IndexUpdate,
		m.IndexUpdateFails,
		m.SearchLatency,
		m.SearchResults,
		m.Registrations,
		m.Events,
		m.CleanupRemoved,
		m.IndexTerms,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpdate records one update pipeline run.
func (m *Metrics) ObserveUpdate(start time.Time, err error) {
	if m == nil {
		return
	}
	m.IndexUpdate.Observe(time.Since(start).Seconds())
	if err != nil {
		m.IndexUpdateFails.Inc()
		return
	}
	m.FilesIndexed.Inc()
}

// ObserveSearch records one search.
func (m *Metrics) ObserveSearch(kind string, start time.Time, results int) {
	if m == nil {
		return
	}
	m.SearchLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	m.SearchResults.Observe(float64(results))
}

// CountRegistration increments the registration counter for result.
func (m *Metrics) CountRegistration(result string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result).Inc()
}

// CountEvent increments the event counter for op.
func (m *Metrics) CountEvent(op string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(op).Inc()
}

// CountCleanup adds n purged ids.
func (m *Metrics) CountCleanup(n int) {
	if m == nil || n == 0 {
		return
	}
	m.CleanupRemoved.Add(float64(n))
}

// SetIndexTerms updates the term gauge for one index.
func (m *Metrics) SetIndexTerms(index string, terms int) {
	if m == nil {
		return
	}
	m.IndexTerms.WithLabelValues(index).Set(float64(terms))
}
