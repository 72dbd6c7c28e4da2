// Package metrics exposes Prometheus instrumentation for the login job
// lifecycle and the HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements jobs.Observer and carries the HTTP request counters.
type Metrics struct {
	registry *prometheus.Registry

	jobsCreated   prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	browsersOpen  prometheus.Gauge

	httpRequests *prometheus.CounterVec
}

// New builds a Metrics with its own registry, pre-populated with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telepilot",
			Subsystem: "jobs",
			Name:      "created_total",
			Help:      "Login jobs created.",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telepilot",
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Login jobs that finished successfully.",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telepilot",
			Subsystem: "jobs",
			Name:      "failed_total",
			Help:      "Login jobs that ended in failure.",
		}),
		browsersOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telepilot",
			Subsystem: "browser",
			Name:      "open",
			Help:      "Browsers currently held by live jobs.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telepilot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "code"}),
	}

	registry.MustRegister(
		m.jobsCreated,
		m.jobsCompleted,
		m.jobsFailed,
		m.browsersOpen,
		m.httpRequests,
	)
	return m
}

func (m *Metrics) JobCreated()    { m.jobsCreated.Inc() }
func (m *Metrics) JobCompleted()  { m.jobsCompleted.Inc() }
func (m *Metrics) JobFailed()     { m.jobsFailed.Inc() }
func (m *Metrics) BrowserOpened() { m.browsersOpen.Inc() }
func (m *Metrics) BrowserClosed() { m.browsersOpen.Dec() }

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route, code string) {
	m.httpRequests.WithLabelValues(method, route, code).Inc()
}

// Handler serves the /metrics scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
