// Package metrics provides Prometheus metrics for the churn actions services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Call outcomes recorded by RecordCall.
const (
	OutcomePlaced   = "placed"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
	OutcomeNoPhone  = "no_phone"
)

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace overrides the metric namespace ("churnops" by default).
func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = ns }
}

// WithRegistry registers every metric on r instead of a fresh registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(m *Manager) { m.runtime = true }
}

// Manager owns the registry and every collector. A nil *Manager is valid and
// records nothing, so components can take one optionally.
type Manager struct {
	namespace string
	registry  *prometheus.Registry
	runtime   bool

	calls           *prometheus.CounterVec
	llmRequests     *prometheus.CounterVec
	llmLatency      prometheus.Histogram
	summaryRows     prometheus.Histogram
	renders         *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
}

// New builds a Manager with its own registry unless WithRegistry is given.
func New(opts ...Option) *Manager {
	m := &Manager{namespace: "churnops"}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	if m.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	auto := promauto.With(m.registry)

	m.calls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "calls_total",
		Help:      "Outbound call attempts by outcome",
	}, []string{"outcome"})

	m.llmRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "narrative",
		Name:      "llm_requests_total",
		Help:      "Summary requests sent to the language model by result",
	}, []string{"result"})

	m.llmLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "narrative",
		Name:      "llm_latency_seconds",
		Help:      "Language model round-trip latency",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})

	m.summaryRows = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "narrative",
		Name:      "table_rows",
		Help:      "Rows of the high-risk table included in the prompt",
		Buckets:   []float64{5, 10, 25, 50, 100},
	})

	m.renders = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "dashboard",
		Name:      "renders_total",
		Help:      "Dashboard renders by result",
	}, []string{"result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	m.httpDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.eventsPublished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Call events handed to the publisher by result",
	}, []string{"result"})

	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ─── RECORDERS ────────────────────────────────────────────────────────────────

// RecordCall counts one call attempt. outcome is one of the Outcome* constants.
func (m *Manager) RecordCall(outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(outcome).Inc()
}

// RecordLLMRequest counts one summary request and observes its latency.
func (m *Manager) RecordLLMRequest(err error, latency time.Duration, rows int) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.llmRequests.WithLabelValues(result).Inc()
	m.llmLatency.Observe(latency.Seconds())
	m.summaryRows.Observe(float64(rows))
}

// RecordRender counts one dashboard render; failed is true when the view
// carried an error banner.
func (m *Manager) RecordRender(failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	m.renders.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts one served request.
func (m *Manager) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordEventPublished counts one call event publish attempt.
func (m *Manager) RecordEventPublished(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(result).Inc()
}
