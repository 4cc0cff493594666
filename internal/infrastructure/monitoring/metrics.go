package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Build outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeCached    = "cached"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Build metrics
	BuildsTotal    *prometheus.CounterVec
	BuildDuration  *prometheus.HistogramVec
	BuildsRunning  prometheus.Gauge
	ResourceFetch  *prometheus.CounterVec
	UnresolvedRefs prometheus.Counter

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapcache_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapcache_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		BuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapcache_builds_total",
				Help: "Total number of cache builds by outcome",
			},
			[]string{"outcome"},
		),
		BuildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapcache_build_duration_seconds",
				Help:    "Cache build duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		BuildsRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapcache_builds_running",
				Help: "Number of cache builds currently running",
			},
		),
		ResourceFetch: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapcache_resource_fetches_total",
				Help: "Total number of subresource fetches by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		UnresolvedRefs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "snapcache_unresolved_references_total",
				Help: "References left untouched because they could not be inlined",
			},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapcache_cache_lookups_total",
				Help: "Total number of cache lookups by result",
			},
			[]string{"result"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "snapcache_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBuild records a finished build
func (m *Metrics) RecordBuild(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.WithLabelValues(outcome).Inc()
	m.BuildDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// BuildStarted increments the running builds gauge
func (m *Metrics) BuildStarted() {
	if m == nil {
		return
	}
	m.BuildsRunning.Inc()
}

// BuildFinished decrements the running builds gauge
func (m *Metrics) BuildFinished() {
	if m == nil {
		return
	}
	m.BuildsRunning.Dec()
}

// RecordFetch records one subresource fetch
func (m *Metrics) RecordFetch(kind string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.ResourceFetch.WithLabelValues(kind, outcome).Inc()
}

// RecordUnresolved adds n references left untouched by one inlining pass
func (m *Metrics) RecordUnresolved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.UnresolvedRefs.Add(float64(n))
}

// RecordCacheLookup records a cache lookup; result is hit, miss or malformed
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
