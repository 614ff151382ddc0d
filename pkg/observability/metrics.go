package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
//
// All recording helpers are safe to call on a nil *Metrics so components can be
// built without a registry in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ingestion metrics
	EventsIngestedTotal *prometheus.CounterVec
	EventsRejectedTotal *prometheus.CounterVec
	EventLogSize        prometheus.Gauge
	SessionsTotal       prometheus.Gauge

	// Upstream metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec

	// Aggregation metrics
	SummariesTotal *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitDecisionsTotal *prometheus.CounterVec
	RateLimitBackendErrors  prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitepulse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		EventsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_events_ingested_total",
				Help: "Total number of analytics events appended to the event log",
			},
			[]string{"type"},
		),
		EventsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_events_rejected_total",
				Help: "Total number of malformed ingestion payloads",
			},
			[]string{"reason"},
		),
		EventLogSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitepulse_event_log_size",
				Help: "Number of events held in the in-process event log",
			},
		),
		SessionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitepulse_sessions_total",
				Help: "Number of session records held in memory",
			},
		),

		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_upstream_requests_total",
				Help: "Total number of external analytics API sub-queries",
			},
			[]string{"kind", "status"},
		),
		UpstreamRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitepulse_upstream_request_duration_seconds",
				Help:    "External analytics API sub-query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_cache_hits_total",
				Help: "Total number of upstream response cache hits",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_cache_misses_total",
				Help: "Total number of upstream response cache misses",
			},
			[]string{"kind"},
		),

		SummariesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_summaries_total",
				Help: "Total number of analytics summaries computed, by source",
			},
			[]string{"source"},
		),

		RateLimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitepulse_ratelimit_decisions_total",
				Help: "Total number of rate limit decisions",
			},
			[]string{"backend", "decision"},
		),
		RateLimitBackendErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sitepulse_ratelimit_backend_errors_total",
				Help: "Total number of shared counter store errors",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsIngestedTotal,
		m.EventsRejectedTotal,
		m.EventLogSize,
		m.SessionsTotal,
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SummariesTotal,
		m.RateLimitDecisionsTotal,
		m.RateLimitBackendErrors,
	)

	return m
}

// RecordIngested counts an appended event and refreshes the log gauges
func (m *Metrics) RecordIngested(eventType string, logSize, sessions int) {
	if m == nil {
		return
	}
	m.EventsIngestedTotal.WithLabelValues(eventType).Inc()
	m.EventLogSize.Set(float64(logSize))
	m.SessionsTotal.Set(float64(sessions))
}

// RecordRejected counts a rejected ingestion payload
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.EventsRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordUpstream records one external sub-query
func (m *Metrics) RecordUpstream(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.UpstreamRequestsTotal.WithLabelValues(kind, status).Inc()
	m.UpstreamRequestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCache records a cache lookup
func (m *Metrics) RecordCache(kind string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(kind).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(kind).Inc()
}

// RecordSummary counts a computed summary by source tag
func (m *Metrics) RecordSummary(source string) {
	if m == nil {
		return
	}
	m.SummariesTotal.WithLabelValues(source).Inc()
}

// RecordRateLimit counts an allow/reject decision
func (m *Metrics) RecordRateLimit(backend string, allowed bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	m.RateLimitDecisionsTotal.WithLabelValues(backend, decision).Inc()
}

// RecordRateLimitBackendError counts a shared counter store failure
func (m *Metrics) RecordRateLimitBackendError() {
	if m == nil {
		return
	}
	m.RateLimitBackendErrors.Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Routes are labelled by their mux path template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
