package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/sitepulse/pkg/analytics"
	"github.com/platinummonkey/sitepulse/pkg/config"
	"github.com/platinummonkey/sitepulse/pkg/httputil"
	"github.com/platinummonkey/sitepulse/pkg/middleware"
	"github.com/platinummonkey/sitepulse/pkg/observability"
)

// Dependencies are the collaborators of a Server. Ingestor and Aggregator are
// required; a nil Limiter disables rate limiting and a nil Registry disables
// /metrics.
type Dependencies struct {
	Config     *config.Config
	Ingestor   *analytics.Ingestor
	Aggregator *analytics.Aggregator
	Limiter    *middleware.Limiter
	Health     *observability.HealthChecker
	Registry   *prometheus.Registry
	Metrics    *observability.Metrics
	Logger     *observability.Logger
	Clock      clockwork.Clock
}

// Server is the HTTP API server
type Server struct {
	router     *mux.Router
	cfg        *config.Config
	ingestor   *analytics.Ingestor
	aggregator *analytics.Aggregator
	limiter    *middleware.Limiter
	health     *observability.HealthChecker
	registry   *prometheus.Registry
	metrics    *observability.Metrics
	logger     *observability.Logger
	clock      clockwork.Clock
}

// NewServer creates a server and registers its routes
func NewServer(deps Dependencies) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		cfg:        deps.Config,
		ingestor:   deps.Ingestor,
		aggregator: deps.Aggregator,
		limiter:    deps.Limiter,
		health:     deps.Health,
		registry:   deps.Registry,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		clock:      deps.Clock,
	}
	if s.cfg == nil {
		s.cfg = config.Default()
	}
	if s.health == nil {
		s.health = observability.NewHealthChecker(nil, s.cfg.Observability.OTelServiceVersion)
	}
	if s.logger == nil {
		s.logger = observability.NopLogger()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))

	rl := s.cfg.RateLimit
	s.router.Handle("/events", s.limited("events", rl.EventsRequests, rl.EventsWindow, http.HandlerFunc(s.handleEvents))).
		Methods(http.MethodPost)
	s.router.Handle("/analytics", s.limited("analytics", rl.AnalyticsRequests, rl.AnalyticsWindow, http.HandlerFunc(s.handleAnalytics))).
		Methods(http.MethodGet)

	s.router.HandleFunc("/healthz", s.health.Liveness).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.health.Readiness).Methods(http.MethodGet)
	if s.registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// limited wraps h with the route's fixed-window limit when limiting is on
func (s *Server) limited(route string, requests int, window time.Duration, h http.Handler) http.Handler {
	if s.limiter == nil || !s.cfg.RateLimit.Enabled {
		return h
	}
	return middleware.RateLimitMiddleware(s.limiter, route, middleware.RateLimitConfig{
		RequestsPerWindow: requests,
		WindowDuration:    window,
	})(h)
}

// ServeHTTP implements http.Handler without the outer middleware chain
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the router wrapped in the standard middleware chain
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.CORSMiddleware(s.cfg.Server.AllowedOrigins),
		httputil.MaxBytesMiddleware(s.cfg.Server.MaxBodyBytes),
	)(s.router)
}
