// Package observability provides structured logging, Prometheus metrics, health
// probes, graceful shutdown and OpenTelemetry tracing for sitepulse.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Named("ingest").WithField("type", "page_view").Info("event appended")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("upstream unavailable")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordSummary("ga4")
//
// Every Record* helper is a no-op on a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(redisClient, version).WithUpstream(ga4Client.Configured)
//	router.HandleFunc("/readyz", checker.Readiness)
//
// # Related Packages
//
//   - pkg/config: observability settings
//   - pkg/api: wires the middleware and probes
package observability
