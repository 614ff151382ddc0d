// Package api exposes the analytics pipeline over HTTP.
//
// # Routes
//
//	POST /events      ingest one tracked event
//	GET  /analytics   dashboard summary for ?startDate=YYYY-MM-DD&endDate=YYYY-MM-DD
//	GET  /healthz     liveness
//	GET  /readyz      readiness (Redis, GA4 configuration)
//	GET  /metrics     Prometheus exposition
//
// Both data routes are rate limited per client address. Successful responses
// use the {"success": true, ...} envelope; errors are {"error": "..."}.
//
// # Usage
//
//	srv := api.NewServer(api.Dependencies{
//		Config:     cfg,
//		Ingestor:   ingestor,
//		Aggregator: aggregator,
//		Limiter:    limiter,
//		Logger:     logger,
//	})
//	http.ListenAndServe(cfg.Server.Addr(), srv.Handler())
package api
