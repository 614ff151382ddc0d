// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, summary, "ga4")
//	httputil.WriteBadRequest(w, "unknown event type")
//	httputil.WriteTooManyRequests(w, 30*time.Second)
//
// Every error body has the shape {"error": "..."}. Success bodies use the
// {"success": true, ...} envelope.
//
// # Request Parsing
//
//	var req analytics.IngestRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	start, ok, err := httputil.ParseQueryDate(r, "startDate")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(64<<10),
//	)
//
// # Related Packages
//
//   - pkg/middleware: rate limiting
package httputil
