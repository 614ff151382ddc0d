// Package middleware provides fixed-window rate limiting for HTTP endpoints.
//
// # Counters
//
// RedisCounter: shared across instances, one atomic INCR + PEXPIRE script per request.
//
// MemoryCounter: per-process map, used when Redis is not configured or fails.
//
// # Usage
//
//	limiter := middleware.NewLimiter(redisClient, nil, logger, metrics)
//	router.Handle("/events", middleware.RateLimitMiddleware(limiter, "events", middleware.RateLimitConfig{
//		RequestsPerWindow: cfg.RateLimit.EventsRequests,
//		WindowDuration:    cfg.RateLimit.EventsWindow,
//	})(handler))
//
// Rejected requests get 429 with Retry-After and X-RateLimit-* headers and
// are not passed on.
package middleware
