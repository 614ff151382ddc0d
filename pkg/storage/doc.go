// Package storage connects to the shared Redis instance backing the
// distributed rate limiter.
//
//	if cfg.Redis.Enabled() {
//		client, err := storage.NewRedisClient(ctx, cfg.Redis)
//		if err != nil {
//			// fall back to in-process counters
//		}
//	}
//
// Event data itself is held in memory by pkg/analytics; nothing here
// persists it.
package storage
