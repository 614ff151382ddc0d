package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/sitepulse/pkg/httputil"
	"github.com/platinummonkey/sitepulse/pkg/observability"
)

// RateLimitConfig defines a fixed-window rate limit
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// Counter is a fixed-window counter store. Incr increments key and returns the
// new count together with the time left in the current window. The first
// increment of a window starts the window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// MemoryCounter is a per-process Counter. It is not shared across instances.
type MemoryCounter struct {
	clock   clockwork.Clock
	windows map[string]*window
	mu      sync.Mutex
}

type window struct {
	count   int64
	resetAt time.Time
}

// NewMemoryCounter creates a new in-memory counter
func NewMemoryCounter(clock clockwork.Clock) *MemoryCounter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCounter{
		clock:   clock,
		windows: make(map[string]*window),
	}
}

// Incr implements Counter
func (c *MemoryCounter) Incr(_ context.Context, key string, windowDuration time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	w, exists := c.windows[key]
	if !exists || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(windowDuration)}
		c.windows[key] = w
	}
	w.count++

	return w.count, w.resetAt.Sub(now), nil
}

// Len returns the number of tracked windows
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// Cleanup removes expired windows (should be called periodically)
func (c *MemoryCounter) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, w := range c.windows {
		if !now.Before(w.resetAt) {
			delete(c.windows, key)
			removed++
		}
	}
	return removed
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// RateLimitMiddleware rejects requests over the limit for route, keyed by client IP
func RateLimitMiddleware(limiter *Limiter, route string, config RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + ":" + httputil.ClientIP(r)

			d := limiter.Decide(r.Context(), key, config.RequestsPerWindow, config.WindowDuration)
			setRateLimitHeaders(w, d)

			if !d.Allowed {
				observability.FromContext(r.Context()).
					WithField("key", key).
					Warn("rate limit exceeded")
				httputil.WriteTooManyRequests(w, d.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}
