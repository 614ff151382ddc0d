package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounter_FixedWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	counter := NewMemoryCounter(clock)
	ctx := context.Background()

	count, ttl, err := counter.Incr(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, time.Second, ttl)

	clock.Advance(400 * time.Millisecond)
	count, ttl, _ = counter.Incr(ctx, "k", time.Second)
	assert.EqualValues(t, 2, count)
	assert.Equal(t, 600*time.Millisecond, ttl)

	clock.Advance(600 * time.Millisecond)
	count, _, _ = counter.Incr(ctx, "k", time.Second)
	assert.EqualValues(t, 1, count, "window should reset once it elapses")
}

func TestMemoryCounter_Cleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	counter := NewMemoryCounter(clock)
	ctx := context.Background()

	counter.Incr(ctx, "short", 100*time.Millisecond)
	counter.Incr(ctx, "long", time.Minute)
	require.Equal(t, 2, counter.Len())

	clock.Advance(200 * time.Millisecond)

	assert.Equal(t, 1, counter.Cleanup())
	assert.Equal(t, 1, counter.Len())
}

func TestLimiter_Memory_AllowsExactlyLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewLimiter(nil, clock, nil, nil)
	ctx := context.Background()

	const limit = 5
	for i := 0; i < limit; i++ {
		assert.True(t, limiter.Allow(ctx, "events:1.2.3.4", limit, time.Minute), "call %d", i+1)
	}
	assert.False(t, limiter.Allow(ctx, "events:1.2.3.4", limit, time.Minute))
	assert.False(t, limiter.Allow(ctx, "events:1.2.3.4", limit, time.Minute))

	// other keys are independent
	assert.True(t, limiter.Allow(ctx, "events:5.6.7.8", limit, time.Minute))

	clock.Advance(time.Minute)
	assert.True(t, limiter.Allow(ctx, "events:1.2.3.4", limit, time.Minute))
}

func TestLimiter_Decide(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewLimiter(nil, clock, nil, nil)
	ctx := context.Background()

	d := limiter.Decide(ctx, "k", 2, 30*time.Second)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Limit)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, clock.Now().Add(30*time.Second), d.ResetAt)

	limiter.Decide(ctx, "k", 2, 30*time.Second)
	clock.Advance(10 * time.Second)
	d = limiter.Decide(ctx, "k", 2, 30*time.Second)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 20*time.Second, d.RetryAfter)
}

func TestRateLimitMiddleware(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewLimiter(nil, clock, nil, nil)
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}

	calls := 0
	handler := RateLimitMiddleware(limiter, "events", config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := send("10.0.0.1:1111")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	// the port differs but the client is the same
	w = send("10.0.0.1:2222")
	assert.Equal(t, http.StatusOK, w.Code)

	w = send("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
	assert.Equal(t, 2, calls, "rejected requests must not reach the handler")

	w = send("10.0.0.2:1111")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware_RoutesAreIndependent(t *testing.T) {
	limiter := NewLimiter(nil, clockwork.NewFakeClock(), nil, nil)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	events := RateLimitMiddleware(limiter, "events", config)(ok)
	analytics := RateLimitMiddleware(limiter, "analytics", config)(ok)

	for _, h := range []http.Handler{events, analytics} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
