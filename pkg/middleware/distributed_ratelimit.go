package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/sitepulse/pkg/observability"
)

// fixedWindowScript increments the counter and starts the window on the first
// hit. A key left without expiry is repaired so it cannot block forever.
var fixedWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounter is a Counter shared across instances through Redis
type RedisCounter struct {
	redis  *redis.Client
	prefix string
}

// NewRedisCounter creates a new Redis-backed counter
func NewRedisCounter(redisClient *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Incr implements Counter with an atomic INCR and PEXPIRE
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", c.prefix, key)

	res, err := fixedWindowScript.Run(ctx, c.redis, []string{redisKey}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis error: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, fmt.Errorf("unexpected script reply %T", res)
	}
	count, ok := vals[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected count type %T", vals[0])
	}
	ttl, ok := vals[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected ttl type %T", vals[1])
	}

	return count, time.Duration(ttl) * time.Millisecond, nil
}

// Reset clears the counter for a key
func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	return c.redis.Del(ctx, fmt.Sprintf("%s:%s", c.prefix, key)).Err()
}

const (
	backendRedis  = "redis"
	backendMemory = "memory"
)

// Limiter answers fixed-window allow/deny decisions.
// It counts in Redis when a client is configured and in process memory
// otherwise. A Redis failure degrades that request to the memory counter.
type Limiter struct {
	shared  *RedisCounter
	local   *MemoryCounter
	clock   clockwork.Clock
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewLimiter creates a limiter. redisClient may be nil.
func NewLimiter(redisClient *redis.Client, clock clockwork.Clock, logger *observability.Logger, metrics *observability.Metrics) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	l := &Limiter{
		local:   NewMemoryCounter(clock),
		clock:   clock,
		logger:  logger.Named("ratelimit"),
		metrics: metrics,
	}
	if redisClient != nil {
		l.shared = NewRedisCounter(redisClient, "ratelimit")
	}
	return l
}

// Allow reports whether a request for key fits in the current window
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	return l.Decide(ctx, key, limit, window).Allowed
}

// Decide counts the request and returns the full decision.
// Exactly the first limit calls in a window are allowed.
func (l *Limiter) Decide(ctx context.Context, key string, limit int, window time.Duration) Decision {
	backend := backendMemory
	var (
		count int64
		ttl   time.Duration
		err   error
	)

	if l.shared != nil {
		backend = backendRedis
		count, ttl, err = l.shared.Incr(ctx, key, window)
		if err != nil {
			l.logger.WithError(err).WithField("key", key).Warn("shared counter unavailable, counting in memory")
			l.metrics.RecordRateLimitBackendError()
			backend = backendMemory
		}
	}
	if backend == backendMemory {
		count, ttl, _ = l.local.Incr(ctx, key, window)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:    count <= int64(limit),
		Limit:      limit,
		Remaining:  remaining,
		RetryAfter: ttl,
		ResetAt:    l.clock.Now().Add(ttl),
	}
	l.metrics.RecordRateLimit(backend, d.Allowed)
	return d
}

// Cleanup drops expired in-memory windows
func (l *Limiter) Cleanup() int {
	return l.local.Cleanup()
}
