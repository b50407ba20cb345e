package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether a client may make another request
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// tokenBucketScript refills a per-key bucket by elapsed time and takes one
// token. KEYS[1] bucket hash; ARGV rate per ms, burst, now in ms, ttl in s.
var tokenBucketScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = burst
  ts = now
end
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) * rate)
end
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("EXPIRE", KEYS[1], ARGV[4])
return allowed
`)

// RedisLimiter is a per-key token bucket shared by every instance. It admits
// the same traffic as MemoryLimiter for the same settings.
type RedisLimiter struct {
	client *redis.Client
	rate   float64
	burst  int
	ttl    time.Duration
	prefix string
	clock  clockwork.Clock
}

// NewRedisLimiter refills requestsPerMinute tokens a minute up to burst
func NewRedisLimiter(client *redis.Client, clock clockwork.Clock, requestsPerMinute, burst int) *RedisLimiter {
	perMs := float64(requestsPerMinute) / float64(time.Minute/time.Millisecond)

	// An idle bucket is full again after burst/rate; keep it a little longer.
	ttl := time.Minute
	if perMs > 0 {
		ttl = time.Duration(float64(burst)/perMs)*time.Millisecond + time.Minute
	}

	return &RedisLimiter{
		client: client,
		rate:   perMs,
		burst:  burst,
		ttl:    ttl,
		prefix: "sentiment:ratelimit:",
		clock:  clock,
	}
}

// Allow takes a token for key
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := tokenBucketScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		strconv.FormatFloat(l.rate, 'g', -1, 64),
		l.burst,
		l.clock.Now().UnixMilli(),
		int64(l.ttl/time.Second),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit bucket: %w", err)
	}
	return res == 1, nil
}

// MemoryLimiter is a per-key token bucket local to this instance
type MemoryLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter refills requestsPerMinute tokens a minute up to burst
func NewMemoryLimiter(requestsPerMinute, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		limiters:  make(map[string]*limiterEntry),
		rate:      rate.Limit(float64(requestsPerMinute) / 60),
		burst:     burst,
		cleanupAt: time.Now().Add(5 * time.Minute),
	}
}

// Allow takes a token for key
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(5 * time.Minute)
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.Allow(), nil
}

// cleanup drops idle keys. Must be called with mu held.
func (l *MemoryLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-10 * time.Minute)
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

// Keys returns the number of tracked keys
func (l *MemoryLimiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// FallbackLimiter asks primary first and uses secondary while primary errors
type FallbackLimiter struct {
	primary   Limiter
	secondary Limiter
	onError   func(error)
}

// NewFallbackLimiter creates a FallbackLimiter. onError may be nil.
func NewFallbackLimiter(primary, secondary Limiter, onError func(error)) *FallbackLimiter {
	return &FallbackLimiter{primary: primary, secondary: secondary, onError: onError}
}

// Allow consults primary, falling back to secondary on error
func (l *FallbackLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := l.primary.Allow(ctx, key)
	if err == nil {
		return ok, nil
	}
	if l.onError != nil {
		l.onError(err)
	}
	return l.secondary.Allow(ctx, key)
}
