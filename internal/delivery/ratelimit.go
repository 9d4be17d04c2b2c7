package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a delivery for the given subscription may proceed
// within the current rate-limit period. Deliveries that are not allowed are
// deferred by the dispatcher, never dropped.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Close() error
}

type redisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter creates a sliding-window rate limiter backed by Redis,
// shared across engine instances.
func NewRedisLimiter(redisURL string) (Limiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &redisLimiter{client: client}, nil
}

// Allow implements sliding-window rate limiting with an atomic Lua script.
func (r *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	script := `
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])

		redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

		local current = redis.call('ZCARD', key)

		if current < limit then
			redis.call('ZADD', key, now, now)
			redis.call('EXPIRE', key, 120)
			return 1
		else
			return 0
		end
	`

	result, err := r.client.Eval(ctx, script, []string{"delivery:" + key}, now, windowStart, limit).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	return result == 1, nil
}

func (r *redisLimiter) Close() error {
	return r.client.Close()
}

// localLimiter is an in-process sliding-window limiter for single-node
// deployments running without Redis.
type localLimiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewLocalLimiter creates an in-memory sliding-window limiter.
func NewLocalLimiter() Limiter {
	return &localLimiter{entries: make(map[string][]time.Time)}
}

func (l *localLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)

	kept := l.entries[key][:0]
	for _, t := range l.entries[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		l.entries[key] = kept
		return false, nil
	}

	l.entries[key] = append(kept, now)
	return true, nil
}

func (l *localLimiter) Close() error {
	return nil
}
