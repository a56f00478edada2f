package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// RedisCounter is the subset of *redis.Client the rate limit store needs.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd
}

// RedisRateLimitStore implements RateLimitStore with fixed windows: one
// INCR'd key per caller per window, expiring when the window closes.
type RedisRateLimitStore struct {
	rdb   RedisCounter
	clock clockwork.Clock
}

// NewRedisRateLimitStore creates a store. A nil clock uses the real clock.
func NewRedisRateLimitStore(rdb RedisCounter, clock clockwork.Clock) *RedisRateLimitStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisRateLimitStore{rdb: rdb, clock: clock}
}

// IncrementAndCheck implements RateLimitStore.
func (s *RedisRateLimitStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	now := s.clock.Now()
	start := now.Truncate(window)
	resetAt := start.Add(window)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, start.Unix())

	n, err := s.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("incrementing %s: %w", redisKey, err)
	}
	if n == 1 {
		if err := s.rdb.ExpireAt(ctx, redisKey, resetAt).Err(); err != nil {
			return RateLimitResult{}, fmt.Errorf("setting expiry on %s: %w", redisKey, err)
		}
	}

	return RateLimitResult{
		Allowed:   n <= int64(limit),
		Remaining: max(limit-int(n), 0),
		ResetAt:   resetAt,
	}, nil
}
