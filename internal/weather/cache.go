package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"bugspotter/internal/observability"
	"bugspotter/internal/types"
)

// DefaultCacheTTL bounds how stale a served reading can be.
const DefaultCacheTTL = 10 * time.Minute

// sharedFetchTimeout bounds a collapsed fetch, which no caller can cancel.
const sharedFetchTimeout = 15 * time.Second

// RedisKV is the subset of *redis.Client the cache needs.
type RedisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedProvider is a read-through Redis cache in front of another Provider.
// Redis trouble is logged and bypassed; it never fails a lookup. Only wrap
// providers whose readings are real: see NewProvider.
type CachedProvider struct {
	inner   Provider
	rdb     RedisKV
	ttl     time.Duration
	group   singleflight.Group
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedProvider wraps inner. A non-positive ttl uses DefaultCacheTTL.
func NewCachedProvider(inner Provider, rdb RedisKV, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{inner: inner, rdb: rdb, ttl: ttl, metrics: metrics, logger: logger}
}

// CacheKey rounds to two decimals (about 1km), so nearby lookups share an entry.
func CacheKey(lat, lon float64) string {
	return fmt.Sprintf("weather:%.2f:%.2f", lat, lon)
}

func (c *CachedProvider) Fetch(ctx context.Context, lat, lon float64) (types.WeatherReading, error) {
	key := CacheKey(lat, lon)

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var reading types.WeatherReading
		if jsonErr := json.Unmarshal([]byte(raw), &reading); jsonErr == nil {
			c.count("hit")
			return reading, nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt weather cache entry", "key", key)
		c.count("miss")
	case errors.Is(err, redis.Nil):
		c.count("miss")
	default:
		c.logger.WarnContext(ctx, "weather cache read failed", "key", key, "error", err)
		c.count("error")
	}

	// The shared fetch outlives any one caller; each caller still honors its
	// own ctx while waiting.
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		reading, fetchErr := c.inner.Fetch(fetchCtx, lat, lon)
		if fetchErr != nil {
			return types.WeatherReading{}, fetchErr
		}
		c.store(fetchCtx, key, reading)
		return reading, nil
	})
	select {
	case <-ctx.Done():
		return types.WeatherReading{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return types.WeatherReading{}, res.Err
		}
		return res.Val.(types.WeatherReading), nil
	}
}

func (c *CachedProvider) store(ctx context.Context, key string, reading types.WeatherReading) {
	data, err := json.Marshal(reading)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "weather cache write failed", "key", key, "error", err)
	}
}

func (c *CachedProvider) count(result string) {
	if c.metrics != nil {
		c.metrics.WeatherCache.WithLabelValues(result).Inc()
	}
}
