package weather

import (
	"context"
	"log/slog"
	"time"

	"bugspotter/internal/observability"
	"bugspotter/internal/types"
)

const (
	SourceLive = "live"
	SourceMock = "mock"
)

// NewProvider builds the lookup chain used by the API: the Redis cache sits
// over the live provider only, and the fallback sits outside it, so a mock
// reading served during an outage is never cached. live may be nil.
func NewProvider(live Provider, mock *MockProvider, rdb RedisKV, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *FallbackProvider {
	if live != nil && rdb != nil {
		live = NewCachedProvider(live, rdb, ttl, metrics, logger)
	}
	return NewFallbackProvider(live, mock, metrics, logger)
}

// FallbackProvider serves live readings and falls back to the mock reading on
// any live failure. With a nil live provider it always serves the mock.
type FallbackProvider struct {
	live    Provider
	mock    *MockProvider
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewFallbackProvider creates a FallbackProvider. live may be nil, which is
// the configuration used when no weather API key is set.
func NewFallbackProvider(live Provider, mock *MockProvider, metrics *observability.Metrics, logger *slog.Logger) *FallbackProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackProvider{live: live, mock: mock, metrics: metrics, logger: logger}
}

// Fetch never returns an error: the mock is the floor.
func (p *FallbackProvider) Fetch(ctx context.Context, lat, lon float64) (types.WeatherReading, error) {
	if p.live != nil {
		reading, err := p.live.Fetch(ctx, lat, lon)
		if err == nil {
			p.count(SourceLive)
			return reading, nil
		}
		p.logger.WarnContext(ctx, "live weather unavailable, using mock reading",
			"lat", lat, "lon", lon, "error", err)
	}

	p.count(SourceMock)
	return p.mock.Fetch(ctx, lat, lon)
}

func (p *FallbackProvider) count(source string) {
	if p.metrics != nil {
		p.metrics.WeatherSource.WithLabelValues(source).Inc()
	}
}
