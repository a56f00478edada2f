package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bugspotter/internal/types"
)

const openWeatherAPIBase = "https://api.openweathermap.org"

// OpenWeatherIconURL renders the 2x icon URL for an OpenWeather icon code.
func OpenWeatherIconURL(icon string) string {
	return fmt.Sprintf("https://openweathermap.org/img/wn/%s@2x.png", icon)
}

// OpenWeatherConfig configures the current-weather client.
type OpenWeatherConfig struct {
	APIKey  string
	BaseURL string // defaults to openWeatherAPIBase
	RPS     float64
	Burst   int
	Logger  *slog.Logger
}

// owmCurrentResponse is the subset of /data/2.5/weather we read.
type owmCurrentResponse struct {
	Name string `json:"name"`
	Dt   int64  `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Main string `json:"main"`
		Icon string `json:"icon"`
	} `json:"weather"`
}

// OpenWeatherClient fetches current conditions from OpenWeather in metric units.
type OpenWeatherClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewOpenWeatherClient creates a client with its own breaker and limiter.
func NewOpenWeatherClient(httpClient *http.Client, cfg OpenWeatherConfig) *OpenWeatherClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"openweather",
		RetryPolicy{MaxRetries: 1, MinWait: 250 * time.Millisecond, MaxWait: 2 * time.Second},
		"BugSpotter/1.0",
		WithRateLimit(cfg.RPS, cfg.Burst),
		WithLogger(logger),
	)
	return NewOpenWeatherClientWithBase(base, cfg)
}

// NewOpenWeatherClientWithBase creates a client around a pre-built BaseClient.
func NewOpenWeatherClientWithBase(base *BaseClient, cfg OpenWeatherConfig) *OpenWeatherClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openWeatherAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenWeatherClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Fetch returns the current weather at (lat, lon).
func (c *OpenWeatherClient) Fetch(ctx context.Context, lat, lon float64) (types.WeatherReading, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("units", "metric")
	params.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/2.5/weather?"+params.Encode(), nil)
	if err != nil {
		return types.WeatherReading{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build weather request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return types.WeatherReading{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.WeatherReading{}, types.NewAppError(types.ErrCodeUpstreamWeather, "failed to read weather response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return types.WeatherReading{}, types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamWeather,
			fmt.Sprintf("weather API returned %d", resp.StatusCode),
			nil,
			map[string]any{"status": resp.StatusCode, "body": truncate(string(body), 256)},
		)
	}

	var payload owmCurrentResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return types.WeatherReading{}, types.NewAppError(types.ErrCodeUpstreamInvalidResponse, "failed to decode weather response", err)
	}
	if len(payload.Weather) == 0 {
		return types.WeatherReading{}, types.NewAppError(types.ErrCodeUpstreamInvalidResponse, "weather response has no conditions", nil)
	}

	return types.WeatherReading{
		Location:    payload.Name,
		Temperature: payload.Main.Temp,
		Condition:   payload.Weather[0].Main,
		Humidity:    payload.Main.Humidity,
		WindSpeed:   payload.Wind.Speed,
		IconURL:     OpenWeatherIconURL(payload.Weather[0].Icon),
		Timestamp:   payload.Dt,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
