package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugspotter/internal/types"
)

func newTestOpenWeather(serverURL string) *OpenWeatherClient {
	base := NewBaseClient(&http.Client{Timeout: time.Second}, "owm-test",
		RetryPolicy{MaxRetries: 0}, "BugSpotter-Test/1.0", WithSleepFunc(noopSleep))
	return NewOpenWeatherClientWithBase(base, OpenWeatherConfig{APIKey: "owm-key", BaseURL: serverURL})
}

func TestOpenWeather_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/weather", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "51.5", q.Get("lat"))
		assert.Equal(t, "-0.12", q.Get("lon"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "owm-key", q.Get("appid"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"name": "London",
			"dt": 1717243200,
			"main": {"temp": 18.4, "humidity": 72},
			"wind": {"speed": 4.1},
			"weather": [{"main": "Rain", "icon": "10d"}]
		}`))
	}))
	defer server.Close()

	got, err := newTestOpenWeather(server.URL).Fetch(context.Background(), 51.5, -0.12)
	require.NoError(t, err)

	assert.Equal(t, types.WeatherReading{
		Location:    "London",
		Temperature: 18.4,
		Condition:   "Rain",
		Humidity:    72,
		WindSpeed:   4.1,
		IconURL:     "https://openweathermap.org/img/wn/10d@2x.png",
		Timestamp:   1717243200,
	}, got)
}

func TestOpenWeather_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode types.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, `{"cod":401,"message":"Invalid API key"}`, types.ErrCodeUpstreamWeather},
		{"malformed json", http.StatusOK, `{"name":`, types.ErrCodeUpstreamInvalidResponse},
		{"no conditions", http.StatusOK, `{"name":"X","weather":[]}`, types.ErrCodeUpstreamInvalidResponse},
		{"server error", http.StatusInternalServerError, ``, types.ErrCodeUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestOpenWeather(server.URL).Fetch(context.Background(), 1, 2)
			require.Error(t, err)
			assert.True(t, types.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}
