// Package weather supplies current conditions for a coordinate and turns them
// into insect activity predictions.
//
// Providers are layered: CachedProvider -> FallbackProvider -> (live client,
// MockProvider). Only ActivityService validates coordinates; providers assume
// they are in range.
package weather

import (
	"context"
	"math"

	"github.com/jonboulle/clockwork"

	"bugspotter/internal/external"
	"bugspotter/internal/types"
)

// Provider fetches the current weather for a coordinate.
type Provider = external.WeatherSource

var (
	mockCities     = [...]string{"Springfield", "Riverside", "Oakville", "Meadowbrook", "Cedar Creek"}
	mockConditions = [...]string{"Clear", "Clouds", "Rain", "Mist", "Thunderstorm"}
	mockIcons      = [...]string{"01d", "03d", "10d", "50d", "11d"}
)

// MockProvider derives a plausible, deterministic reading from the
// coordinates alone. The same (lat, lon) always yields the same values apart
// from the timestamp.
type MockProvider struct {
	clock clockwork.Clock
}

// NewMockProvider creates a MockProvider. A nil clock uses real time.
func NewMockProvider(clock clockwork.Clock) *MockProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MockProvider{clock: clock}
}

func (m *MockProvider) Fetch(_ context.Context, lat, lon float64) (types.WeatherReading, error) {
	return MockReading(lat, lon, m.clock.Now().Unix()), nil
}

// MockReading computes the mock reading for (lat, lon) observed at timestamp.
func MockReading(lat, lon float64, timestamp int64) types.WeatherReading {
	cityIdx := mockIndex(lat*lon, len(mockCities))
	condIdx := mockIndex(lat+lon, len(mockConditions))

	wind := math.Floor(3 + math.Cos(lat+lon)*6)
	if wind < 0 {
		wind = 0
	}

	return types.WeatherReading{
		Location:    mockCities[cityIdx],
		Temperature: math.Round(15 + (90-math.Abs(lat))/3),
		Condition:   mockConditions[condIdx],
		Humidity:    math.Floor(50 + math.Sin(lat*lon)*30),
		WindSpeed:   wind,
		IconURL:     external.OpenWeatherIconURL(mockIcons[condIdx]),
		Timestamp:   timestamp,
	}
}

// mockIndex maps v onto [0, n). floor of a negative remainder can reach -n,
// so the absolute value is reduced once more.
func mockIndex(v float64, n int) int {
	idx := int(math.Abs(math.Floor(math.Mod(v, float64(n)))))
	return idx % n
}
