package insects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugspotter/internal/types"
)

func reading(temp float64, condition string, humidity, wind float64) types.WeatherReading {
	return types.WeatherReading{
		Location:    "Testville",
		Temperature: temp,
		Condition:   condition,
		Humidity:    humidity,
		WindSpeed:   wind,
	}
}

func predict(t *testing.T, r types.WeatherReading, lat float64, month int) types.InsectActivityPrediction {
	t.Helper()
	p, err := PredictActivity(r, lat, month)
	require.NoError(t, err)
	return p
}

func TestPredictActivity_ColdWinterDay(t *testing.T) {
	p := predict(t, reading(5, "Clouds", 40, 2), 45, 1)

	assert.Equal(t, types.ActivityLow, p.Overall)
	assert.Equal(t, types.ActivityModerate, p.Flying)
	assert.Equal(t, types.SeasonWinter, p.Season)
	assert.Equal(t, types.ActivityLow, p.Seasonal.Activity)
	assert.Equal(t, []string{"Indoor Pests", "Overwintering Insects", "Some Spiders"}, p.Seasonal.Insects)
	assert.Equal(t, []string{RecLimitedActivity, RecWinter}, p.Recommendations)
}

func TestPredictActivity_HotHumidClearSummer(t *testing.T) {
	p := predict(t, reading(32, "Clear", 75, 1), 10, 7)

	assert.Equal(t, types.ActivityHigh, p.Overall)
	assert.Equal(t, types.ActivityModerate, p.Flying, "hot readings skip the warm-not-hot flying rule")
	assert.Equal(t, types.SeasonSummer, p.Season)
	assert.Equal(t, types.ActivityHigh, p.Seasonal.Activity)
	assert.Equal(t, []string{"Mosquitoes", "Flies", "Wasps", "Cicadas", "Dragonflies", "Grasshoppers"}, p.Seasonal.Insects)
	assert.Equal(t, []string{RecGreatConditions, RecSummer, RecMosquito, RecClearSkies}, p.Recommendations)
}

func TestPredictActivity_HotHumidBeatsWindy(t *testing.T) {
	p := predict(t, reading(30, "Clear", 80, 10), 40, 7)

	assert.Equal(t, types.ActivityHigh, p.Overall)
	assert.Equal(t, types.ActivityLow, p.Flying)
}

func TestPredictActivity_Boundaries(t *testing.T) {
	t.Run("15C is not warm", func(t *testing.T) {
		p := predict(t, reading(15, "Clear", 50, 1), 40, 4)
		// Not cold, not warm, not rainy or windy: default.
		assert.Equal(t, types.ActivityModerate, p.Overall)
		assert.Equal(t, types.ActivityModerate, p.Flying)
		assert.Equal(t, types.ActivityModerate, p.Seasonal.Activity)
		assert.NotContains(t, p.Recommendations, RecClearSkies)
	})

	t.Run("just above 15C is warm", func(t *testing.T) {
		p := predict(t, reading(15.1, "Clear", 50, 1), 40, 4)
		assert.Equal(t, types.ActivityHigh, p.Overall)
		assert.Equal(t, types.ActivityHigh, p.Flying)
		assert.Contains(t, p.Recommendations, RecClearSkies)
	})

	t.Run("10C does not trigger the cold rule", func(t *testing.T) {
		p := predict(t, reading(10, "Clouds", 50, 1), 40, 4)
		assert.Equal(t, types.ActivityModerate, p.Overall)
		assert.NotContains(t, p.Recommendations, RecLimitedActivity)
	})

	t.Run("28C is not hot", func(t *testing.T) {
		p := predict(t, reading(28, "Clouds", 90, 1), 40, 7)
		assert.Equal(t, types.ActivityHigh, p.Flying, "warm and not hot")
		assert.Equal(t, types.ActivityModerate, p.Seasonal.Activity)
		assert.NotContains(t, p.Recommendations, RecMosquito)
	})

	t.Run("wind of exactly 5 is calm", func(t *testing.T) {
		p := predict(t, reading(20, "Clouds", 50, 5), 40, 4)
		assert.Equal(t, types.ActivityHigh, p.Overall)
	})

	t.Run("humidity of exactly 70 is not humid", func(t *testing.T) {
		p := predict(t, reading(30, "Clouds", 70, 8), 40, 7)
		assert.Equal(t, types.ActivityLow, p.Overall, "windy falls through to the low rule")
	})
}

func TestPredictActivity_ConditionMatching(t *testing.T) {
	t.Run("rain substring is case-insensitive", func(t *testing.T) {
		p := predict(t, reading(20, "Light RAIN", 50, 1), 40, 4)
		assert.Equal(t, types.ActivityLow, p.Overall)
		assert.Equal(t, types.ActivityLow, p.Flying)
		assert.Equal(t, types.ActivityModerate, p.Seasonal.Activity, "spring needs dry weather for high")
		assert.Equal(t, []string{RecLimitedActivity, RecSpring, RecAfterRain}, p.Recommendations)
	})

	t.Run("thunderstorm is not rain", func(t *testing.T) {
		p := predict(t, reading(20, "Thunderstorm", 50, 1), 40, 4)
		assert.Equal(t, types.ActivityHigh, p.Overall)
		assert.NotContains(t, p.Recommendations, RecAfterRain)
	})

	t.Run("clear needs warmth", func(t *testing.T) {
		p := predict(t, reading(12, "clear sky", 50, 1), 40, 10)
		assert.NotContains(t, p.Recommendations, RecClearSkies)
	})
}

func TestPredictActivity_Fall(t *testing.T) {
	warm := predict(t, reading(18, "Clouds", 60, 2), 50, 10)
	assert.Equal(t, types.ActivityModerate, warm.Seasonal.Activity)
	assert.Equal(t, []string{RecGreatConditions, RecFall}, warm.Recommendations)

	cool := predict(t, reading(12, "Clouds", 60, 2), 50, 10)
	assert.Equal(t, types.ActivityLow, cool.Seasonal.Activity)
	assert.Equal(t, []string{RecFall}, cool.Recommendations)
}

func TestPredictActivity_SouthernHemisphere(t *testing.T) {
	p := predict(t, reading(25, "Clear", 50, 1), -33.9, 1)

	assert.Equal(t, types.SeasonSummer, p.Season)
	assert.Equal(t, types.ActivityModerate, p.Seasonal.Activity)
	assert.Equal(t, []string{RecGreatConditions, RecSummer, RecClearSkies}, p.Recommendations)
}

func TestPredictActivity_AlwaysRecommends(t *testing.T) {
	for month := 1; month <= 12; month++ {
		p := predict(t, reading(12, "Mist", 50, 1), 30, month)
		assert.NotEmpty(t, p.Recommendations, "month %d", month)
	}
}

func TestPredictActivity_Idempotent(t *testing.T) {
	r := reading(22, "Rain", 85, 7)
	first := predict(t, r, -12, 3)
	second := predict(t, r, -12, 3)
	assert.Equal(t, first, second)
}

func TestPredictActivity_SpeciesListIsolated(t *testing.T) {
	p := predict(t, reading(5, "Clouds", 40, 2), 45, 1)
	p.Seasonal.Insects[0] = "Mutated"

	again := predict(t, reading(5, "Clouds", 40, 2), 45, 1)
	assert.Equal(t, "Indoor Pests", again.Seasonal.Insects[0])
}

func TestPredictActivity_InvalidMonth(t *testing.T) {
	_, err := PredictActivity(reading(20, "Clear", 50, 1), 10, 0)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidMonth))
}
