package types

// WeatherReading is a normalized weather snapshot for one coordinate,
// regardless of whether a live API or the offline generator produced it.
// Temperature is Celsius, humidity is a percentage and wind is m/s.
type WeatherReading struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	Condition   string  `json:"condition"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	IconURL     string  `json:"iconUrl"`
	Timestamp   int64   `json:"timestamp"`
}

// ActivityLevel is a qualitative bucket of expected insect presence.
type ActivityLevel string

const (
	ActivityLow      ActivityLevel = "low"
	ActivityModerate ActivityLevel = "moderate"
	ActivityHigh     ActivityLevel = "high"
)

// Rank orders levels low < moderate < high. Unknown levels rank 0.
func (a ActivityLevel) Rank() int {
	switch a {
	case ActivityLow:
		return 1
	case ActivityModerate:
		return 2
	case ActivityHigh:
		return 3
	default:
		return 0
	}
}

// Season is a hemisphere-relative calendar season.
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
	SeasonWinter Season = "winter"
)

// SeasonalActivity is the per-season activity level and the species groups
// typically seen in that season.
type SeasonalActivity struct {
	Activity ActivityLevel `json:"activity"`
	Insects  []string      `json:"insects"`
}

// InsectActivityPrediction is the composite output of the activity predictor.
// Season is not part of the public JSON record; it is kept for callers that
// need to label metrics or logs.
type InsectActivityPrediction struct {
	Overall         ActivityLevel    `json:"overall"`
	Flying          ActivityLevel    `json:"flying"`
	Seasonal        SeasonalActivity `json:"seasonal"`
	Recommendations []string         `json:"recommendations"`
	Season          Season           `json:"-"`
}

// WeatherActivity is the payload of GET /api/weather-insect-activity.
type WeatherActivity struct {
	Weather        WeatherReading           `json:"weather"`
	InsectActivity InsectActivityPrediction `json:"insectActivity"`
}
