package insects

import (
	"strings"

	"bugspotter/internal/types"
)

// Thresholds. All comparisons are strict.
const (
	warmAboveC   = 15.0
	hotAboveC    = 28.0
	coldBelowC   = 10.0
	windyAboveMS = 5.0
	humidAbovePc = 70.0
)

// Recommendation lines, appended in rule order.
const (
	RecGreatConditions = "Great conditions for insect spotting! Bring your camera and observation tools."
	RecLimitedActivity = "Limited insect activity expected. Focus on sheltered areas where insects might take refuge."
	RecSpring          = "Look for pollinators around flowering plants and gardens."
	RecSummer          = "Check near water sources for diverse insect activity."
	RecMosquito        = "Higher mosquito activity likely - consider insect repellent."
	RecFall            = "Focus on leaf litter and bark for insects preparing for winter."
	RecWinter          = "Look under logs, rocks, and in protected areas for overwintering insects."
	RecAfterRain       = "After rain stops, check wet areas for increased ground insect activity."
	RecClearSkies      = "Clear conditions are perfect for observing flying insects like butterflies and dragonflies."
)

var seasonalSpecies = map[types.Season][]string{
	types.SeasonSpring: {"Butterflies", "Bees", "Ladybugs", "Aphids", "Beetles"},
	types.SeasonSummer: {"Mosquitoes", "Flies", "Wasps", "Cicadas", "Dragonflies", "Grasshoppers"},
	types.SeasonFall:   {"Spiders", "Stink Bugs", "Beetles", "Moths", "Crane Flies"},
	types.SeasonWinter: {"Indoor Pests", "Overwintering Insects", "Some Spiders"},
}

// SpeciesFor returns a copy of the species groups listed for a season.
func SpeciesFor(season types.Season) []string {
	return append([]string(nil), seasonalSpecies[season]...)
}

// conditions holds the predicates derived from one reading. Condition
// matching is a case-insensitive substring check against the upstream label
// ("Rain", "light rain", "Clear"), so unfamiliar labels simply match nothing.
type conditions struct {
	warm, hot, cold, rainy, windy, humid, clear bool
}

func derive(r types.WeatherReading) conditions {
	label := strings.ToLower(r.Condition)
	return conditions{
		warm:  r.Temperature > warmAboveC,
		hot:   r.Temperature > hotAboveC,
		cold:  r.Temperature < coldBelowC,
		rainy: strings.Contains(label, "rain"),
		windy: r.WindSpeed > windyAboveMS,
		humid: r.Humidity > humidAbovePc,
		clear: strings.Contains(label, "clear"),
	}
}

// overall is first-match-wins. A hot, humid and windy reading is high:
// the hot+humid rule is checked before the rainy-or-windy rule.
func (c conditions) overall() types.ActivityLevel {
	switch {
	case c.cold:
		return types.ActivityLow
	case c.hot && c.humid:
		return types.ActivityHigh
	case c.warm && !c.windy && !c.rainy:
		return types.ActivityHigh
	case c.rainy || c.windy:
		return types.ActivityLow
	default:
		return types.ActivityModerate
	}
}

func (c conditions) flying() types.ActivityLevel {
	switch {
	case c.windy || c.rainy:
		return types.ActivityLow
	case c.warm && !c.hot:
		return types.ActivityHigh
	default:
		return types.ActivityModerate
	}
}

func (c conditions) seasonal(season types.Season) types.ActivityLevel {
	switch season {
	case types.SeasonSpring:
		if c.warm && !c.rainy {
			return types.ActivityHigh
		}
		return types.ActivityModerate
	case types.SeasonSummer:
		if c.hot && c.humid {
			return types.ActivityHigh
		}
		return types.ActivityModerate
	case types.SeasonFall:
		if c.warm {
			return types.ActivityModerate
		}
		return types.ActivityLow
	default:
		return types.ActivityLow
	}
}

func (c conditions) recommendations(overall types.ActivityLevel, season types.Season) []string {
	recs := make([]string, 0, 4)

	switch overall {
	case types.ActivityHigh:
		recs = append(recs, RecGreatConditions)
	case types.ActivityLow:
		recs = append(recs, RecLimitedActivity)
	}

	switch season {
	case types.SeasonSpring:
		recs = append(recs, RecSpring)
	case types.SeasonSummer:
		recs = append(recs, RecSummer)
		if c.hot && c.humid {
			recs = append(recs, RecMosquito)
		}
	case types.SeasonFall:
		recs = append(recs, RecFall)
	case types.SeasonWinter:
		recs = append(recs, RecWinter)
	}

	if c.rainy {
		recs = append(recs, RecAfterRain)
	}
	if c.clear && c.warm {
		recs = append(recs, RecClearSkies)
	}
	return recs
}

// PredictActivity evaluates a weather reading observed at latitude during
// the given calendar month. The reading is trusted as-is; range checks on its
// fields belong to whoever produced it. The only error is an invalid month.
func PredictActivity(reading types.WeatherReading, latitude float64, month int) (types.InsectActivityPrediction, error) {
	season, err := ResolveSeason(month, IsNorthernHemisphere(latitude))
	if err != nil {
		return types.InsectActivityPrediction{}, err
	}

	c := derive(reading)
	overall := c.overall()

	return types.InsectActivityPrediction{
		Overall: overall,
		Flying:  c.flying(),
		Seasonal: types.SeasonalActivity{
			Activity: c.seasonal(season),
			Insects:  SpeciesFor(season),
		},
		Recommendations: c.recommendations(overall, season),
		Season:          season,
	}, nil
}
