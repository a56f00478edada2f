// Package insects implements the weather to insect-activity heuristics:
// hemisphere-relative season resolution and the rule tables that map a
// weather reading to activity levels and field recommendations.
//
// Everything here is pure. The calendar month is always passed in by the
// caller so results are reproducible.
package insects

import (
	"fmt"

	"bugspotter/internal/types"
)

// northernSeasons is indexed by month-1.
var northernSeasons = [12]types.Season{
	types.SeasonWinter, types.SeasonWinter, // Jan, Feb
	types.SeasonSpring, types.SeasonSpring, types.SeasonSpring,
	types.SeasonSummer, types.SeasonSummer, types.SeasonSummer,
	types.SeasonFall, types.SeasonFall, types.SeasonFall,
	types.SeasonWinter, // Dec
}

// opposite rotates a season by two, which is the southern-hemisphere view.
var opposite = map[types.Season]types.Season{
	types.SeasonSpring: types.SeasonFall,
	types.SeasonSummer: types.SeasonWinter,
	types.SeasonFall:   types.SeasonSpring,
	types.SeasonWinter: types.SeasonSummer,
}

// IsNorthernHemisphere reports whether lat is north of or on the equator.
func IsNorthernHemisphere(lat float64) bool {
	return lat >= 0
}

// ResolveSeason maps a calendar month (1-12) to a season for the given
// hemisphere. Months outside 1-12 are rejected with a validation error.
func ResolveSeason(month int, northern bool) (types.Season, error) {
	if month < 1 || month > 12 {
		return "", types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidMonth,
			fmt.Sprintf("month must be between 1 and 12, got %d", month),
			nil,
			map[string]any{"month": month},
		)
	}
	season := northernSeasons[month-1]
	if northern {
		return season, nil
	}
	return opposite[season], nil
}
