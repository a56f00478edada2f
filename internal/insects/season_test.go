package insects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugspotter/internal/types"
)

func TestResolveSeason_Northern(t *testing.T) {
	want := map[int]types.Season{
		1: types.SeasonWinter, 2: types.SeasonWinter, 3: types.SeasonSpring,
		4: types.SeasonSpring, 5: types.SeasonSpring, 6: types.SeasonSummer,
		7: types.SeasonSummer, 8: types.SeasonSummer, 9: types.SeasonFall,
		10: types.SeasonFall, 11: types.SeasonFall, 12: types.SeasonWinter,
	}
	for month, season := range want {
		got, err := ResolveSeason(month, true)
		require.NoError(t, err)
		assert.Equal(t, season, got, "month %d", month)
	}
}

func TestResolveSeason_Southern(t *testing.T) {
	want := map[int]types.Season{
		1: types.SeasonSummer, 2: types.SeasonSummer, 3: types.SeasonFall,
		4: types.SeasonFall, 5: types.SeasonFall, 6: types.SeasonWinter,
		7: types.SeasonWinter, 8: types.SeasonWinter, 9: types.SeasonSpring,
		10: types.SeasonSpring, 11: types.SeasonSpring, 12: types.SeasonSummer,
	}
	for month, season := range want {
		got, err := ResolveSeason(month, false)
		require.NoError(t, err)
		assert.Equal(t, season, got, "month %d", month)
	}
}

func TestResolveSeason_April(t *testing.T) {
	north, err := ResolveSeason(4, true)
	require.NoError(t, err)
	south, err := ResolveSeason(4, false)
	require.NoError(t, err)

	assert.Equal(t, types.SeasonSpring, north)
	assert.Equal(t, types.SeasonFall, south)
}

func TestResolveSeason_InvalidMonth(t *testing.T) {
	for _, month := range []int{0, 13, -1, 100} {
		_, err := ResolveSeason(month, true)
		require.Error(t, err, "month %d", month)

		appErr, ok := types.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, types.ErrCodeValidationInvalidMonth, appErr.Code)
		assert.Equal(t, month, appErr.Details["month"])
	}
}

func TestIsNorthernHemisphere(t *testing.T) {
	assert.True(t, IsNorthernHemisphere(0), "equator counts as northern")
	assert.True(t, IsNorthernHemisphere(45.5))
	assert.False(t, IsNorthernHemisphere(-0.0001))
}
