package weather

import (
	"context"
	"log/slog"
	"math"

	"github.com/jonboulle/clockwork"

	"bugspotter/internal/insects"
	"bugspotter/internal/observability"
	"bugspotter/internal/types"
)

// ActivityService answers "what are insects likely doing here right now".
type ActivityService struct {
	provider Provider
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewActivityService creates an ActivityService. A nil clock uses real time.
func NewActivityService(provider Provider, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *ActivityService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityService{provider: provider, clock: clock, metrics: metrics, logger: logger}
}

// ValidateCoordinates checks latitude is within [-90, 90] and longitude within
// [-180, 180]. NaN and infinities are rejected.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidLat,
			"latitude must be between -90 and 90", nil, map[string]any{"lat": lat})
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidLon,
			"longitude must be between -180 and 180", nil, map[string]any{"lon": lon})
	}
	return nil
}

// Lookup fetches the reading for (lat, lon) and predicts activity for the
// current UTC month.
func (s *ActivityService) Lookup(ctx context.Context, lat, lon float64) (types.WeatherActivity, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return types.WeatherActivity{}, err
	}

	reading, err := s.provider.Fetch(ctx, lat, lon)
	if err != nil {
		return types.WeatherActivity{}, err
	}

	month := int(s.clock.Now().UTC().Month())
	prediction, err := insects.PredictActivity(reading, lat, month)
	if err != nil {
		return types.WeatherActivity{}, err
	}

	relation := SeasonalRelation(prediction)
	if s.metrics != nil {
		s.metrics.ActivityPredictions.WithLabelValues(string(prediction.Overall)).Inc()
		s.metrics.ActivityVsSeason.WithLabelValues(relation).Inc()
	}
	s.logger.DebugContext(ctx, "activity predicted",
		"location", reading.Location,
		"season", prediction.Season,
		"overall", prediction.Overall,
		"vs_season", relation,
	)

	return types.WeatherActivity{Weather: reading, InsectActivity: prediction}, nil
}

// SeasonalRelation reports whether the weather pushed the overall level
// "above", "below" or left it "at" the season's baseline.
func SeasonalRelation(p types.InsectActivityPrediction) string {
	switch overall, base := p.Overall.Rank(), p.Seasonal.Activity.Rank(); {
	case overall > base:
		return "above"
	case overall < base:
		return "below"
	default:
		return "at"
	}
}
