package handlers

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bugspotter/internal/core"
	"bugspotter/internal/types"
)

// ActivityService predicts insect activity from the weather at a location.
// *weather.ActivityService implements it.
type ActivityService interface {
	Lookup(ctx context.Context, lat, lon float64) (types.WeatherActivity, error)
}

// ActivityHandler serves GET /weather-insect-activity.
type ActivityHandler struct {
	service ActivityService
	logger  *slog.Logger
}

func NewActivityHandler(svc ActivityService, l *slog.Logger) *ActivityHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ActivityHandler{service: svc, logger: l}
}

func (h *ActivityHandler) RegisterRoutes(r chi.Router) {
	r.Get("/weather-insect-activity", h.HandleGet)
}

// HandleGet reads lat and lon from the query string. Missing or unparsable
// values and out-of-range values get distinct messages.
func (h *ActivityHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := parseCoordinate(q.Get("lat"))
	lon, lonErr := parseCoordinate(q.Get("lon"))
	if latErr != nil || lonErr != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidCoords,
			"Invalid coordinates. Please provide valid latitude and longitude.", nil))
		return
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidCoords,
			"Coordinates out of range. Latitude must be between -90 and 90, longitude between -180 and 180.",
			nil, map[string]any{"lat": lat, "lon": lon}))
		return
	}

	result, err := h.service.Lookup(r.Context(), lat, lon)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to fetch weather and insect activity predictions.")
		return
	}
	core.Success(w, r, http.StatusOK, map[string]any{"data": result})
}

func parseCoordinate(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}
