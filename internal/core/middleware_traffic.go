package core

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bugspotter/internal/types"
)

// rateLimitWindow is the fixed window for Security.RateLimitPerMinute.
const rateLimitWindow = time.Minute

// RateLimit enforces a per-caller request budget on /api routes. Signed-in
// callers are keyed by user id, anonymous ones by client IP.
//
// Every checked response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; a 429 also carries Retry-After. Store failures fail open.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := s.rateLimitPerMinute()
		if s.RateLimitStore == nil || limit <= 0 || !isAPIPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := rateLimitKey(r)
		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), key, limit, rateLimitWindow)
		if err != nil {
			s.Logger.ErrorContext(r.Context(), "rate limit store error",
				slog.String("key", key),
				slog.Any("error", err),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, limit, result)

		if !result.Allowed {
			s.Logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("key", key),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			retryAfter := max(int(time.Until(result.ResetAt).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			Error(w, r, types.NewAppError(types.ErrCodeRateLimit,
				"Too many requests. Please slow down.", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitPerMinute() int {
	if s.Config == nil {
		return 0
	}
	return s.Config.Security.RateLimitPerMinute
}

func rateLimitKey(r *http.Request) string {
	if actor, ok := types.GetActor(r.Context()); ok {
		return "user:" + strconv.FormatInt(actor.UserID, 10)
	}
	ip := types.GetClientIP(r.Context())
	if ip == "" {
		ip = extractClientIP(r)
	}
	return "ip:" + ip
}

// isAPIPath excludes /health, /metrics and the signed Stripe webhook.
func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/") && path != "/api/stripe/webhook"
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
