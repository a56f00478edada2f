package core

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"bugspotter/internal/types"
)

// csrfExemptPaths accept unsafe methods without a CSRF token: the login
// endpoints mint the token, and Stripe signs its webhook instead.
var csrfExemptPaths = map[string]bool{
	"/api/login":          true,
	"/api/register":       true,
	"/api/stripe/webhook": true,
}

// IPSecurityMiddleware resolves the client IP into the context and rejects
// IPs locked out by repeated login failures, before any session lookup.
func (s *Server) IPSecurityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractClientIP(r)
		ctx := types.WithClientIP(r.Context(), ip)
		r = r.WithContext(ctx)

		if s.IPBlocker != nil && s.IPBlocker.IsIPBlocked(ctx, ip) {
			s.Logger.WarnContext(ctx, "blocked request from IP",
				slog.String("ip", ip),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			Error(w, r, types.NewAppError(types.ErrCodeAuthLocked,
				"Too many failed login attempts. Please try again later.", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CSRFMiddleware requires session-authenticated unsafe requests to echo the
// session's CSRF token in X-CSRF-Token. Anonymous requests carry no session
// and are left to RequireAuth.
func (s *Server) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) || csrfExemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		actor, ok := types.GetActor(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get("X-CSRF-Token")
		sessionToken, hasToken := types.GetSessionCSRFToken(r.Context())

		if !hasToken || headerToken == "" {
			s.Logger.WarnContext(r.Context(), "CSRF token missing",
				slog.Int64("user_id", actor.UserID),
				slog.String("path", r.URL.Path),
			)
			Error(w, r, types.NewAppError(types.ErrCodeAuthCSRFInvalid, "CSRF token is required for this request", nil))
			return
		}

		if subtle.ConstantTimeCompare([]byte(headerToken), []byte(sessionToken)) != 1 {
			s.Logger.WarnContext(r.Context(), "CSRF token mismatch",
				slog.Int64("user_id", actor.UserID),
				slog.String("path", r.URL.Path),
			)
			Error(w, r, types.NewAppError(types.ErrCodeAuthCSRFInvalid, "CSRF token is invalid", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractClientIP prefers the first X-Forwarded-For entry (the original
// client behind API Gateway or a load balancer) and falls back to RemoteAddr
// without its port.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
