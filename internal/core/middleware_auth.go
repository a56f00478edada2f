package core

import (
	"log/slog"
	"net/http"

	"bugspotter/internal/types"
)

// SessionCookieName carries the opaque session id.
const SessionCookieName = "session_id"

// AuthMiddleware resolves the session cookie to an Actor. Authentication is
// optional at this layer: requests without a cookie, or with a stale one,
// continue anonymously and RequireAuth rejects them where a user is needed.
//
// For a valid session the Actor and the session's CSRF token are injected
// into the context. A stale cookie is cleared on the response.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, csrf, err := s.Authenticator.ResolveSession(r.Context(), cookie.Value)
		if err != nil {
			appErr, ok := types.AsAppError(err)
			if ok && appErr.HTTPStatus() == http.StatusUnauthorized {
				s.Logger.DebugContext(r.Context(), "ignoring stale session cookie",
					slog.String("error_code", string(appErr.Code)),
				)
				ClearSessionCookie(w, s.secureCookies())
				next.ServeHTTP(w, r)
				return
			}

			s.Logger.ErrorContext(r.Context(), "session lookup failed",
				slog.String("path", r.URL.Path),
				slog.Any("error", err),
			)
			Error(w, r, err)
			return
		}
		if actor == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := types.WithActor(r.Context(), *actor)
		ctx = types.WithSessionCSRFToken(ctx, csrf)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests with 401 "Not authenticated".
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := types.GetActor(r.Context()); !ok {
			Error(w, r, types.NewAppError(types.ErrCodeAuthNotAuthenticated, "Not authenticated", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetSessionCookie writes the session cookie. Secure is off only for local
// development over plain HTTP.
func SetSessionCookie(w http.ResponseWriter, session *types.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) secureCookies() bool {
	return s.Config == nil || !s.Config.IsLocal()
}
