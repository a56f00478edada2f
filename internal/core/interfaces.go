package core

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"

	"bugspotter/internal/types"
)

// Authenticator resolves the session_id cookie to an Actor.
type Authenticator interface {
	// ResolveSession returns the Actor and the session's CSRF token.
	// Unknown ids return auth_session_invalid, lapsed ones auth_session_expired.
	ResolveSession(ctx context.Context, sessionID string) (*types.Actor, string, error)
}

// IPBlocker reports whether a client IP is locked out after repeated
// failed logins.
type IPBlocker interface {
	IsIPBlocked(ctx context.Context, ip string) bool
}

// RateLimitStore abstracts the backing store for request rate limiting.
type RateLimitStore interface {
	// IncrementAndCheck counts one request for key within the current window
	// and reports whether the limit still holds.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RouteRegistrar mounts a handler group's routes. Handler packages expose
// one so core never imports them.
type RouteRegistrar func(r chi.Router)
