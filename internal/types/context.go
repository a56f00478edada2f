package types

import "context"

// Actor is the authenticated user behind a request. Anonymous requests carry
// no Actor in their context.
type Actor struct {
	UserID    int64
	Username  string
	SessionID string
}

type contextKey string

const (
	actorKey       contextKey = "actor"
	requestIDKey   contextKey = "request_id"
	clientIPKey    contextKey = "client_ip"
	sessionCSRFKey contextKey = "session_csrf_token"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// ActorUserID returns a pointer to the authenticated user's id, or nil for
// anonymous requests. Repositories store the nil as SQL NULL.
func ActorUserID(ctx context.Context) *int64 {
	actor, ok := GetActor(ctx)
	if !ok {
		return nil
	}
	id := actor.UserID
	return &id
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithClientIP stores the caller's resolved IP address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetClientIP returns the caller's IP, or "" when unknown.
func GetClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// WithSessionCSRFToken stores the session's CSRF token in the context.
// AuthMiddleware sets it so CSRFMiddleware can compare the X-CSRF-Token header.
func WithSessionCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionCSRFKey, token)
}

// GetSessionCSRFToken retrieves the session's CSRF token from the context.
func GetSessionCSRFToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(sessionCSRFKey).(string)
	return token, ok && token != ""
}
