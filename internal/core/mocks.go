package core

import (
	"context"
	"sync"
	"time"

	"bugspotter/internal/types"
)

// MockAuthenticator is an Authenticator for handler and middleware tests.
//
//	auth := &MockAuthenticator{
//	    Actor: &types.Actor{UserID: 7, Username: "ada", SessionID: "sess_abc"},
//	    CSRF:  "csrf-token",
//	}
type MockAuthenticator struct {
	Actor *types.Actor
	CSRF  string
	Err   error

	// ResolveSessionFunc takes precedence over the fields above.
	ResolveSessionFunc func(ctx context.Context, sessionID string) (*types.Actor, string, error)

	mu    sync.Mutex
	Calls []string
}

// ResolveSession implements Authenticator.
func (m *MockAuthenticator) ResolveSession(ctx context.Context, sessionID string) (*types.Actor, string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, sessionID)
	m.mu.Unlock()

	if m.ResolveSessionFunc != nil {
		return m.ResolveSessionFunc(ctx, sessionID)
	}
	if m.Err != nil {
		return nil, "", m.Err
	}
	return m.Actor, m.CSRF, nil
}

// MockRateLimitStore is a RateLimitStore returning a fixed Result and Err.
type MockRateLimitStore struct {
	Result RateLimitResult
	Err    error

	mu    sync.Mutex
	Calls []RateLimitCall
}

// RateLimitCall records one IncrementAndCheck invocation.
type RateLimitCall struct {
	Key    string
	Limit  int
	Window time.Duration
}

// IncrementAndCheck implements RateLimitStore.
func (m *MockRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, RateLimitCall{Key: key, Limit: limit, Window: window})
	m.mu.Unlock()
	return m.Result, m.Err
}

// MockIPBlocker blocks the IPs mapped to true.
type MockIPBlocker struct {
	BlockedIPs map[string]bool
}

// IsIPBlocked implements IPBlocker.
func (m *MockIPBlocker) IsIPBlocked(_ context.Context, ip string) bool {
	return m.BlockedIPs[ip]
}

var (
	_ Authenticator  = (*MockAuthenticator)(nil)
	_ RateLimitStore = (*MockRateLimitStore)(nil)
	_ IPBlocker      = (*MockIPBlocker)(nil)
)
