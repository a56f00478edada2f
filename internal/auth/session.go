package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"bugspotter/internal/types"
)

// SessionConfig holds configuration for session management.
type SessionConfig struct {
	// SessionDuration is the lifetime of a new session. Default: 7 days.
	SessionDuration time.Duration
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{SessionDuration: 7 * 24 * time.Hour}
}

// SessionRepo is the session storage the service needs.
type SessionRepo interface {
	Create(ctx context.Context, session *types.Session) error
	// GetByID returns a not_found_session AppError for unknown ids.
	GetByID(ctx context.Context, sessionID string) (*types.Session, error)
	DeleteByID(ctx context.Context, sessionID string) error
	DeleteExpiredByUser(ctx context.Context, userID int64, now time.Time) error
}

// TokenGenerator abstracts entropy sources for testability.
type TokenGenerator interface {
	GenerateSessionID() (string, error)
	GenerateCSRF() (string, error)
}

// sessionService creates, validates and invalidates sessions.
type sessionService struct {
	repo     SessionRepo
	tokenGen TokenGenerator
	config   SessionConfig
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewSessionService creates a session service. A nil clock uses the real
// clock and a nil logger slog.Default().
func NewSessionService(
	repo SessionRepo,
	tokenGen TokenGenerator,
	config SessionConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
) *sessionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.SessionDuration <= 0 {
		config.SessionDuration = DefaultSessionConfig().SessionDuration
	}
	return &sessionService{
		repo:     repo,
		tokenGen: tokenGen,
		config:   config,
		clock:    clock,
		logger:   logger,
	}
}

// CreateSession generates the session id and CSRF token and stores the
// session.
func (s *sessionService) CreateSession(ctx context.Context, userID int64, ip, userAgent string) (*types.Session, error) {
	sessionID, err := s.tokenGen.GenerateSessionID()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session ID", err)
	}
	csrfToken, err := s.tokenGen.GenerateCSRF()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate CSRF token", err)
	}

	now := s.clock.Now().UTC()
	session := &types.Session{
		ID:         sessionID,
		UserID:     userID,
		CSRFToken:  csrfToken,
		IPAddress:  ip,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(s.config.SessionDuration),
		CreatedAt:  now,
		LastActive: now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "session created", "user_id", userID)
	return session, nil
}

// ValidateSession returns the session if it exists and has not expired.
// Unknown ids yield auth_session_invalid; an expired session is deleted and
// yields auth_session_expired.
func (s *sessionService) ValidateSession(ctx context.Context, sessionID string) (*types.Session, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundSession) {
			return nil, types.NewAppError(types.ErrCodeAuthSessionInvalid, "Invalid session", err)
		}
		return nil, err
	}

	if s.clock.Now().After(session.ExpiresAt) {
		if delErr := s.repo.DeleteByID(ctx, sessionID); delErr != nil {
			s.logger.WarnContext(ctx, "failed to delete expired session", "user_id", session.UserID, "error", delErr)
		}
		return nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "Session has expired", nil)
	}

	return session, nil
}

// ValidateCSRF compares token with the session's CSRF token in constant time.
func (s *sessionService) ValidateCSRF(session *types.Session, token string) error {
	if session == nil {
		return types.NewAppError(types.ErrCodeAuthSessionInvalid, "no session provided", nil)
	}
	if subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(token)) != 1 {
		return types.NewAppError(types.ErrCodeAuthCSRFInvalid, "CSRF token is invalid", nil)
	}
	return nil
}

// InvalidateSession deletes the session so the cookie stops working at once.
func (s *sessionService) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteByID(ctx, sessionID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "session invalidated")
	return nil
}

// withRepo returns a copy bound to a transaction-scoped repository.
func (s *sessionService) withRepo(repo SessionRepo) *sessionService {
	return &sessionService{
		repo:     repo,
		tokenGen: s.tokenGen,
		config:   s.config,
		clock:    s.clock,
		logger:   s.logger,
	}
}

// CryptoTokenGenerator is the crypto/rand TokenGenerator.
type CryptoTokenGenerator struct {
	SessionIDPrefix string
}

// NewCryptoTokenGenerator creates a generator with the "sess_" prefix.
func NewCryptoTokenGenerator() *CryptoTokenGenerator {
	return &CryptoTokenGenerator{SessionIDPrefix: "sess_"}
}

// GenerateSessionID returns "sess_" followed by 64 hex characters.
func (g *CryptoTokenGenerator) GenerateSessionID() (string, error) {
	tok, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	return g.SessionIDPrefix + tok, nil
}

// GenerateCSRF returns 64 hex characters.
func (g *CryptoTokenGenerator) GenerateCSRF() (string, error) {
	tok, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("generate CSRF token: %w", err)
	}
	return tok, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
