package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"bugspotter/internal/types"
)

// SessionRepository stores login sessions.
type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, csrf_token, ip_address, user_agent, expires_at, created_at, last_active_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID,
		s.UserID,
		s.CSRFToken,
		s.IPAddress,
		s.UserAgent,
		s.ExpiresAt,
		s.CreatedAt,
		s.LastActive,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByID returns not_found_session for unknown ids. Expiry is checked by
// the caller.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*types.Session, error) {
	var s types.Session
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, csrf_token, ip_address, user_agent, expires_at, created_at, last_active_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.UserID, &s.CSRFToken, &s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt, &s.LastActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSession, "session not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve session", err)
	}
	return &s, nil
}

func (r *SessionRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteExpiredByUser is the lazy cleanup run on login.
func (r *SessionRepository) DeleteExpiredByUser(ctx context.Context, userID int64, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND expires_at < $2`,
		userID,
		now,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired sessions", err)
	}
	return nil
}

// DeleteExpired removes every expired session and returns how many went.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete expired sessions", err)
	}
	return tag.RowsAffected(), nil
}
