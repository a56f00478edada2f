package auth

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"bugspotter/internal/db"
	"bugspotter/internal/types"
)

// BcryptCost is the work factor for new password hashes.
const BcryptCost = 12

const invalidCredentialsMessage = "Invalid username or password"

// UserRepo is the account storage the service needs.
type UserRepo interface {
	// Create returns conflict_username_exists when the name is taken.
	Create(ctx context.Context, user *types.User) error
	GetByUsername(ctx context.Context, username string) (*types.User, error)
	GetByID(ctx context.Context, id int64) (*types.User, error)
}

// AuthTxManager runs fn with repositories bound to one transaction.
type AuthTxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, users UserRepo, sessions SessionRepo) error) error
}

// PasswordHasher abstracts bcrypt for testability.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	CompareHashAndPassword(hash, password string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a PasswordHasher using BcryptCost.
func NewBcryptHasher() PasswordHasher {
	return &bcryptHasher{cost: BcryptCost}
}

func (h *bcryptHasher) HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *bcryptHasher) CompareHashAndPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// LoginGuard is the brute-force check consulted by Login. *BruteForceProtector
// implements it.
type LoginGuard interface {
	CheckLoginAllowed(ctx context.Context, identifier, ip string) bool
	RecordAttempt(ctx context.Context, identifier, ip string, success bool) error
}

// Service handles registration, login, logout and session resolution.
type Service struct {
	users     UserRepo
	sessions  *sessionService
	txManager AuthTxManager
	hasher    PasswordHasher
	guard     LoginGuard
	logger    *slog.Logger
}

// ServiceDeps groups the collaborators of Service. Guard may be nil, which
// disables lockouts.
type ServiceDeps struct {
	Users     UserRepo
	Sessions  *sessionService
	TxManager AuthTxManager
	Hasher    PasswordHasher
	Guard     LoginGuard
	Logger    *slog.Logger
}

// NewService creates the auth service.
func NewService(deps ServiceDeps) *Service {
	if deps.Hasher == nil {
		deps.Hasher = NewBcryptHasher()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		users:     deps.Users,
		sessions:  deps.Sessions,
		txManager: deps.TxManager,
		hasher:    deps.Hasher,
		guard:     deps.Guard,
		logger:    deps.Logger,
	}
}

// Register creates the account and its first session in one transaction.
func (s *Service) Register(ctx context.Context, username, password, ip, userAgent string) (*types.User, *types.Session, error) {
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	user := &types.User{Username: username, PasswordHash: hash}
	var session *types.Session
	err = s.txManager.RunInTx(ctx, func(ctx context.Context, users UserRepo, sessions SessionRepo) error {
		if err := users.Create(ctx, user); err != nil {
			return err
		}
		var err error
		session, err = s.sessions.withRepo(sessions).CreateSession(ctx, user.ID, ip, userAgent)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, session, nil
}

// Login verifies the credentials and opens a session. Unknown usernames and
// wrong passwords get the same error.
func (s *Service) Login(ctx context.Context, username, password, ip, userAgent string) (*types.User, *types.Session, error) {
	if s.guard != nil && !s.guard.CheckLoginAllowed(ctx, username, ip) {
		s.logger.WarnContext(ctx, "login blocked", "ip", ip)
		return nil, nil, types.NewAppError(types.ErrCodeAuthLocked,
			"Too many failed login attempts. Please try again later.", nil)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundUser) {
			s.recordAttempt(ctx, username, ip, false)
			return nil, nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, invalidCredentialsMessage, nil)
		}
		return nil, nil, err
	}

	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		s.recordAttempt(ctx, username, ip, false)
		return nil, nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, invalidCredentialsMessage, nil)
	}

	var session *types.Session
	err = s.txManager.RunInTx(ctx, func(ctx context.Context, _ UserRepo, sessions SessionRepo) error {
		txSessions := s.sessions.withRepo(sessions)
		var err error
		session, err = txSessions.CreateSession(ctx, user.ID, ip, userAgent)
		if err != nil {
			return err
		}
		if err := sessions.DeleteExpiredByUser(ctx, user.ID, session.CreatedAt); err != nil {
			s.logger.WarnContext(ctx, "failed to clean up expired sessions", "user_id", user.ID, "error", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.recordAttempt(ctx, username, ip, true)
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return user, session, nil
}

func (s *Service) recordAttempt(ctx context.Context, username, ip string, success bool) {
	if s.guard == nil {
		return
	}
	// RecordAttempt logs its own failures.
	_ = s.guard.RecordAttempt(ctx, username, ip, success)
}

// Logout deletes the session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.InvalidateSession(ctx, sessionID)
}

// CurrentUser returns the account behind an authenticated request.
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*types.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ResolveSession maps a session cookie to the acting user and the session's
// CSRF token.
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*types.Actor, string, error) {
	session, err := s.sessions.ValidateSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundUser) {
			return nil, "", types.NewAppError(types.ErrCodeAuthSessionInvalid, "Invalid session", err)
		}
		return nil, "", err
	}
	return &types.Actor{
		UserID:    user.ID,
		Username:  user.Username,
		SessionID: session.ID,
	}, session.CSRFToken, nil
}

// txManager adapts db.TxManager to AuthTxManager.
type txManager struct {
	inner *db.TxManager
}

// NewTxManager binds auth repositories to transactions from pool.
func NewTxManager(pool db.Beginner) AuthTxManager {
	return &txManager{inner: db.NewTxManager(pool)}
}

func (m *txManager) RunInTx(ctx context.Context, fn func(ctx context.Context, users UserRepo, sessions SessionRepo) error) error {
	return m.inner.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, db.NewUserRepository(tx), db.NewSessionRepository(tx))
	})
}
