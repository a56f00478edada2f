package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"bugspotter/internal/core"
	"bugspotter/internal/types"
)

const minPasswordLength = 8

// --- DTOs ---

// CredentialsRequest is the body of POST /register and POST /login.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Password string `json:"password" validate:"required,max=72"`
}

// AuthService is the account and session logic behind the auth routes.
// *auth.Service implements it.
type AuthService interface {
	Register(ctx context.Context, username, password, ip, userAgent string) (*types.User, *types.Session, error)
	Login(ctx context.Context, username, password, ip, userAgent string) (*types.User, *types.Session, error)
	Logout(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, userID int64) (*types.User, error)
}

// AuthHandler serves registration, login, logout and the current user.
type AuthHandler struct {
	service       AuthService
	validator     *core.Validator
	secureCookies bool
	logger        *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secureCookies should be false only
// for local development over plain HTTP.
func NewAuthHandler(svc AuthService, v *core.Validator, secureCookies bool, l *slog.Logger) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{service: svc, validator: v, secureCookies: secureCookies, logger: l}
}

// RegisterRoutes mounts:
//
//	POST /register  public
//	POST /login     public
//	POST /logout    session
//	GET  /user      session
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)

	r.Group(func(r chi.Router) {
		r.Use(core.RequireAuth)
		r.Post("/logout", h.HandleLogout)
		r.Get("/user", h.HandleCurrentUser)
	})
}

func (h *AuthHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := core.DecodeJSON(w, r, &req, core.DefaultMaxBodyBytes); err != nil {
		core.Error(w, r, invalidRequest(err, "Invalid request data"))
		return req, false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return req, false
	}
	return req, true
}

// HandleRegister creates an account and logs it in.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationWeakPassword,
			"Password must be at least 8 characters", nil))
		return
	}

	user, session, err := h.service.Register(r.Context(), req.Username, req.Password,
		types.GetClientIP(r.Context()), r.UserAgent())
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to register")
		return
	}

	core.SetSessionCookie(w, session, h.secureCookies)
	core.Success(w, r, http.StatusCreated, map[string]any{
		"user":      user,
		"csrfToken": session.CSRFToken,
	})
}

// HandleLogin verifies credentials and sets the session cookie. The CSRF
// token is returned in the body for the client to echo in X-CSRF-Token.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, session, err := h.service.Login(r.Context(), req.Username, req.Password,
		types.GetClientIP(r.Context()), r.UserAgent())
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to log in")
		return
	}

	core.SetSessionCookie(w, session, h.secureCookies)
	core.Success(w, r, http.StatusOK, map[string]any{
		"user":      user,
		"csrfToken": session.CSRFToken,
	})
}

// HandleLogout deletes the session and clears the cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), actor.SessionID); err != nil {
		// The cookie is cleared regardless; an orphaned row expires on its own.
		h.logger.WarnContext(r.Context(), "failed to delete session on logout",
			"user_id", actor.UserID,
			"error", err,
		)
	}

	core.ClearSessionCookie(w, h.secureCookies)
	core.Success(w, r, http.StatusOK, nil)
}

// HandleCurrentUser returns the logged-in user.
func (h *AuthHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	user, err := h.service.CurrentUser(r.Context(), actor.UserID)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to fetch user")
		return
	}
	core.Success(w, r, http.StatusOK, map[string]any{"user": user})
}
