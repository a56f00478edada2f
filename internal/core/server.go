// Package core is the HTTP chassis for the BugSpotter API. It builds the chi
// router, applies the cross-cutting middleware (recovery, request ids,
// logging, metrics, sessions, CSRF, rate limits) and leaves the domain routes
// to the registrars that cmd/api hands it.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"

	"bugspotter/internal/config"
	"bugspotter/internal/observability"
)

// Server holds the API's cross-cutting dependencies. Optional collaborators
// (Authenticator, IPBlocker, RateLimitStore, Metrics) may be nil, in which
// case their middleware passes requests through.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Validator      *Validator
	Metrics        *observability.Metrics
	Authenticator  Authenticator
	IPBlocker      IPBlocker
	RateLimitStore RateLimitStore
	HealthProbes   []HealthProbe

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	// RouteRegistrars are mounted under /api.
	RouteRegistrars []RouteRegistrar

	router  *chi.Mux
	closers []func() error
}

// NewServer validates the required dependencies and prepares an empty
// router. Call MountRoutes after setting the optional fields.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router wrapped in gzip response compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a resource to release in Shutdown, such as the
// Postgres pool or the Redis client.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown releases registered resources in reverse order.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Logger.ErrorContext(ctx, "error releasing resource", "error", err)
			errs = append(errs, err)
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return errors.Join(errs...)
}
