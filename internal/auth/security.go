// Package auth implements registration, password login, server-side sessions
// and brute-force protection for the BugSpotter API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SecurityConfig holds the brute-force thresholds.
type SecurityConfig struct {
	// IPBlockThreshold is the number of failed logins from one IP within the
	// window that locks the IP out. Default: 100.
	IPBlockThreshold int

	// IdentifierBlockThreshold is the number of failed logins for one
	// username within the window that locks the username. Default: 5.
	IdentifierBlockThreshold int

	// WindowDuration is how long a failure counts. Default: 15 minutes.
	WindowDuration time.Duration
}

// DefaultSecurityConfig returns the production thresholds.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		IPBlockThreshold:         100,
		IdentifierBlockThreshold: 5,
		WindowDuration:           15 * time.Minute,
	}
}

// RedisCounter is the subset of *redis.Client the failure counters need.
type RedisCounter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// SecurityService counts failed logins per username and per IP in Redis.
// Each counter expires WindowDuration after its first failure.
type SecurityService struct {
	rdb    RedisCounter
	config SecurityConfig
	logger *slog.Logger
}

// NewSecurityService creates a SecurityService.
func NewSecurityService(rdb RedisCounter, config SecurityConfig, logger *slog.Logger) *SecurityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityService{rdb: rdb, config: config, logger: logger}
}

func identifierKey(identifier string) string {
	return "auth:fail:id:" + CanonicalizeUsername(identifier)
}

func ipKey(ip string) string {
	return "auth:fail:ip:" + ip
}

// RecordAttempt updates the counters after a login attempt. A failure bumps
// both counters; a success clears the username's counter but not the IP's.
func (s *SecurityService) RecordAttempt(ctx context.Context, identifier, ip string, success bool) error {
	if success {
		if err := s.rdb.Del(ctx, identifierKey(identifier)).Err(); err != nil {
			s.logger.ErrorContext(ctx, "failed to reset login failures", "identifier", identifier, "error", err)
			return fmt.Errorf("resetting login failures: %w", err)
		}
		return nil
	}

	var errs []error
	for _, key := range []string{identifierKey(identifier), ipKey(ip)} {
		if err := s.bump(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.ErrorContext(ctx, "failed to record login failure",
			"identifier", identifier,
			"ip", ip,
			"error", err,
		)
		return err
	}
	return nil
}

func (s *SecurityService) bump(ctx context.Context, key string) error {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("incrementing %s: %w", key, err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, s.config.WindowDuration).Err(); err != nil {
			return fmt.Errorf("setting expiry on %s: %w", key, err)
		}
	}
	return nil
}

// IsIPBlocked reports whether ip reached IPBlockThreshold. Redis errors fail
// open.
func (s *SecurityService) IsIPBlocked(ctx context.Context, ip string) bool {
	return s.count(ctx, ipKey(ip)) >= s.config.IPBlockThreshold
}

// IsIdentifierBlocked reports whether the username reached
// IdentifierBlockThreshold. Redis errors fail open.
func (s *SecurityService) IsIdentifierBlocked(ctx context.Context, identifier string) bool {
	return s.count(ctx, identifierKey(identifier)) >= s.config.IdentifierBlockThreshold
}

func (s *SecurityService) count(ctx context.Context, key string) int {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read login failures", "key", key, "error", err)
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// BruteForceProtector is the login-facing view of SecurityService.
type BruteForceProtector struct {
	security *SecurityService
}

// NewBruteForceProtector wraps security.
func NewBruteForceProtector(security *SecurityService) *BruteForceProtector {
	return &BruteForceProtector{security: security}
}

// CheckLoginAllowed reports whether neither the username nor the IP is
// locked out.
func (b *BruteForceProtector) CheckLoginAllowed(ctx context.Context, identifier, ip string) bool {
	if b.security.IsIdentifierBlocked(ctx, identifier) {
		return false
	}
	return !b.security.IsIPBlocked(ctx, ip)
}

// RecordAttempt records a login outcome.
func (b *BruteForceProtector) RecordAttempt(ctx context.Context, identifier, ip string, success bool) error {
	return b.security.RecordAttempt(ctx, identifier, ip, success)
}

// CanonicalizeUsername normalizes a username for counter keys.
func CanonicalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
