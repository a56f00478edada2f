package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult is shown to the operator either way.
type ValidationResult struct {
	Valid   bool
	Message string
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and closes one connection.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

type pgxConnector struct{}

func (pgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator probes vendor credentials before they are stored.
type Validator struct {
	http      HTTPClient
	db        DatabaseConnector
	stripeURL string
}

const validateTimeout = 15 * time.Second

func NewValidator() *Validator {
	return &Validator{
		http:      &http.Client{Timeout: 10 * time.Second},
		db:        pgxConnector{},
		stripeURL: "https://api.stripe.com/v1/account",
	}
}

func (v *Validator) ValidateDatabaseURL(ctx context.Context, raw string) ValidationResult {
	u, err := url.Parse(raw)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("invalid URL: %v", err)}
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return ValidationResult{Message: fmt.Sprintf("expected postgres:// scheme, got %q", u.Scheme)}
	}
	if u.Hostname() == "" {
		return ValidationResult{Message: "missing host"}
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.db.Connect(connCtx, raw); err != nil {
		return ValidationResult{Message: fmt.Sprintf("connection failed: %v", err)}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("connected to %s", u.Hostname())}
}

var geminiKeyRegex = regexp.MustCompile(`^AIza[0-9A-Za-z_-]{35}$`)

// ValidateGeminiKey checks format only; a live probe would spend quota.
func (v *Validator) ValidateGeminiKey(_ context.Context, key string) ValidationResult {
	if !geminiKeyRegex.MatchString(key) {
		return ValidationResult{Message: "Gemini API keys are 39 characters starting with AIza"}
	}
	return ValidationResult{Valid: true, Message: "Gemini key format accepted"}
}

var stripeKeyRegex = regexp.MustCompile(`^sk_(test|live)_[0-9a-zA-Z]{24,}$`)

// ValidateStripeKey checks the format, then calls GET /v1/account.
func (v *Validator) ValidateStripeKey(ctx context.Context, key string) ValidationResult {
	if !stripeKeyRegex.MatchString(key) {
		return ValidationResult{Message: "Stripe secret keys look like sk_(test|live)_ followed by 24+ alphanumerics"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, v.stripeURL, nil)
	if err != nil {
		return ValidationResult{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "BugSpotter-Bootstrap/1.0")

	resp, err := v.http.Do(req)
	if err != nil {
		return ValidationResult{Message: fmt.Sprintf("Stripe probe failed: %v", err)}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ValidationResult{Message: "Stripe rejected the key (401)"}
	case resp.StatusCode != http.StatusOK:
		return ValidationResult{Message: fmt.Sprintf("Stripe returned HTTP %d: %s", resp.StatusCode, truncate(body, 200))}
	}

	var account struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(body, &account)
	mode := "test"
	if strings.HasPrefix(key, "sk_live_") {
		mode = "live"
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("Stripe key verified [%s mode] account %s", mode, account.ID)}
}

// matchPattern builds a format-only validator.
func matchPattern(pattern, field string) func(context.Context, string) ValidationResult {
	re := regexp.MustCompile(pattern)
	return func(_ context.Context, input string) ValidationResult {
		if !re.MatchString(input) {
			return ValidationResult{Message: fmt.Sprintf("%s does not match %s", field, pattern)}
		}
		return ValidationResult{Valid: true, Message: field + " format accepted"}
	}
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
