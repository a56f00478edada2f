// Package config defines the process configuration. It is loaded once at
// startup (or Lambda cold start) and is immutable afterwards.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"bugspotter/internal/types"
)

// SecretString is the redacted secret type used for credentials.
type SecretString = types.SecretString

// Config is the top-level configuration. Components receive only the
// section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"bugspotter"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Weather  WeatherConfig
	Gemini   GeminiConfig
	Identify IdentifyConfig
	Billing  BillingConfig
	AWS      AWSConfig
	Auth     AuthConfig
	Security SecurityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds the listener and the public URL used for redirects.
type ServerConfig struct {
	Port      string `envconfig:"PORT" default:"5000"`
	PublicURL string `envconfig:"PUBLIC_URL" default:"http://localhost:5000" validate:"required,url"`
}

// DatabaseConfig holds the Postgres DSN and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// RedisConfig backs the weather cache, the identification quota and the
// brute-force and rate-limit counters.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR" default:"localhost:6379" validate:"required,hostname_port"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
}

// WeatherConfig configures OpenWeather. An empty APIKey selects the offline
// generator.
type WeatherConfig struct {
	APIKey   SecretString  `envconfig:"WEATHER_API_KEY"`
	BaseURL  string        `envconfig:"OPENWEATHER_BASE_URL" default:"https://api.openweathermap.org" validate:"required,url"`
	RPS      float64       `envconfig:"WEATHER_RPS" default:"10" validate:"gt=0"`
	Burst    int           `envconfig:"WEATHER_BURST" default:"20" validate:"gt=0"`
	CacheTTL time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"10m"`
}

// GeminiConfig configures the vision model.
type GeminiConfig struct {
	APIKey  SecretString `envconfig:"GEMINI_API_KEY" validate:"required"`
	Model   string       `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	BaseURL string       `envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com" validate:"required,url"`
}

// IdentifyConfig holds the free-tier allowance.
type IdentifyConfig struct {
	FreeDailyLimit int `envconfig:"IDENTIFY_FREE_DAILY_LIMIT" default:"5" validate:"gte=0"`
}

// BillingConfig holds Stripe credentials. Card checkout is disabled when
// StripeSecretKey is empty; Google Pay keeps working.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required_with=StripeSecretKey"`
	MonthlyPriceID      string       `envconfig:"STRIPE_MONTHLY_PRICE_ID" validate:"required_with=StripeSecretKey"`
	YearlyPriceID       string       `envconfig:"STRIPE_YEARLY_PRICE_ID" validate:"required_with=StripeSecretKey"`
}

// AWSConfig holds regional settings and queue identifiers.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Empty disables event publishing.
	IdentificationQueueURL string `envconfig:"SQS_IDENTIFICATION_EVENTS" validate:"omitempty,url"`
	MetricNamespace        string `envconfig:"METRIC_NAMESPACE" default:"BugSpotter"`

	// LocalStack support (empty in prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// AuthConfig holds session and brute-force settings.
type AuthConfig struct {
	SessionTTL          time.Duration `envconfig:"SESSION_TTL" default:"168h" validate:"gt=0"`
	LockoutWindow       time.Duration `envconfig:"AUTH_LOCKOUT_WINDOW" default:"15m"`
	IdentifierThreshold int           `envconfig:"AUTH_IDENTIFIER_THRESHOLD" default:"5" validate:"gt=0"`
	IPThreshold         int           `envconfig:"AUTH_IP_THRESHOLD" default:"100" validate:"gt=0"`
}

// SecurityConfig holds CORS and inbound rate limiting.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// Requests per minute per caller on /api routes; 0 disables the limit.
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120" validate:"gte=0"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)

// IsLocal reports whether the process runs on a developer machine.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}
