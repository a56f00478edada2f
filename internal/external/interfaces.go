package external

import (
	"context"
	"time"

	"bugspotter/internal/types"
)

// WeatherSource fetches current conditions for a coordinate.
type WeatherSource interface {
	Fetch(ctx context.Context, lat, lon float64) (types.WeatherReading, error)
}

// VisionModel runs a single multimodal prompt and returns the raw text answer.
type VisionModel interface {
	GenerateContent(ctx context.Context, in GenerateRequest) (string, error)
}

// CheckoutProvider creates hosted payment pages for subscription plans.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutRequest) (*CheckoutSession, error)
}

// WebhookVerifier abstracts Stripe webhook signature checking.
type WebhookVerifier interface {
	// Verify returns nil when header is a valid signature of payload.
	Verify(payload []byte, header string, secret string) error
}

// CheckoutRequest describes one plan purchase.
type CheckoutRequest struct {
	UserID     int64
	Username   string
	PlanType   types.PlanType
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the subset of a Stripe Checkout Session we use.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeCheckoutExpired   = "checkout.session.expired"
)
