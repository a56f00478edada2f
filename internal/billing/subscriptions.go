package billing

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"bugspotter/internal/external"
	"bugspotter/internal/observability"
	"bugspotter/internal/types"
)

const (
	ChannelGooglePay = "googlepay"
	ChannelStripe    = "stripe"
	ChannelDirect    = "direct"
)

// SubscriptionRepository persists subscriptions.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *types.Subscription) error
	// GetByID returns a not_found_subscription AppError when id is unknown.
	GetByID(ctx context.Context, id int64) (*types.Subscription, error)
	// GetCurrentForUser returns (nil, nil) when the user has no current subscription.
	GetCurrentForUser(ctx context.Context, userID int64, now time.Time) (*types.Subscription, error)
	Cancel(ctx context.Context, id int64, now time.Time) (bool, error)
	ExistsByPaymentID(ctx context.Context, paymentID string) (bool, error)
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

// CheckoutConfig carries the Stripe price ids and redirect base URL.
type CheckoutConfig struct {
	PriceIDs  map[types.PlanType]string
	PublicURL string
}

// SubscriptionService owns the premium subscription lifecycle.
type SubscriptionService struct {
	repo     SubscriptionRepository
	plans    PlanRegistry
	checkout external.CheckoutProvider
	checkCfg CheckoutConfig
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
	randIntN func(n int) int
}

// NewSubscriptionService creates a SubscriptionService. checkout may be nil
// when Stripe is not configured; StartCheckout then fails with a 502.
func NewSubscriptionService(
	repo SubscriptionRepository,
	plans PlanRegistry,
	checkout external.CheckoutProvider,
	checkCfg CheckoutConfig,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *SubscriptionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionService{
		repo:     repo,
		plans:    plans,
		checkout: checkout,
		checkCfg: checkCfg,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
		randIntN: rand.Intn,
	}
}

func (s *SubscriptionService) plan(planType types.PlanType) (Plan, error) {
	p, ok := s.plans.Get(planType)
	if !ok {
		return Plan{}, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPlan,
			"planType must be monthly or yearly", nil, map[string]any{"planType": planType})
	}
	return p, nil
}

// Plans lists the purchasable plans.
func (s *SubscriptionService) Plans() []Plan {
	return s.plans.List()
}

// Current returns the user's active subscription with the latest start date,
// or nil when there is none.
func (s *SubscriptionService) Current(ctx context.Context, userID int64) (*types.Subscription, error) {
	return s.repo.GetCurrentForUser(ctx, userID, s.clock.Now())
}

// HasActive reports whether the user currently has premium access.
func (s *SubscriptionService) HasActive(ctx context.Context, userID int64) (bool, error) {
	sub, err := s.Current(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub != nil, nil
}

// Create records an already-paid subscription starting now.
func (s *SubscriptionService) Create(ctx context.Context, userID int64, planType types.PlanType, paymentID string, endDate time.Time) (*types.Subscription, error) {
	return s.create(ctx, userID, planType, paymentID, endDate, ChannelDirect)
}

func (s *SubscriptionService) create(ctx context.Context, userID int64, planType types.PlanType, paymentID string, endDate time.Time, channel string) (*types.Subscription, error) {
	if _, err := s.plan(planType); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	sub := &types.Subscription{
		UserID:    userID,
		PlanType:  planType,
		Status:    types.SubscriptionActive,
		StartDate: now,
		EndDate:   endDate.UTC(),
		PaymentID: paymentID,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.SubscriptionsCreated.WithLabelValues(string(planType), channel).Inc()
	}
	s.logger.InfoContext(ctx, "subscription created",
		"subscription_id", sub.ID,
		"user_id", userID,
		"plan_type", planType,
		"channel", channel,
		"end_date", sub.EndDate,
	)
	return sub, nil
}

// Cancel cancels subscription id on behalf of userID.
func (s *SubscriptionService) Cancel(ctx context.Context, userID, id int64) error {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sub.UserID != userID {
		return types.NewAppError(types.ErrCodePermissionNotOwner,
			"Not authorized to cancel this subscription", nil)
	}

	ok, err := s.repo.Cancel(ctx, id, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return types.NewAppError(types.ErrCodeInternalDB, "Failed to cancel subscription", nil)
	}

	s.logger.InfoContext(ctx, "subscription cancelled", "subscription_id", id, "user_id", userID)
	return nil
}

// ProcessGooglePay accepts a Google Pay token and activates the plan. The
// token is not verified with Google; the payment id is generated locally.
func (s *SubscriptionService) ProcessGooglePay(ctx context.Context, userID int64, planType types.PlanType, paymentData map[string]any) (*types.Subscription, string, error) {
	p, err := s.plan(planType)
	if err != nil {
		return nil, "", err
	}

	now := s.clock.Now()
	paymentID := fmt.Sprintf("googlepay_%d_%d", now.UnixMilli(), s.randIntN(1000))

	sub, err := s.create(ctx, userID, planType, paymentID, p.EndDate(now), ChannelGooglePay)
	if err != nil {
		return nil, "", err
	}
	return sub, paymentID, nil
}

// StartCheckout creates a Stripe Checkout Session for the plan.
func (s *SubscriptionService) StartCheckout(ctx context.Context, actor types.Actor, planType types.PlanType) (*external.CheckoutSession, error) {
	if _, err := s.plan(planType); err != nil {
		return nil, err
	}
	if s.checkout == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamStripe, "card payments are not configured", nil)
	}

	return s.checkout.CreateCheckoutSession(ctx, external.CheckoutRequest{
		UserID:     actor.UserID,
		Username:   actor.Username,
		PlanType:   planType,
		PriceID:    s.checkCfg.PriceIDs[planType],
		SuccessURL: s.checkCfg.PublicURL + "/subscription?status=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.checkCfg.PublicURL + "/subscription?status=cancelled",
	})
}

// CompleteCheckout activates the plan paid for in Stripe session sessionID.
// Stripe retries deliveries, so a session that already produced a
// subscription is ignored.
func (s *SubscriptionService) CompleteCheckout(ctx context.Context, sessionID, userRef string, planType types.PlanType) (*types.Subscription, error) {
	userID, err := strconv.ParseInt(userRef, 10, 64)
	if err != nil || userID <= 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidID,
			"checkout session has no valid user reference", err, map[string]any{"session_id": sessionID})
	}
	p, err := s.plan(planType)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByPaymentID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if exists {
		s.logger.InfoContext(ctx, "checkout session already processed", "session_id", sessionID)
		return nil, nil
	}

	return s.create(ctx, userID, planType, sessionID, p.EndDate(s.clock.Now()), ChannelStripe)
}

// ExpireLapsed marks active subscriptions past their end date as expired.
func (s *SubscriptionService) ExpireLapsed(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireLapsed(ctx, s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "lapsed subscriptions expired", "count", n)
	}
	return n, nil
}
