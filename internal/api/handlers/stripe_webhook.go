package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bugspotter/internal/core"
	"bugspotter/internal/external"
	"bugspotter/internal/types"
)

// maxWebhookBodySize caps Stripe webhook payloads at 64 KB.
const maxWebhookBodySize = 64 * 1024

// CheckoutCompleter activates the plan paid for in a Checkout Session.
// *billing.SubscriptionService implements it.
type CheckoutCompleter interface {
	CompleteCheckout(ctx context.Context, sessionID, userRef string, planType types.PlanType) (*types.Subscription, error)
}

// StripeWebhookHandler handles events delivered by Stripe. It sits outside
// session auth and CSRF; the Stripe-Signature header authenticates it.
type StripeWebhookHandler struct {
	verifier  external.WebhookVerifier
	completer CheckoutCompleter
	secret    string
	logger    *slog.Logger
}

func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	completer CheckoutCompleter,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:  verifier,
		completer: completer,
		secret:    secret,
		logger:    logger,
	}
}

func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/stripe/webhook", h.Handle)
}

// Handle verifies the signature, then dispatches on event type. Once the
// signature checks out it always answers 200: processing failures are
// logged, not retried by Stripe.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidInput,
			"failed to read request body", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSignatureInvalid,
			"missing Stripe-Signature header", nil))
		return
	}
	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSignatureInvalid,
			"webhook signature verification failed", err))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event JSON", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidInput,
			"invalid webhook event JSON", err))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
	}

	core.Success(w, r, http.StatusOK, map[string]any{"received": true})
}

func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case external.EventStripeCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)
	case external.EventStripeCheckoutExpired:
		h.logger.InfoContext(ctx, "checkout session expired without payment", "event_id", event.ID)
		return nil
	default:
		h.logger.DebugContext(ctx, "ignoring unhandled webhook event type", "event_type", event.Type)
		return nil
	}
}

// handleCheckoutCompleted creates the subscription for a paid session.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	var session stripeCheckoutSessionObj
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return fmt.Errorf("decoding checkout session in event %s: %w", event.ID, err)
	}
	if session.PaymentStatus != "" && session.PaymentStatus != "paid" {
		h.logger.InfoContext(ctx, "checkout completed without payment",
			"session_id", session.ID,
			"payment_status", session.PaymentStatus,
		)
		return nil
	}

	userRef := session.ClientReferenceID
	if userRef == "" {
		userRef = session.Metadata["user_id"]
	}
	planType := types.PlanType(session.Metadata["plan_type"])

	sub, err := h.completer.CompleteCheckout(ctx, session.ID, userRef, planType)
	if err != nil {
		return err
	}
	if sub != nil {
		h.logger.InfoContext(ctx, "subscription activated from checkout",
			"session_id", session.ID,
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
		)
	}
	return nil
}

// stripeWebhookEvent is the envelope of a Stripe event, decoded without the
// stripe-go event types so tests can build payloads by hand.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// stripeCheckoutSessionObj holds the Checkout Session fields we read.
type stripeCheckoutSessionObj struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
}
