package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bugspotter/internal/billing"
	"bugspotter/internal/core"
	"bugspotter/internal/external"
	"bugspotter/internal/types"
)

// --- DTOs ---

// CreateSubscriptionRequest is the body of POST /subscriptions.
type CreateSubscriptionRequest struct {
	PlanType  types.PlanType `json:"planType" validate:"required,plantype"`
	PaymentID string         `json:"paymentId" validate:"required,max=255"`
	EndDate   time.Time      `json:"endDate" validate:"required"`
}

// GooglePayRequest is the body of POST /google-pay/process-payment.
type GooglePayRequest struct {
	PaymentData map[string]any `json:"paymentData" validate:"required"`
	PlanType    types.PlanType `json:"planType" validate:"required,plantype"`
}

// CheckoutRequest is the body of POST /stripe/checkout.
type CheckoutRequest struct {
	PlanType types.PlanType `json:"planType" validate:"required,plantype"`
}

// SubscriptionService is the premium subscription lifecycle.
// *billing.SubscriptionService implements it.
type SubscriptionService interface {
	Plans() []billing.Plan
	Current(ctx context.Context, userID int64) (*types.Subscription, error)
	Create(ctx context.Context, userID int64, planType types.PlanType, paymentID string, endDate time.Time) (*types.Subscription, error)
	Cancel(ctx context.Context, userID, id int64) error
	ProcessGooglePay(ctx context.Context, userID int64, planType types.PlanType, paymentData map[string]any) (*types.Subscription, string, error)
	StartCheckout(ctx context.Context, actor types.Actor, planType types.PlanType) (*external.CheckoutSession, error)
}

// BillingHandler serves plans, subscriptions and payment entry points.
type BillingHandler struct {
	service   SubscriptionService
	validator *core.Validator
	logger    *slog.Logger
}

func NewBillingHandler(svc SubscriptionService, v *core.Validator, l *slog.Logger) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{service: svc, validator: v, logger: l}
}

// RegisterRoutes mounts:
//
//	GET  /plans                        public
//	GET  /subscriptions                session
//	POST /subscriptions                session
//	POST /subscriptions/cancel/{id}    session
//	POST /google-pay/process-payment   session
//	POST /stripe/checkout              session
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plans", h.HandlePlans)

	r.Group(func(r chi.Router) {
		r.Use(core.RequireAuth)
		r.Get("/subscriptions", h.HandleGetSubscription)
		r.Post("/subscriptions", h.HandleCreateSubscription)
		r.Post("/subscriptions/cancel/{id}", h.HandleCancelSubscription)
		r.Post("/google-pay/process-payment", h.HandleGooglePay)
		r.Post("/stripe/checkout", h.HandleCheckout)
	})
}

// decode reads and validates a request body, answering 400 with message on
// failure.
func (h *BillingHandler) decode(w http.ResponseWriter, r *http.Request, dst any, message string) bool {
	if err := core.DecodeJSON(w, r, dst, core.DefaultMaxBodyBytes); err != nil {
		core.Error(w, r, invalidRequest(err, message))
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		core.Error(w, r, invalidRequest(err, message))
		return false
	}
	return true
}

func (h *BillingHandler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	core.Success(w, r, http.StatusOK, map[string]any{"plans": h.service.Plans()})
}

// HandleGetSubscription returns the caller's current subscription, or null.
func (h *BillingHandler) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Current(r.Context(), actor.UserID)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to fetch subscription")
		return
	}
	core.Success(w, r, http.StatusOK, map[string]any{"subscription": sub})
}

func (h *BillingHandler) HandleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateSubscriptionRequest
	if !h.decode(w, r, &req, "Invalid request data") {
		return
	}

	sub, err := h.service.Create(r.Context(), actor.UserID, req.PlanType, req.PaymentID, req.EndDate)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to create subscription")
		return
	}
	core.Success(w, r, http.StatusCreated, map[string]any{"subscription": sub})
}

func (h *BillingHandler) HandleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), actor.UserID, id); err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to cancel subscription")
		return
	}
	core.Success(w, r, http.StatusOK, nil)
}

// HandleGooglePay activates a plan from a Google Pay token.
func (h *BillingHandler) HandleGooglePay(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req GooglePayRequest
	if !h.decode(w, r, &req, "Invalid request data") {
		return
	}

	sub, paymentID, err := h.service.ProcessGooglePay(r.Context(), actor.UserID, req.PlanType, req.PaymentData)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to process payment")
		return
	}
	core.Success(w, r, http.StatusCreated, map[string]any{
		"subscription": sub,
		"paymentId":    paymentID,
	})
}

// HandleCheckout starts a Stripe Checkout Session and returns its URL for
// the client to redirect to.
func (h *BillingHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if !h.decode(w, r, &req, "Invalid request data") {
		return
	}

	session, err := h.service.StartCheckout(r.Context(), actor, req.PlanType)
	if err != nil {
		core.ErrorWithFallback(w, r, h.logger, err, "Failed to start checkout")
		return
	}
	core.Success(w, r, http.StatusOK, map[string]any{
		"url":       session.URL,
		"sessionId": session.ID,
	})
}
