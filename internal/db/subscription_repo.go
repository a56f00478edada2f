package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"bugspotter/internal/types"
)

// SubscriptionRepository provides data access for the subscriptions table.
type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, user_id, plan_type, status, start_date, end_date, payment_id, created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var s types.Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.PlanType, &s.Status, &s.StartDate, &s.EndDate, &s.PaymentID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts the subscription and fills in ID and timestamps.
func (r *SubscriptionRepository) Create(ctx context.Context, s *types.Subscription) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO subscriptions (user_id, plan_type, status, start_date, end_date, payment_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		s.UserID,
		s.PlanType,
		s.Status,
		s.StartDate,
		s.EndDate,
		s.PaymentID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "Failed to create subscription", err)
	}
	return nil
}

// GetByID returns not_found_subscription for unknown ids.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (*types.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "Subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "Failed to fetch subscription", err)
	}
	return s, nil
}

// GetCurrentForUser returns the active subscription with the latest start
// date whose end date has not passed, or nil.
func (r *SubscriptionRepository) GetCurrentForUser(ctx context.Context, userID int64, now time.Time) (*types.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = $1 AND status = 'active' AND end_date >= $2
		 ORDER BY start_date DESC
		 LIMIT 1`,
		userID,
		now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "Failed to fetch subscription", err)
	}
	return s, nil
}

// Cancel reports whether a row was updated.
func (r *SubscriptionRepository) Cancel(ctx context.Context, id int64, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = 'cancelled', updated_at = $2 WHERE id = $1`,
		id,
		now,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "Failed to cancel subscription", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SubscriptionRepository) ExistsByPaymentID(ctx context.Context, paymentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE payment_id = $1)`,
		paymentID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to look up payment", err)
	}
	return exists, nil
}

// ExpireLapsed moves active subscriptions past their end date to expired.
func (r *SubscriptionRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = 'expired', updated_at = $1
		 WHERE status = 'active' AND end_date < $1`,
		now,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to expire subscriptions", err)
	}
	return tag.RowsAffected(), nil
}
