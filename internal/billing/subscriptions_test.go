package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugspotter/internal/external"
	"bugspotter/internal/observability"
	"bugspotter/internal/types"
)

type fakeSubRepo struct {
	createFn            func(ctx context.Context, sub *types.Subscription) error
	getByIDFn           func(ctx context.Context, id int64) (*types.Subscription, error)
	getCurrentForUserFn func(ctx context.Context, userID int64, now time.Time) (*types.Subscription, error)
	cancelFn            func(ctx context.Context, id int64, now time.Time) (bool, error)
	existsByPaymentIDFn func(ctx context.Context, paymentID string) (bool, error)
	expireLapsedFn      func(ctx context.Context, now time.Time) (int64, error)

	created []*types.Subscription
}

func (f *fakeSubRepo) Create(ctx context.Context, sub *types.Subscription) error {
	f.created = append(f.created, sub)
	if f.createFn != nil {
		return f.createFn(ctx, sub)
	}
	sub.ID = int64(len(f.created))
	return nil
}

func (f *fakeSubRepo) GetByID(ctx context.Context, id int64) (*types.Subscription, error) {
	return f.getByIDFn(ctx, id)
}

func (f *fakeSubRepo) GetCurrentForUser(ctx context.Context, userID int64, now time.Time) (*types.Subscription, error) {
	return f.getCurrentForUserFn(ctx, userID, now)
}

func (f *fakeSubRepo) Cancel(ctx context.Context, id int64, now time.Time) (bool, error) {
	return f.cancelFn(ctx, id, now)
}

func (f *fakeSubRepo) ExistsByPaymentID(ctx context.Context, paymentID string) (bool, error) {
	if f.existsByPaymentIDFn != nil {
		return f.existsByPaymentIDFn(ctx, paymentID)
	}
	return false, nil
}

func (f *fakeSubRepo) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	return f.expireLapsedFn(ctx, now)
}

type fakeCheckout struct {
	last external.CheckoutRequest
	err  error
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, in external.CheckoutRequest) (*external.CheckoutSession, error) {
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return &external.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1"}, nil
}

var fixedNow = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

func newTestService(repo *fakeSubRepo, checkout external.CheckoutProvider) (*SubscriptionService, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	svc := NewSubscriptionService(repo, NewStaticPlanRegistry(), checkout, CheckoutConfig{
		PriceIDs:  map[types.PlanType]string{types.PlanMonthly: "price_m", types.PlanYearly: "price_y"},
		PublicURL: "https://bugs.example",
	}, clockwork.NewFakeClockAt(fixedNow), m, nil)
	svc.randIntN = func(int) int { return 42 }
	return svc, m
}

func TestCreate(t *testing.T) {
	repo := &fakeSubRepo{}
	svc, m := newTestService(repo, nil)
	end := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	sub, err := svc.Create(context.Background(), 5, types.PlanMonthly, "pay_123", end)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sub.UserID)
	assert.Equal(t, types.SubscriptionActive, sub.Status)
	assert.Equal(t, fixedNow, sub.StartDate)
	assert.Equal(t, end, sub.EndDate)
	assert.Equal(t, "pay_123", sub.PaymentID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionsCreated.WithLabelValues("monthly", ChannelDirect)))

	_, err = svc.Create(context.Background(), 5, types.PlanType("lifetime"), "pay_1", end)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidPlan))
}

func TestCurrentAndHasActive(t *testing.T) {
	current := &types.Subscription{ID: 3, UserID: 5, Status: types.SubscriptionActive}
	repo := &fakeSubRepo{getCurrentForUserFn: func(_ context.Context, userID int64, now time.Time) (*types.Subscription, error) {
		assert.Equal(t, fixedNow, now)
		if userID == 5 {
			return current, nil
		}
		return nil, nil
	}}
	svc, _ := newTestService(repo, nil)

	got, err := svc.Current(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, current, got)

	active, err := svc.HasActive(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = svc.HasActive(context.Background(), 6)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCancel(t *testing.T) {
	owned := &types.Subscription{ID: 10, UserID: 5}
	notFound := types.NewAppError(types.ErrCodeNotFoundSubscription, "Subscription not found", nil)

	tests := []struct {
		name     string
		userID   int64
		subID    int64
		cancelOK bool
		wantCode types.ErrorCode
		wantMsg  string
	}{
		{"success", 5, 10, true, "", ""},
		{"not found", 5, 99, true, types.ErrCodeNotFoundSubscription, "Subscription not found"},
		{"not owner", 6, 10, true, types.ErrCodePermissionNotOwner, "Not authorized to cancel this subscription"},
		{"no rows updated", 5, 10, false, types.ErrCodeInternalDB, "Failed to cancel subscription"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeSubRepo{
				getByIDFn: func(_ context.Context, id int64) (*types.Subscription, error) {
					if id == owned.ID {
						return owned, nil
					}
					return nil, notFound
				},
				cancelFn: func(_ context.Context, id int64, now time.Time) (bool, error) {
					assert.Equal(t, fixedNow, now)
					return tt.cancelOK, nil
				},
			}
			svc, _ := newTestService(repo, nil)

			err := svc.Cancel(context.Background(), tt.userID, tt.subID)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			appErr, ok := types.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantMsg, appErr.Message)
		})
	}
}

func TestProcessGooglePay(t *testing.T) {
	repo := &fakeSubRepo{}
	svc, m := newTestService(repo, nil)

	sub, paymentID, err := svc.ProcessGooglePay(context.Background(), 5, types.PlanYearly, map[string]any{"token": "tok"})
	require.NoError(t, err)

	assert.Equal(t, "googlepay_1770712200000_42", paymentID)
	assert.Equal(t, paymentID, sub.PaymentID)
	assert.Equal(t, time.Date(2027, 2, 10, 8, 30, 0, 0, time.UTC), sub.EndDate)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionsCreated.WithLabelValues("yearly", ChannelGooglePay)))

	_, _, err = svc.ProcessGooglePay(context.Background(), 5, types.PlanType("weekly"), nil)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidPlan))
}

func TestStartCheckout(t *testing.T) {
	checkout := &fakeCheckout{}
	svc, _ := newTestService(&fakeSubRepo{}, checkout)

	session, err := svc.StartCheckout(context.Background(), types.Actor{UserID: 5, Username: "ada"}, types.PlanYearly)
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "price_y", checkout.last.PriceID)
	assert.Equal(t, int64(5), checkout.last.UserID)
	assert.Contains(t, checkout.last.SuccessURL, "https://bugs.example/subscription?status=success")

	unconfigured, _ := newTestService(&fakeSubRepo{}, nil)
	_, err = unconfigured.StartCheckout(context.Background(), types.Actor{UserID: 5}, types.PlanMonthly)
	assert.True(t, types.HasCode(err, types.ErrCodeUpstreamStripe))
}

func TestCompleteCheckout(t *testing.T) {
	t.Run("creates subscription", func(t *testing.T) {
		repo := &fakeSubRepo{}
		svc, _ := newTestService(repo, nil)

		sub, err := svc.CompleteCheckout(context.Background(), "cs_1", "5", types.PlanMonthly)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, "cs_1", sub.PaymentID)
		assert.Equal(t, int64(5), sub.UserID)
		assert.Equal(t, time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC), sub.EndDate)
	})

	t.Run("duplicate delivery ignored", func(t *testing.T) {
		repo := &fakeSubRepo{existsByPaymentIDFn: func(context.Context, string) (bool, error) { return true, nil }}
		svc, _ := newTestService(repo, nil)

		sub, err := svc.CompleteCheckout(context.Background(), "cs_1", "5", types.PlanMonthly)
		require.NoError(t, err)
		assert.Nil(t, sub)
		assert.Empty(t, repo.created)
	})

	t.Run("bad user reference", func(t *testing.T) {
		svc, _ := newTestService(&fakeSubRepo{}, nil)
		_, err := svc.CompleteCheckout(context.Background(), "cs_1", "", types.PlanMonthly)
		assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidID))
	})
}

func TestExpireLapsed(t *testing.T) {
	repo := &fakeSubRepo{expireLapsedFn: func(_ context.Context, now time.Time) (int64, error) {
		assert.Equal(t, fixedNow, now)
		return 3, nil
	}}
	svc, _ := newTestService(repo, nil)

	n, err := svc.ExpireLapsed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	repo.expireLapsedFn = func(context.Context, time.Time) (int64, error) { return 0, errors.New("db down") }
	_, err = svc.ExpireLapsed(context.Background())
	assert.Error(t, err)
}
