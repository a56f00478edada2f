package identify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugspotter/internal/external"
	"bugspotter/internal/observability"
	"bugspotter/internal/types"
)

// --- fakes ---

type fakeModel struct {
	mu         sync.Mutex
	generateFn func(ctx context.Context, in external.GenerateRequest) (string, error)
	last       external.GenerateRequest
}

func (f *fakeModel) GenerateContent(ctx context.Context, in external.GenerateRequest) (string, error) {
	f.mu.Lock()
	f.last = in
	fn := f.generateFn
	f.mu.Unlock()
	return fn(ctx, in)
}

type fakeRepo struct {
	createFn       func(ctx context.Context, ident *types.BugIdentification) error
	listByUserFn   func(ctx context.Context, userID int64) ([]*types.BugIdentification, error)
	deleteByUserFn func(ctx context.Context, userID int64) (int64, error)
}

func (f *fakeRepo) Create(ctx context.Context, ident *types.BugIdentification) error {
	if f.createFn != nil {
		return f.createFn(ctx, ident)
	}
	ident.ID = 1
	return nil
}

func (f *fakeRepo) ListByUser(ctx context.Context, userID int64) ([]*types.BugIdentification, error) {
	return f.listByUserFn(ctx, userID)
}

func (f *fakeRepo) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	return f.deleteByUserFn(ctx, userID)
}

type fakeSubs struct {
	active bool
	err    error
}

func (f fakeSubs) HasActive(context.Context, int64) (bool, error) { return f.active, f.err }

type fakePublisher struct {
	mu     sync.Mutex
	events []types.IdentificationEvent
	err    error
}

func (f *fakePublisher) PublishIdentification(_ context.Context, evt types.IdentificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

type fakeCounter struct {
	mu      sync.Mutex
	data    map[string]int64
	expires map[string]time.Time
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{data: map[string]int64{}, expires: map[string]time.Time{}}
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.data[key]++
	return redis.NewIntResult(f.data[key], nil)
}

func (f *fakeCounter) Decr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.data[key]--
	return redis.NewIntResult(f.data[key], nil)
}

func (f *fakeCounter) ExpireAt(_ context.Context, key string, tm time.Time) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = tm
	return redis.NewBoolResult(true, nil)
}

const ladybugAnswer = "```json\n" + `{"name":"Seven-spot Ladybird","scientificName":"Coccinella septempunctata","confidence":92,"type":"Beetle","harmLevel":"Beneficial"}` + "\n```"

var testNow = time.Date(2026, 6, 3, 15, 30, 0, 0, time.UTC)

type harness struct {
	svc       *Service
	model     *fakeModel
	repo      *fakeRepo
	publisher *fakePublisher
	counter   *fakeCounter
	metrics   *observability.Metrics
}

func newHarness(subs SubscriptionChecker) *harness {
	h := &harness{
		model: &fakeModel{generateFn: func(context.Context, external.GenerateRequest) (string, error) {
			return ladybugAnswer, nil
		}},
		repo:      &fakeRepo{},
		publisher: &fakePublisher{},
		counter:   newFakeCounter(),
		metrics:   observability.NewMetricsForTesting(),
	}
	h.svc = NewService(Deps{
		Model:     h.model,
		Repo:      h.repo,
		Subs:      subs,
		Quota:     NewQuota(h.counter, 2, nil),
		Publisher: h.publisher,
		Clock:     clockwork.NewFakeClockAt(testNow),
		Metrics:   h.metrics,
	})
	return h
}

func userID(id int64) *int64 { return &id }

// --- tests ---

func TestIdentify_Success(t *testing.T) {
	h := newHarness(fakeSubs{})
	h.repo.createFn = func(_ context.Context, ident *types.BugIdentification) error {
		ident.ID = 55
		ident.IdentifiedAt = testNow
		return nil
	}

	ident, err := h.svc.Identify(context.Background(), userID(9), []string{"data:image/png;base64,AAAA", "BBBB"})
	require.NoError(t, err)

	assert.Equal(t, int64(55), ident.ID)
	assert.Equal(t, "Seven-spot Ladybird", ident.Name)
	assert.Equal(t, "data:image/png;base64,AAAA", ident.ImageURL)
	assert.Equal(t, []string{"BBBB"}, ident.AdditionalImageURLs)
	assert.Equal(t, int64(9), *ident.UserID)

	require.Len(t, h.model.last.Images, 2)
	assert.Equal(t, "AAAA", h.model.last.Images[0].Data)
	assert.Equal(t, "image/jpeg", h.model.last.Images[0].MimeType)
	assert.Equal(t, identificationPrompt, h.model.last.Prompt)

	require.Len(t, h.publisher.events, 1)
	evt := h.publisher.events[0]
	assert.Equal(t, int64(55), evt.IdentificationID)
	assert.Equal(t, 2, evt.ImageCount)
	assert.Equal(t, "Beneficial", evt.HarmLevel)

	assert.Equal(t, int64(1), h.counter.data["identify:quota:user:9:20260603"])
	assert.Equal(t, time.Date(2026, 6, 4, 0, 0, 0, 0, time.UTC), h.counter.expires["identify:quota:user:9:20260603"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Identifications.WithLabelValues("success")))
}

func TestIdentify_NoImages(t *testing.T) {
	h := newHarness(nil)
	_, err := h.svc.Identify(context.Background(), nil, nil)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationNoImages))
}

func TestIdentify_ModelFailuresMapToIdentificationFailed(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		err    error
	}{
		{"upstream error", "", types.NewAppError(types.ErrCodeUpstreamVision, "vision API returned 500", nil)},
		{"no json", "Sorry, I can't help with that.", nil},
		{"invalid json", "{name: nope}", nil},
		{"missing name", `{"confidence": 40}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(nil)
			h.model.generateFn = func(context.Context, external.GenerateRequest) (string, error) {
				return tt.answer, tt.err
			}
			created := false
			h.repo.createFn = func(context.Context, *types.BugIdentification) error {
				created = true
				return nil
			}

			_, err := h.svc.Identify(context.Background(), nil, []string{"AAAA"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIdentificationFailed)
			appErr, ok := types.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, types.ErrCodeInternalIdentification, appErr.Code)
			assert.False(t, created)
			assert.Empty(t, h.publisher.events)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Identifications.WithLabelValues("failed")))
		})
	}
}

func TestIdentify_RepoErrorPropagates(t *testing.T) {
	h := newHarness(nil)
	dbErr := types.NewAppError(types.ErrCodeInternalDB, "failed to save identification", errors.New("conn reset"))
	h.repo.createFn = func(context.Context, *types.BugIdentification) error { return dbErr }

	_, err := h.svc.Identify(context.Background(), userID(1), []string{"AAAA"})
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, ErrIdentificationFailed)
	assert.Zero(t, h.counter.data["identify:quota:user:1:20260603"], "failed identifications give their slot back")
}

func TestIdentify_PublishFailureIsNotFatal(t *testing.T) {
	h := newHarness(nil)
	h.publisher.err = errors.New("sqs down")

	ident, err := h.svc.Identify(context.Background(), nil, []string{"AAAA"})
	require.NoError(t, err)
	assert.NotNil(t, ident)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventPublishErrors))
}

func TestIdentify_Quota(t *testing.T) {
	t.Run("free user blocked after limit", func(t *testing.T) {
		h := newHarness(fakeSubs{active: false})
		ctx := context.Background()
		for i := 0; i < 2; i++ {
			_, err := h.svc.Identify(ctx, userID(4), []string{"AAAA"})
			require.NoError(t, err)
		}
		_, err := h.svc.Identify(ctx, userID(4), []string{"AAAA"})
		assert.True(t, types.HasCode(err, types.ErrCodeLimitIdentifications))
		assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Identifications.WithLabelValues("quota_exceeded")))
	})

	t.Run("subscriber unlimited", func(t *testing.T) {
		h := newHarness(fakeSubs{active: true})
		for i := 0; i < 4; i++ {
			_, err := h.svc.Identify(context.Background(), userID(4), []string{"AAAA"})
			require.NoError(t, err)
		}
		assert.Empty(t, h.counter.data)
	})

	t.Run("anonymous counted by ip", func(t *testing.T) {
		h := newHarness(nil)
		ctx := types.WithClientIP(context.Background(), "203.0.113.7")
		_, err := h.svc.Identify(ctx, nil, []string{"AAAA"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), h.counter.data["identify:quota:ip:203.0.113.7:20260603"])
	})

	t.Run("subscription lookup error", func(t *testing.T) {
		h := newHarness(fakeSubs{err: errors.New("db down")})
		_, err := h.svc.Identify(context.Background(), userID(4), []string{"AAAA"})
		assert.EqualError(t, err, "db down")
	})

	t.Run("over-limit attempt does not consume", func(t *testing.T) {
		h := newHarness(fakeSubs{active: false})
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, _ = h.svc.Identify(ctx, userID(5), []string{"AAAA"})
		}
		assert.Equal(t, int64(2), h.counter.data["identify:quota:user:5:20260603"])
	})

	t.Run("redis down fails open", func(t *testing.T) {
		h := newHarness(nil)
		h.counter.err = errors.New("redis down")
		_, err := h.svc.Identify(context.Background(), userID(4), []string{"AAAA"})
		assert.NoError(t, err)
	})
}

func TestHistory(t *testing.T) {
	h := newHarness(nil)
	want := []*types.BugIdentification{{ID: 2, Name: "Ant"}, {ID: 1, Name: "Bee"}}
	h.repo.listByUserFn = func(_ context.Context, uid int64) ([]*types.BugIdentification, error) {
		assert.Equal(t, int64(8), uid)
		return want, nil
	}
	h.repo.deleteByUserFn = func(_ context.Context, uid int64) (int64, error) {
		return 2, nil
	}

	got, err := h.svc.History(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	n, err := h.svc.ClearHistory(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIdentify_QuotaHoldsUnderConcurrency(t *testing.T) {
	h := newHarness(fakeSubs{active: false})
	release := make(chan struct{})
	h.model.generateFn = func(context.Context, external.GenerateRequest) (string, error) {
		<-release
		return ladybugAnswer, nil
	}

	var succeeded, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Identify(context.Background(), userID(7), []string{"AAAA"})
			switch {
			case err == nil:
				succeeded.Add(1)
			case types.HasCode(err, types.ErrCodeLimitIdentifications):
				limited.Add(1)
			}
		}()
	}

	// Rejections return without waiting on the model.
	require.Eventually(t, func() bool { return limited.Load() == 4 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(2), succeeded.Load())
	assert.Equal(t, int64(2), h.counter.data["identify:quota:user:7:20260603"])
}

func TestIdentify_FailedCallReleasesSlot(t *testing.T) {
	h := newHarness(fakeSubs{active: false})
	ctx := context.Background()
	h.model.generateFn = func(context.Context, external.GenerateRequest) (string, error) {
		return "", errors.New("timeout")
	}
	_, err := h.svc.Identify(ctx, userID(3), []string{"AAAA"})
	require.ErrorIs(t, err, ErrIdentificationFailed)

	h.model.generateFn = func(context.Context, external.GenerateRequest) (string, error) {
		return ladybugAnswer, nil
	}
	for i := 0; i < 2; i++ {
		_, err := h.svc.Identify(ctx, userID(3), []string{"AAAA"})
		require.NoError(t, err, "attempt %d", i+1)
	}
}
