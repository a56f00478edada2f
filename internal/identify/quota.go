package identify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFreeDailyLimit is the number of identifications a free caller may
// run per UTC day.
const DefaultFreeDailyLimit = 5

// RedisCounter is the subset of *redis.Client the quota needs.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Decr(ctx context.Context, key string) *redis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd
}

// Quota counts free-tier identifications per subject per UTC day.
// Redis failures fail open: a broken counter never blocks identification.
type Quota struct {
	rdb    RedisCounter
	limit  int
	logger *slog.Logger
}

// NewQuota creates a Quota. A non-positive limit uses DefaultFreeDailyLimit.
func NewQuota(rdb RedisCounter, limit int, logger *slog.Logger) *Quota {
	if limit <= 0 {
		limit = DefaultFreeDailyLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Quota{rdb: rdb, limit: limit, logger: logger}
}

// Limit returns the daily allowance.
func (q *Quota) Limit() int { return q.limit }

func quotaKey(subject string, now time.Time) string {
	return fmt.Sprintf("identify:quota:%s:%s", subject, now.UTC().Format("20060102"))
}

// Reservation is one held slot of a subject's daily allowance. A nil
// Reservation holds nothing, and releasing it is a no-op.
type Reservation struct {
	q       *Quota
	key     string
	subject string
}

// Reserve takes a slot with a single INCR so concurrent callers cannot
// overrun the limit. ok is false when the allowance is used up; the
// increment is undone in that case. The key expires at the next UTC midnight.
func (q *Quota) Reserve(ctx context.Context, subject string, now time.Time) (res *Reservation, ok bool) {
	key := quotaKey(subject, now)
	n, err := q.rdb.Incr(ctx, key).Result()
	if err != nil {
		q.logger.WarnContext(ctx, "identify quota increment failed", "subject", subject, "error", err)
		return nil, true
	}
	if n == 1 {
		y, m, d := now.UTC().Date()
		midnight := time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
		if err := q.rdb.ExpireAt(ctx, key, midnight).Err(); err != nil {
			q.logger.WarnContext(ctx, "identify quota expiry failed", "subject", subject, "error", err)
		}
	}

	res = &Reservation{q: q, key: key, subject: subject}
	if n > int64(q.limit) {
		res.Release(ctx)
		return nil, false
	}
	return res, true
}

// Release gives the slot back, for identifications that did not complete.
// It runs even when ctx is already canceled.
func (r *Reservation) Release(ctx context.Context) {
	if r == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := r.q.rdb.Decr(ctx, r.key).Err(); err != nil {
		r.q.logger.WarnContext(ctx, "identify quota release failed", "subject", r.subject, "error", err)
	}
}
