// Package main is the entrypoint for the subscription sweeper Lambda.
//
// EventBridge invokes it on a schedule with a small JSON payload naming the
// task. The default task expires subscriptions whose end date has passed;
// "purge_sessions" deletes lapsed login sessions. A Redis lock keyed by task
// and hour keeps overlapping invocations from doing the work twice.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"bugspotter/internal/billing"
	"bugspotter/internal/config"
	"bugspotter/internal/db"
	"bugspotter/internal/observability"
)

// TaskType names one sweep.
type TaskType string

const (
	TaskExpireSubscriptions TaskType = "expire_subscriptions"
	TaskPurgeSessions       TaskType = "purge_sessions"
)

// lockTTL covers the Lambda timeout with margin.
const lockTTL = 15 * time.Minute

// SweepPayload is the EventBridge input. An empty Task means
// TaskExpireSubscriptions.
type SweepPayload struct {
	Task TaskType `json:"task"`
}

// SubscriptionExpirer is satisfied by billing.SubscriptionService.
type SubscriptionExpirer interface {
	ExpireLapsed(ctx context.Context) (int64, error)
}

// SessionPurger is satisfied by db.SessionRepository.
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MetricRecorder is satisfied by observability.CloudWatchRecorder.
type MetricRecorder interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string)
}

// JobLocker grants a lock to one worker until ttl passes.
type JobLocker interface {
	Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error)
}

type Handler struct {
	Subscriptions SubscriptionExpirer
	Sessions      SessionPurger
	Metrics       MetricRecorder
	Locker        JobLocker
	Clock         clockwork.Clock
	WorkerID      string
	Logger        *slog.Logger
}

// Handle runs one sweep and returns a one-line summary.
func (h *Handler) Handle(ctx context.Context, payload SweepPayload) (string, error) {
	task := payload.Task
	if task == "" {
		task = TaskExpireSubscriptions
	}
	now := h.Clock.Now().UTC()
	logger := h.Logger.With("task", string(task), "worker_id", h.WorkerID)

	lockID := fmt.Sprintf("%s:%s", task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := h.Locker.Acquire(ctx, lockID, h.WorkerID, lockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker", "lock_id", lockID)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	var n int64
	switch task {
	case TaskExpireSubscriptions:
		n, err = h.Subscriptions.ExpireLapsed(ctx)
		if err == nil {
			h.Metrics.Count(ctx, observability.MetricSubscriptionsExpired, float64(n), nil)
		}
	case TaskPurgeSessions:
		n, err = h.Sessions.DeleteExpired(ctx, now)
		if err == nil {
			h.Metrics.Count(ctx, observability.MetricSessionsPurged, float64(n), nil)
		}
	default:
		return "", fmt.Errorf("unknown task type: %q", task)
	}
	if err != nil {
		logger.ErrorContext(ctx, "sweep failed", "error", err)
		return "", fmt.Errorf("task %s failed: %w", task, err)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", task, n)
	logger.InfoContext(ctx, result, "items", n)
	return result, nil
}

// redisLocker implements JobLocker with SET NX.
type redisLocker struct {
	rdb *redis.Client
}

func (l redisLocker) Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, "joblock:"+lockID, workerID, ttl).Result()
}

type sweeperConfig struct {
	DatabaseURL     string `envconfig:"DATABASE_URL" required:"true"`
	RedisAddr       string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword   string `envconfig:"REDIS_PASSWORD"`
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL     string `envconfig:"AWS_ENDPOINT_URL"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"BugSpotter"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("subscription sweeper initializing (cold start)")

	if err := config.ResolveSecrets(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))); err != nil {
		logger.Error("failed to resolve SSM secrets", "error", err)
		os.Exit(1)
	}

	var cfg sweeperConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	clock := clockwork.NewRealClock()
	subs := billing.NewSubscriptionService(
		db.NewSubscriptionRepository(pool),
		billing.NewStaticPlanRegistry(),
		nil,
		billing.CheckoutConfig{},
		clock,
		nil,
		logger,
	)

	handler := &Handler{
		Subscriptions: subs,
		Sessions:      db.NewSessionRepository(pool),
		Metrics:       observability.NewCloudWatchRecorder(cw, cfg.MetricNamespace, logger),
		Locker: redisLocker{rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})},
		Clock:    clock,
		WorkerID: uuid.New().String(),
		Logger:   logger,
	}

	logger.Info("subscription sweeper initialized", "worker_id", handler.WorkerID)
	lambda.Start(handler.Handle)
}
