package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"bugspotter/internal/api/handlers"
	"bugspotter/internal/auth"
	"bugspotter/internal/billing"
	"bugspotter/internal/config"
	"bugspotter/internal/core"
	"bugspotter/internal/db"
	"bugspotter/internal/external"
	"bugspotter/internal/identify"
	"bugspotter/internal/logbook"
	"bugspotter/internal/observability"
	"bugspotter/internal/queue"
	"bugspotter/internal/types"
	"bugspotter/internal/weather"
)

// Outbound timeouts per vendor. Vision calls carry several megabytes of
// images and retry twice.
const (
	weatherTimeout = 10 * time.Second
	geminiTimeout  = 45 * time.Second
	stripeTimeout  = 20 * time.Second
)

// newApp connects Postgres and Redis, builds every domain service and
// returns a server with all routes mounted.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetricsWithRegistry(reg)
	srv.Metrics = metrics
	srv.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	pool, err := db.Connect(ctx, cfg.Database.URL.Unmask(), db.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, err
	}
	srv.OnShutdown(func() error {
		pool.Close()
		return nil
	})

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password.Unmask(),
		DB:       cfg.Redis.DB,
	})
	srv.OnShutdown(rdb.Close)

	srv.HealthProbes = []core.HealthProbe{
		core.NewProbe("database", pool.Ping),
		core.NewProbe("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	}

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	svc := buildServices(cfg, pool, rdb, publisher, metrics, logger)

	srv.Authenticator = svc.auth
	srv.IPBlocker = svc.security
	srv.RateLimitStore = core.NewRedisRateLimitStore(rdb, svc.clock)
	srv.RouteRegistrars = routeRegistrars(cfg, srv.Validator, svc, logger)

	srv.MountRoutes()
	return srv, nil
}

type services struct {
	clock        clockwork.Clock
	security     *auth.SecurityService
	auth         *auth.Service
	activity     *weather.ActivityService
	subscription *billing.SubscriptionService
	identify     *identify.Service
	logbook      *logbook.Service
}

func buildServices(
	cfg *config.Config,
	pool *pgxpool.Pool,
	rdb *redis.Client,
	publisher identify.EventPublisher,
	metrics *observability.Metrics,
	logger *slog.Logger,
) services {
	clock := clockwork.NewRealClock()

	security := auth.NewSecurityService(rdb, auth.SecurityConfig{
		IPBlockThreshold:         cfg.Auth.IPThreshold,
		IdentifierBlockThreshold: cfg.Auth.IdentifierThreshold,
		WindowDuration:           cfg.Auth.LockoutWindow,
	}, logger)
	sessions := auth.NewSessionService(
		db.NewSessionRepository(pool),
		auth.NewCryptoTokenGenerator(),
		auth.SessionConfig{SessionDuration: cfg.Auth.SessionTTL},
		clock,
		logger,
	)
	authSvc := auth.NewService(auth.ServiceDeps{
		Users:     db.NewUserRepository(pool),
		Sessions:  sessions,
		TxManager: auth.NewTxManager(pool),
		Guard:     auth.NewBruteForceProtector(security),
		Logger:    logger,
	})

	var live weather.Provider
	if cfg.Weather.APIKey.IsSet() {
		live = external.NewOpenWeatherClient(&http.Client{Timeout: weatherTimeout}, external.OpenWeatherConfig{
			APIKey:  cfg.Weather.APIKey.Unmask(),
			BaseURL: cfg.Weather.BaseURL,
			RPS:     cfg.Weather.RPS,
			Burst:   cfg.Weather.Burst,
			Logger:  logger,
		})
	} else {
		logger.Warn("WEATHER_API_KEY not set, serving generated weather readings")
	}
	provider := weather.NewProvider(live, weather.NewMockProvider(clock), rdb, cfg.Weather.CacheTTL, metrics, logger)

	var checkout external.CheckoutProvider
	if cfg.Billing.StripeSecretKey.IsSet() {
		checkout = external.NewStripeClient(&http.Client{Timeout: stripeTimeout}, external.StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			Logger:    logger,
		})
	}
	subs := billing.NewSubscriptionService(
		db.NewSubscriptionRepository(pool),
		billing.NewStaticPlanRegistry(),
		checkout,
		billing.CheckoutConfig{
			PriceIDs: map[types.PlanType]string{
				types.PlanMonthly: cfg.Billing.MonthlyPriceID,
				types.PlanYearly:  cfg.Billing.YearlyPriceID,
			},
			PublicURL: cfg.Server.PublicURL,
		},
		clock, metrics, logger,
	)

	idents := db.NewIdentificationRepository(pool)
	identSvc := identify.NewService(identify.Deps{
		Model: external.NewGeminiClient(&http.Client{Timeout: geminiTimeout}, external.GeminiConfig{
			APIKey:  cfg.Gemini.APIKey.Unmask(),
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
			Logger:  logger,
		}),
		Repo:      idents,
		Subs:      subs,
		Quota:     identify.NewQuota(rdb, cfg.Identify.FreeDailyLimit, logger),
		Publisher: publisher,
		Clock:     clock,
		Metrics:   metrics,
		Logger:    logger,
	})

	return services{
		clock:        clock,
		security:     security,
		auth:         authSvc,
		activity:     weather.NewActivityService(provider, clock, metrics, logger),
		subscription: subs,
		identify:     identSvc,
		logbook:      logbook.NewService(db.NewLogbookRepository(pool), idents, logger),
	}
}

// routeRegistrars mounts every handler group under /api. The Stripe webhook
// is only exposed when a signing secret is configured.
func routeRegistrars(cfg *config.Config, v *core.Validator, svc services, logger *slog.Logger) []core.RouteRegistrar {
	registrars := []core.RouteRegistrar{
		handlers.NewAuthHandler(svc.auth, v, !cfg.IsLocal(), logger).RegisterRoutes,
		handlers.NewActivityHandler(svc.activity, logger).RegisterRoutes,
		handlers.NewIdentifyHandler(svc.identify, logger).RegisterRoutes,
		handlers.NewLogbookHandler(svc.logbook, v, logger).RegisterRoutes,
		handlers.NewBillingHandler(svc.subscription, v, logger).RegisterRoutes,
	}
	if cfg.Billing.StripeWebhookSecret.IsSet() {
		webhook := handlers.NewStripeWebhookHandler(
			&external.StripeVerifier{},
			svc.subscription,
			cfg.Billing.StripeWebhookSecret.Unmask(),
			logger,
		)
		registrars = append(registrars, webhook.RegisterRoutes)
	}
	return registrars
}

// newPublisher returns the SQS publisher, or a no-op one when no queue is
// configured.
func newPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (identify.EventPublisher, error) {
	if cfg.AWS.IdentificationQueueURL == "" {
		logger.Info("SQS_IDENTIFICATION_EVENTS not set, identification events are not published")
		return queue.NoopPublisher{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	return queue.NewIdentificationPublisher(client, cfg.AWS, logger), nil
}
