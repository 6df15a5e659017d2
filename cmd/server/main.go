package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	module "github.com/dmitrymomot/billingkit/modules/billing"
	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/entitlement"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/ratelimit"
	"github.com/dmitrymomot/billingkit/pkg/redis"
)

type appConfig struct {
	Log     logger.Config
	PG      pg.Config
	Redis   redis.Config
	HTTP    httpserver.Config
	Billing billing.Config

	PlansPath       string        `env:"PLANS_PATH" envDefault:"plans.yaml"`
	RateTier        string        `env:"RATE_LIMIT_TIER" envDefault:"free"`
	SignatureHeader string        `env:"BILLING_SIGNATURE_HEADER"` // defaults to Paddle-Signature
	PruneInterval   time.Duration `env:"LEDGER_PRUNE_INTERVAL" envDefault:"24h"`
}

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg appConfig
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", logger.Error(err))
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Log, logger.WithAttr(slog.String("app", "billingkit")))
	logger.SetAsDefault(log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close() //nolint:errcheck

	registry, err := entitlement.NewRegistry(ctx, entitlement.NewYAMLSource(cfg.PlansPath))
	if err != nil {
		return err
	}

	store := entitlement.NewStore(pool)
	cache := entitlement.NewRedisCache(redisClient, log)
	entitlements := entitlement.NewService(store, cache, registry, log)

	eventLedger := ledger.New(pool)
	go pruneLoop(ctx, eventLedger, cfg.PruneInterval, log)

	provider, err := billing.NewProvider(cfg.Billing)
	if err != nil {
		return err
	}

	processor := billing.NewProcessor(provider, pool, eventLedger,
		billing.DefaultHandlers(store, registry),
		billing.WithInvalidator(cache),
		billing.WithProcessorLogger(log),
	)

	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(redisClient), ratelimit.WithLogger(log))
	rateLimit, err := ratelimit.TierMiddleware(limiter, ratelimit.DefaultTiers(), cfg.RateTier, nil)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient),
	))

	r.Mount("/", module.Router(module.RouterOptions{
		Webhook: module.NewWebhookService(processor,
			module.WithWebhookLogger(log),
			module.WithSignatureHeader(cfg.SignatureHeader),
		),
		Entitlements: module.NewEntitlementService(entitlements, log),
		RateLimit:    rateLimit,
		Internal:     module.NewInternalService(entitlements, log),
	}))

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
	return srv.Run(ctx, r)
}

// pruneLoop trims processed-event rows past the retention window.
func pruneLoop(ctx context.Context, l *ledger.Ledger, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := l.Prune(ctx)
			if err != nil {
				log.ErrorContext(ctx, "ledger prune failed", logger.Error(err))
				continue
			}
			if pruned > 0 {
				log.InfoContext(ctx, "pruned processed events", slog.Int64("count", pruned))
			}
		}
	}
}
