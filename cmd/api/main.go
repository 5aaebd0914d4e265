package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/checkout"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/config"
	"github.com/noah-isme/backend-kasir/internal/coupon"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/health"
	"github.com/noah-isme/backend-kasir/internal/notify"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/rental"
	"github.com/noah-isme/backend-kasir/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "kasir-api",
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingSampleRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("init tracer")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("tracer shutdown")
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := obs.NewHTTPMetrics("kasir", nil, registry)
	obs.MustRegisterDomainMetrics("kasir", registry)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse REDIS_URL")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		_ = redisClient.Close()
	}()
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Warn().Err(err).Msg("instrument redis tracing")
		}
	}

	var (
		store db.Store
		pool  *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case "memory":
		store = db.NewMem()
		logger.Warn().Msg("running with the in-memory store; data is not durable")
	default:
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse DATABASE_URL")
		}
		if cfg.TracingEnabled {
			poolCfg.ConnConfig.Tracer = obs.PGXTracer{}
		}
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect postgres")
		}
		defer pool.Close()
		store = db.NewPG(pool, cfg.TxMaxRetries)
	}

	bus := &events.Bus{Store: store}
	if cfg.WebhookURL != "" {
		hook, err := notify.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("configure webhook")
		}
		bus.Notifiers = append(bus.Notifiers, hook)
	}

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse REDIS_URL for tasks")
	}
	taskClient := tasks.NewClient(asynqOpt)
	defer func() {
		_ = taskClient.Close()
	}()

	validate := validator.New()

	rentalSvc := rental.NewService(store, bus, cfg.LateFeeCentsPerDay, cfg.RentalDuration())
	checkoutSvc := checkout.NewService(store, bus, rentalSvc, cfg.TaxRateBPS, cfg.CurrencyCode)
	checkoutSvc.Tasks = taskClient
	couponSvc := coupon.NewService(store)
	catalogSvc := &catalog.Service{Store: store, Cache: catalog.NewCache(redisClient, cfg.ItemCacheTTL)}

	checkoutH := &checkout.Handler{Svc: checkoutSvc, Validate: validate}
	rentalH := &rental.Handler{Svc: rentalSvc}
	couponH := &coupon.Handler{Svc: couponSvc, Validate: validate}
	catalogH := &catalog.Handler{Svc: catalogSvc, Validate: validate}

	probes := map[string]health.Probe{
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if pool != nil {
		probes["db"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	}
	healthH := health.Handler{Probes: probes}

	rate, err := limiter.NewRateFromFormatted(cfg.RateLimitFormat)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse RATE_LIMIT")
	}
	limiterStore, err := limiterredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "kasir:rl"})
	if err != nil {
		logger.Fatal().Err(err).Msg("init rate limiter store")
	}
	rateLimit := limiterstdlib.NewMiddleware(limiter.New(limiterStore, rate))

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthH.Live)
	r.Get("/readyz", healthH.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit.Handler)

		r.Get("/items", catalogH.List)
		r.Get("/items/{sku}", catalogH.Get)
		r.Get("/transactions", checkoutH.List)
		r.Get("/transactions/{number}", checkoutH.Get)
		r.Get("/rentals", rentalH.List)
		r.Get("/reports/daily", checkoutH.DailyReport)
		r.Post("/coupons/preview", couponH.Preview)

		r.Group(func(r chi.Router) {
			r.Use(idem.Middleware)
			r.Post("/items", catalogH.Create)
			r.Post("/coupons", couponH.Create)
			r.Post("/transactions", checkoutH.Create)
			r.Post("/rentals/{id}/return", rentalH.Return)
			r.Post("/rentals/{id}/extend", rentalH.Extend)
		})
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("store", cfg.StoreDriver).Msg("api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
