package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/config"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/notify"
	"github.com/noah-isme/backend-kasir/internal/obs"
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

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse REDIS_URL")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		_ = redisClient.Close()
	}()

	var store db.Store
	switch cfg.StoreDriver {
	case "memory":
		store = db.NewMem()
	default:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
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

	handlers := &tasks.Handlers{
		Store:  store,
		Bus:    bus,
		Locker: lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetry},
		Logger: logger,
	}
	mux := asynq.NewServeMux()
	handlers.Register(mux)

	srv := asynq.NewServer(asynqOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      asynqLogger{logger},
	})

	// Periodic overdue sweep. Enqueued rather than run inline so retries
	// and visibility go through the same task pipeline as everything else.
	client := tasks.NewClient(asynqOpt)
	defer func() {
		_ = client.Close()
	}()
	go func() {
		ticker := time.NewTicker(cfg.OverdueScanEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := client.EnqueueOverdueScan(ctx); err != nil {
					logger.Warn().Err(err).Msg("enqueue overdue scan")
				}
			}
		}
	}()

	go func() {
		logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")
		if err := srv.Run(mux); err != nil {
			logger.Fatal().Err(err).Msg("task server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	srv.Shutdown()
}

// asynqLogger adapts zerolog to asynq's logger interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msgf("%v", args) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msgf("%v", args) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msgf("%v", args) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msgf("%v", args) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msgf("%v", args) }
