package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string
	StoreDriver string

	CORSAllowedOrigins []string

	// Register policy. Rates are integer basis points / cents so pricing
	// arithmetic stays exact.
	TaxRateBPS         int
	LateFeeCentsPerDay int64
	RentalDurationDays int
	CurrencyCode       string

	TxMaxRetries    int
	ItemCacheTTL    time.Duration
	IdempotencyTTL  time.Duration
	LockTTL         time.Duration
	LockRetry       time.Duration
	RateLimitFormat string

	WorkerConcurrency int
	OverdueScanEvery  time.Duration

	LogFormat string
	LogLevel  string

	TracingEnabled     bool
	TracingEndpoint    string
	TracingSampleRatio float64

	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),
		StoreDriver: valueOrDefault(strings.ToLower(k.String("STORE_DRIVER")), "postgres"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		TaxRateBPS:         intOrDefault(k, "TAX_RATE_BPS", 800),
		LateFeeCentsPerDay: int64(intOrDefault(k, "LATE_FEE_CENTS_PER_DAY", 200)),
		RentalDurationDays: intOrDefault(k, "RENTAL_DURATION_DAYS", 7),
		CurrencyCode:       valueOrDefault(k.String("CURRENCY_CODE"), "USD"),

		TxMaxRetries:    intOrDefault(k, "TX_MAX_RETRIES", 3),
		ItemCacheTTL:    parseDuration(k.String("ITEM_CACHE_TTL"), "30s"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:         parseDuration(k.String("LOCK_TTL"), "30s"),
		LockRetry:       parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		RateLimitFormat: valueOrDefault(k.String("RATE_LIMIT"), "300-M"),

		WorkerConcurrency: intOrDefault(k, "WORKER_CONCURRENCY", 5),
		OverdueScanEvery:  parseDuration(k.String("OVERDUE_SCAN_EVERY"), "1h"),

		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),

		TracingEnabled:     strings.EqualFold(k.String("TRACING_ENABLED"), "true"),
		TracingEndpoint:    k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TracingSampleRatio: floatOrDefault(k, "TRACING_SAMPLE_RATIO", 1.0),

		WebhookURL:     k.String("WEBHOOK_URL"),
		WebhookSecret:  k.String("WEBHOOK_SECRET"),
		WebhookTimeout: parseDuration(k.String("WEBHOOK_TIMEOUT"), "5s"),
	}

	if cfg.TaxRateBPS < 0 {
		return nil, errors.New("TAX_RATE_BPS must be non-negative")
	}
	if cfg.LateFeeCentsPerDay < 0 {
		return nil, errors.New("LATE_FEE_CENTS_PER_DAY must be non-negative")
	}
	if cfg.RentalDurationDays <= 0 {
		return nil, errors.New("RENTAL_DURATION_DAYS must be positive")
	}
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required with the postgres store")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// RentalDuration returns the default rental duration as a time.Duration.
func (c *Config) RentalDuration() time.Duration {
	return time.Duration(c.RentalDurationDays) * 24 * time.Hour
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(k *koanf.Koanf, key string, fallback int) int {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Int(key)
}

func floatOrDefault(k *koanf.Koanf, key string, fallback float64) float64 {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	return k.Float64(key)
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
