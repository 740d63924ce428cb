package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	LogLevel           string
	LogFormat          string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string

	SessionStore     string
	SessionTTL       time.Duration
	SessionKeyPrefix string
	LockTTL          time.Duration
	LockRetryBackoff time.Duration
	IdempotencyTTL   time.Duration

	CartServiceURL     string
	ShippingServiceURL string
	DiscountServiceURL string
	OrderServiceURL    string
	PaymentServiceURL  string
	ProfileServiceURL  string
	PaymentLanguage    string

	OutboundTimeout     time.Duration
	RetryMaxAttempts    int
	RetryBase           time.Duration
	RetryJitterPercent  float64
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration

	RateLimitVoucherPerMin int
	RateLimitSessionRate   string

	WebhookURLs            []string
	WebhookSecret          string
	WebhookRequestTimeout  time.Duration
	WebhookMaxAttempts     int
	WorkerConcurrency      int
	EventsEnabled          bool
	MetricsNamespace       string
	OTELExporterEndpoint   string
	OTELTracesSamplerRatio float64
	TracingEnabled         bool
	MetricsEnabled         bool
	MetricsBucketsMS       string

	BodyLimitBytes  int64
	EnableHSTS      bool
	PprofEnabled    bool
	PprofUser       string
	PprofPassword   string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		SessionStore:     strings.ToLower(valueOrDefault(k.String("CHECKOUT_SESSION_STORE"), "redis")),
		SessionTTL:       parseDuration(k.String("CHECKOUT_SESSION_TTL"), "30m"),
		SessionKeyPrefix: valueOrDefault(k.String("CHECKOUT_SESSION_PREFIX"), "checkout:session:"),
		LockTTL:          parseDuration(k.String("CHECKOUT_LOCK_TTL"), "10s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		CartServiceURL:     strings.TrimSpace(k.String("CART_SERVICE_URL")),
		ShippingServiceURL: strings.TrimSpace(k.String("SHIPPING_SERVICE_URL")),
		DiscountServiceURL: strings.TrimSpace(k.String("DISCOUNT_SERVICE_URL")),
		OrderServiceURL:    strings.TrimSpace(k.String("ORDER_SERVICE_URL")),
		PaymentServiceURL:  strings.TrimSpace(k.String("PAYMENT_SERVICE_URL")),
		ProfileServiceURL:  strings.TrimSpace(k.String("PROFILE_SERVICE_URL")),
		PaymentLanguage:    valueOrDefault(k.String("PAYMENT_LANGUAGE"), "id"),

		OutboundTimeout:     parseDuration(k.String("OUTBOUND_TIMEOUT"), "3s"),
		RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:           parseDuration(k.String("RETRY_BASE"), "100ms"),
		RetryJitterPercent:  parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		RateLimitVoucherPerMin: parseInt(k.String("RATE_LIMIT_VOUCHER_PER_MIN"), 30),
		RateLimitSessionRate:   valueOrDefault(k.String("RATE_LIMIT_SESSION_RATE"), "20-M"),

		WebhookURLs:            splitAndTrim(k.String("WEBHOOK_URLS")),
		WebhookSecret:          k.String("WEBHOOK_SECRET"),
		WebhookRequestTimeout:  parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "5s"),
		WebhookMaxAttempts:     parseInt(k.String("WEBHOOK_MAX_ATTEMPTS"), 6),
		WorkerConcurrency:      parseInt(k.String("WORKER_CONCURRENCY"), 10),
		EventsEnabled:          parseBoolDefault(k.String("EVENTS_ENABLED"), true),
		MetricsNamespace:       valueOrDefault(k.String("METRICS_NAMESPACE"), "toko_checkout"),
		OTELExporterEndpoint:   strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELTracesSamplerRatio: parseFloat(k.String("OTEL_TRACES_SAMPLER_RATIO"), 1),
		TracingEnabled:         parseBoolDefault(k.String("TRACING_ENABLED"), true),
		MetricsEnabled:         parseBoolDefault(k.String("METRICS_ENABLED"), true),
		MetricsBucketsMS:       k.String("METRICS_BUCKETS_MS"),

		BodyLimitBytes:  int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64<<10)),
		EnableHSTS:      parseBool(k.String("ENABLE_HSTS")),
		PprofEnabled:    parseBool(k.String("PPROF_ENABLED")),
		PprofUser:       k.String("PPROF_BASIC_AUTH_USER"),
		PprofPassword:   k.String("PPROF_BASIC_AUTH_PASS"),
		ShutdownTimeout: parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
	}

	switch cfg.SessionStore {
	case "redis", "memory":
	default:
		return nil, fmt.Errorf("CHECKOUT_SESSION_STORE must be redis or memory, got %q", cfg.SessionStore)
	}
	if cfg.SessionStore == "redis" && cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.RetryMaxAttempts < 1 {
		cfg.RetryMaxAttempts = 1
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
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

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
