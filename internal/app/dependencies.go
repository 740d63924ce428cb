package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/clients"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/notify"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

// Dependencies holds the infrastructure shared by the API and the worker.
// DB and Redis are nil when their URLs are not configured.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Tasks  *asynq.Client

	Validator *validator.Validate
}

// New connects to Postgres and Redis as configured and applies migrations.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Logger: logger, Validator: validator.New()}

	if cfg.DatabaseURL != "" {
		if err := db.Up(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		deps.DB = pool
	}

	if cfg.RedisURL != "" {
		client, err := NewRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Redis = client
		if cfg.EventsEnabled {
			opt, err := asynq.ParseRedisURI(cfg.RedisURL)
			if err != nil {
				deps.Close()
				return nil, fmt.Errorf("parse redis url for tasks: %w", err)
			}
			deps.Tasks = asynq.NewClient(opt)
		}
	}
	return deps, nil
}

// NewPool opens a traced pgx pool.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-checkout"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewRedis opens a Redis client instrumented for tracing and metrics.
func NewRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Locker returns the Redis lock when Redis is available and an in-process lock otherwise.
func (d *Dependencies) Locker() lock.Runner {
	if d.Redis != nil {
		return lock.Locker{R: d.Redis, RetryBackoff: d.Config.LockRetryBackoff, Prefix: "lock:"}
	}
	return lock.NewLocal()
}

// EventBus persists events in Postgres when configured and schedules webhook
// delivery through asynq when a task client exists.
func (d *Dependencies) EventBus() *events.Bus {
	bus := &events.Bus{Store: &events.MemoryStore{}}
	if d.DB != nil {
		bus.Store = events.PGStore{DB: d.DB}
	}
	if d.Tasks != nil {
		bus.Scheduler = events.AsynqScheduler{
			Client:    d.Tasks,
			Queue:     "webhooks",
			MaxRetry:  d.Config.WebhookMaxAttempts,
			Retention: 24 * time.Hour,
		}
	}
	return bus
}

// DeliveryWorker builds the asynq handler that posts events to webhooks.
func (d *Dependencies) DeliveryWorker() (notify.DeliveryWorker, error) {
	if d.Redis == nil {
		return notify.DeliveryWorker{}, errors.New("webhook worker requires REDIS_URL")
	}
	logger := obs.Component(d.Logger, "webhook")
	dispatcher := &notify.Dispatcher{
		Endpoints: d.Config.WebhookURLs,
		Secret:    d.Config.WebhookSecret,
		HTTP: clients.NewHTTP("webhook", clients.Options{
			Timeout:             d.Config.WebhookRequestTimeout,
			MaxAttempts:         1,
			CircuitMinRequests:  d.Config.CircuitMinRequests,
			CircuitFailureRatio: d.Config.CircuitFailureRatio,
			CircuitOpenFor:      d.Config.CircuitOpenFor,
			Logger:              &logger,
		}),
		Replay:    notify.RedisReplayGuard{Client: d.Redis},
		ReplayTTL: 24 * time.Hour,
		Logger:    logger,
	}
	if d.DB != nil {
		dispatcher.Log = notify.PGDeliveryLog{DB: d.DB}
	}
	return notify.DeliveryWorker{Dispatcher: dispatcher, Locker: d.Locker(), LockTTL: d.Config.WebhookRequestTimeout * 2}, nil
}

// Close releases every open connection.
func (d *Dependencies) Close() {
	if d.Tasks != nil {
		if err := d.Tasks.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
