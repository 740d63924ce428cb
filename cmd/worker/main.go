package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-checkout/internal/app"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.Component(obs.NewLogger(cfg.LogFormat, cfg.LogLevel), "worker")
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required for the webhook worker")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	deps, err := app.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	deliveryWorker, err := deps.DeliveryWorker()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise delivery worker")
	}
	if len(cfg.WebhookURLs) == 0 {
		logger.Warn().Msg("no webhook endpoints configured; events are acknowledged without delivery")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{"webhooks": 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			// 2s, 4s, 8s ... capped at five minutes
			d := time.Duration(1<<min(n+1, 8)) * time.Second
			return min(d, 5*time.Minute)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	mux := asynq.NewServeMux()
	mux.Handle(events.TaskDeliverEvent, deliveryWorker)

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logger.Info().Str("signal", sig.String()).Msg("worker shutting down")
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
