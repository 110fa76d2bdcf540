package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"meetsync/internal/app"
	"meetsync/internal/config"
	"meetsync/internal/dispatcher"
	"meetsync/internal/logging"
	"meetsync/internal/retry"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New("retry-dispatcher", cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.ValidateForRetryDispatcher(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only kafka parks retries in redis; the other drivers redeliver natively.
	cfg.Queue.Driver = config.QueueKafka
	deps := app.New(cfg, logger)
	defer deps.Close()
	deps.CheckConnectivity(ctx)

	jobs, err := deps.Jobs(ctx)
	if err != nil {
		logger.Fatal("kafka producer init failed", zap.Error(err))
	}
	rdb := deps.Redis()
	d, err := dispatcher.New(rdb, retry.NewScheduler(rdb), jobs, cfg.RetryDispatcher, logger)
	if err != nil {
		logger.Fatal("dispatcher init failed", zap.Error(err))
	}

	logger.Info("retry-dispatcher starting",
		zap.Duration("poll_interval", cfg.RetryDispatcher.PollInterval),
		zap.Int64("batch", cfg.RetryDispatcher.Batch),
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
	)
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("retry-dispatcher stopped with error", zap.Error(err))
		return
	}
	logger.Info("retry-dispatcher shutting down")
}
