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
	"meetsync/internal/logging"
	"meetsync/internal/state"
	"meetsync/internal/suggest"
	"meetsync/internal/worker"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New("worker", cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.ValidateForWorker(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := app.New(cfg, logger)
	defer deps.Close()
	deps.CheckConnectivity(ctx)

	consumer, err := deps.Consumer(ctx)
	if err != nil {
		logger.Fatal("consumer init failed", zap.String("driver", cfg.Queue.Driver), zap.Error(err))
	}
	dlq, err := deps.DeadLetter(ctx)
	if err != nil {
		logger.Fatal("dead letter init failed", zap.Error(err))
	}
	client, err := suggest.NewClient(cfg.Suggest.BaseURL, cfg.Suggest.Timeout)
	if err != nil {
		logger.Fatal("suggest client init failed", zap.Error(err))
	}

	runner, err := worker.New(consumer, state.NewTracker(deps.Redis()), client, dlq, worker.Options{
		Config:  cfg.Worker.Config,
		Logger:  logger,
		Metrics: deps.Metrics(ctx),
	})
	if err != nil {
		logger.Fatal("worker init failed", zap.Error(err))
	}

	logger.Info("worker starting",
		zap.String("queue", cfg.Queue.Driver),
		zap.String("group", cfg.Worker.GroupID),
		zap.Int("max_attempts", cfg.Worker.MaxAttempts),
		zap.Duration("job_timeout", cfg.Worker.JobTimeout),
	)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("worker shutting down")
}
