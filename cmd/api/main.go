package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"meetsync/internal/aggregate"
	"meetsync/internal/api"
	"meetsync/internal/app"
	"meetsync/internal/cacheaside"
	"meetsync/internal/config"
	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/state"
	"meetsync/internal/worker"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New("api", cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.ValidateForAPI(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := app.New(cfg, logger)
	defer deps.Close()
	deps.CheckConnectivity(ctx)

	st, err := deps.Store(ctx)
	if err != nil {
		logger.Fatal("store init failed", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	c := deps.Cache()
	accessor, err := cacheaside.New(st, c, cfg.Cache.TTL(), logger)
	if err != nil {
		logger.Fatal("accessor init failed", zap.Error(err))
	}
	agg := aggregate.New(accessor)

	jobs, err := deps.Jobs(ctx)
	if err != nil {
		logger.Fatal("queue init failed", zap.String("driver", cfg.Queue.Driver), zap.Error(err))
	}
	publisher := queue.NewPublisher(jobs, cfg.Queue.Name, logger)

	r := api.NewRouter(accessor, agg, publisher, api.Options{
		Health: map[string]api.Pinger{"store": st, "redis": c},
		Logger: logger,
	})
	server := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", zap.String("addr", cfg.API.Addr), zap.String("store", cfg.Store.Driver), zap.String("queue", cfg.Queue.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// The memory queue lives in this process, so its worker does too.
	if cfg.Queue.Driver == config.QueueMemory {
		consumer, err := deps.Consumer(ctx)
		if err != nil {
			logger.Fatal("consumer init failed", zap.Error(err))
		}
		dlq, err := deps.DeadLetter(ctx)
		if err != nil {
			logger.Fatal("dead letter init failed", zap.Error(err))
		}
		w, err := worker.New(consumer, state.NewTracker(deps.Redis()), agg, dlq, worker.Options{
			Config:  cfg.Worker.Config,
			Logger:  logger.Named("worker"),
			Metrics: deps.Metrics(ctx),
		})
		if err != nil {
			logger.Fatal("worker init failed", zap.Error(err))
		}
		g.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
		return
	}
	logger.Info("api shutting down")
}
