package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"meetsync/internal/app"
	"meetsync/internal/config"
	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/state"
	"meetsync/internal/suggest"
	"meetsync/internal/worker"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New("worker-lambda", cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.ValidateForLambda(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx := context.Background()
	cfg.Queue.Driver = config.QueueSQS
	deps := app.New(cfg, logger)
	defer deps.Close()

	var dlq queue.Producer
	if cfg.Queue.DLQURL != "" {
		if dlq, err = deps.DeadLetter(ctx); err != nil {
			logger.Fatal("dead letter init failed", zap.Error(err))
		}
	}
	client, err := suggest.NewClient(cfg.Suggest.BaseURL, cfg.Suggest.Timeout)
	if err != nil {
		logger.Fatal("suggest client init failed", zap.Error(err))
	}

	h := NewHandler(state.NewTracker(deps.Redis()), client, dlq, worker.Options{
		Config:  cfg.Worker.Config,
		Logger:  logger,
		Metrics: deps.Metrics(ctx),
	})

	// RUN_LOCAL feeds one record from LOCAL_SQS_BODY through the handler.
	if os.Getenv("RUN_LOCAL") == "true" {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"case_id":"local-case","job_id":"local-job","userId1":"a@example.com","userId2":"b@example.com"}`
		}
		resp, err := h.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-1", Body: body}}})
		if err != nil {
			logger.Fatal("local handler error", zap.Error(err))
		}
		logger.Info("local run finished", zap.Int("failures", len(resp.BatchItemFailures)))
		return
	}

	lambda.Start(h.Handle)
}
