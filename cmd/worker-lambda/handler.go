package main

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"meetsync/internal/queue"
	"meetsync/internal/worker"
)

var errRedrive = errors.New("no dead-letter queue configured; leaving the message to the redrive policy")

// Handler runs each SQS record through the worker. Records that end up
// requeued are reported as batch item failures so only they are redelivered.
type Handler struct {
	tracker    worker.Tracker
	processor  worker.Processor
	deadLetter queue.Producer
	opts       worker.Options
}

// NewHandler builds a Handler. A nil deadLetter leaves exhausted jobs to the
// queue's redrive policy.
func NewHandler(tracker worker.Tracker, processor worker.Processor, deadLetter queue.Producer, opts worker.Options) *Handler {
	if deadLetter == nil {
		deadLetter = redriveOnly{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{tracker: tracker, processor: processor, deadLetter: deadLetter, opts: opts}
}

func (h *Handler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	batch := &batchConsumer{failed: map[string]bool{}}
	w, err := worker.New(batch, h.tracker, h.processor, h.deadLetter, h.opts)
	if err != nil {
		return events.SQSEventResponse{}, err
	}

	h.opts.Logger.Info("received SQS batch", zap.Int("records", len(ev.Records)))
	for _, rec := range ev.Records {
		if err := w.Handle(ctx, toMessage(rec)); errors.Is(err, worker.ErrSettleFailed) {
			batch.fail(rec.MessageId)
		}
	}
	return batch.response(ev), nil
}

func toMessage(rec events.SQSMessage) queue.Message {
	msg := queue.Message{
		ID:   rec.MessageId,
		Body: []byte(rec.Body),
		Raw:  rec.ReceiptHandle,
	}
	if attr, ok := rec.MessageAttributes["job_id"]; ok && attr.StringValue != nil {
		msg.Key = *attr.StringValue
	}
	if n, err := strconv.Atoi(rec.Attributes["ApproximateReceiveCount"]); err == nil {
		msg.Deliveries = n
	}
	return msg
}

// batchConsumer settles messages by recording them; the Lambda runtime
// deletes every record not reported as failed.
type batchConsumer struct {
	mu     sync.Mutex
	failed map[string]bool
}

func (b *batchConsumer) Poll(ctx context.Context) (queue.Message, error) {
	return queue.Message{}, errors.New("batch consumer does not poll")
}

func (b *batchConsumer) Ack(ctx context.Context, msg queue.Message) error {
	return nil
}

// Requeue marks msg failed. The delay is governed by the queue's visibility
// timeout.
func (b *batchConsumer) Requeue(ctx context.Context, msg queue.Message, delay time.Duration) error {
	b.fail(msg.ID)
	return nil
}

func (b *batchConsumer) Close() error { return nil }

func (b *batchConsumer) fail(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed[id] = true
}

func (b *batchConsumer) response(ev events.SQSEvent) events.SQSEventResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	resp := events.SQSEventResponse{}
	for _, rec := range ev.Records {
		if b.failed[rec.MessageId] {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp
}

type redriveOnly struct{}

func (redriveOnly) Publish(ctx context.Context, key string, body []byte) error { return errRedrive }

func (redriveOnly) Close() error { return nil }
