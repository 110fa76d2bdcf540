package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	segkafka "github.com/segmentio/kafka-go"

	"meetsync/internal/queue"
)

type reader interface {
	FetchMessage(ctx context.Context) (segkafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...segkafka.Message) error
	Close() error
}

// RetryScheduler parks a job body for later republishing. Kafka has no
// per-message redelivery, so Requeue hands the body to it before committing.
type RetryScheduler interface {
	Schedule(ctx context.Context, jobID string, body []byte, delay time.Duration) error
}

type KafkaGoConsumer struct {
	reader      reader
	retries     RetryScheduler
	outstanding *segkafka.Message
}

func NewKafkaGoConsumer(cfg Config, groupID string, retries RetryScheduler) (*KafkaGoConsumer, error) {
	if err := cfg.ValidateJobs(); err != nil {
		return nil, err
	}
	if groupID == "" {
		return nil, fmt.Errorf("groupID is required")
	}
	if retries == nil {
		return nil, fmt.Errorf("retry scheduler is required")
	}
	r := segkafka.NewReader(segkafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.JobsTopic,
		GroupID:     groupID,
		StartOffset: segkafka.FirstOffset,
	})
	return &KafkaGoConsumer{reader: r, retries: retries}, nil
}

func newKafkaGoConsumerWithReader(r reader, retries RetryScheduler) *KafkaGoConsumer {
	return &KafkaGoConsumer{reader: r, retries: retries}
}

func (c *KafkaGoConsumer) Poll(ctx context.Context) (queue.Message, error) {
	if c.outstanding != nil {
		return queue.Message{}, queue.ErrPrefetchExceeded
	}
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return queue.Message{}, err
	}
	c.outstanding = &msg
	return queue.Message{
		ID:   msg.Topic + "/" + strconv.Itoa(msg.Partition) + "/" + strconv.FormatInt(msg.Offset, 10),
		Key:  string(msg.Key),
		Body: msg.Value,
		Raw:  msg,
	}, nil
}

// Ack commits the offset of msg.
func (c *KafkaGoConsumer) Ack(ctx context.Context, msg queue.Message) error {
	raw, err := c.take(msg)
	if err != nil {
		return err
	}
	if err := c.reader.CommitMessages(ctx, raw); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}
	return nil
}

func (c *KafkaGoConsumer) Requeue(ctx context.Context, msg queue.Message, delay time.Duration) error {
	raw, err := c.take(msg)
	if err != nil {
		return err
	}
	if err := c.retries.Schedule(ctx, msg.Key, msg.Body, delay); err != nil {
		// offset stays uncommitted so the group redelivers after a rebalance
		return err
	}
	if err := c.reader.CommitMessages(ctx, raw); err != nil {
		return fmt.Errorf("commit offset: %w", err)
	}
	return nil
}

func (c *KafkaGoConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func (c *KafkaGoConsumer) take(msg queue.Message) (segkafka.Message, error) {
	raw, ok := msg.Raw.(segkafka.Message)
	if !ok {
		return segkafka.Message{}, errors.New("not a kafka message")
	}
	if c.outstanding != nil && c.outstanding.Partition == raw.Partition && c.outstanding.Offset == raw.Offset {
		c.outstanding = nil
	}
	return raw, nil
}
