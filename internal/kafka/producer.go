package kafka

import (
	"context"
	"fmt"

	segkafka "github.com/segmentio/kafka-go"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...segkafka.Message) error
	Close() error
}

// KafkaGoProducer writes to one topic and returns once every in-sync replica
// has the message.
type KafkaGoProducer struct {
	writer writer
	topic  string
}

func NewKafkaGoProducer(cfg Config, topic string) (*KafkaGoProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka.brokers is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	w := &segkafka.Writer{
		Addr:         segkafka.TCP(cfg.Brokers...),
		Balancer:     &segkafka.Hash{},
		RequiredAcks: segkafka.RequireAll,
		Transport:    &segkafka.Transport{ClientID: cfg.ClientID},
	}
	return &KafkaGoProducer{writer: w, topic: topic}, nil
}

func newKafkaGoProducerWithWriter(w writer, topic string) *KafkaGoProducer {
	return &KafkaGoProducer{writer: w, topic: topic}
}

func (p *KafkaGoProducer) Publish(ctx context.Context, key string, body []byte) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("kafka producer not configured")
	}
	return p.writer.WriteMessages(ctx, segkafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: body,
	})
}

func (p *KafkaGoProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
