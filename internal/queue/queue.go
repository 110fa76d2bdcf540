// Package queue models the durable job channel between the API and the
// worker. Backends deliver at least once with at most one outstanding message
// per consumer.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQueueUnavailable means a job could not be handed to the broker.
	ErrQueueUnavailable = errors.New("queue unavailable")
	// ErrPoisonMessage marks a payload that can never be processed.
	ErrPoisonMessage = errors.New("undecodable job payload")
	// ErrPrefetchExceeded is returned by Poll while a message is still outstanding.
	ErrPrefetchExceeded = errors.New("previous message not yet acknowledged or requeued")
)

// Message is one delivery. Raw carries the backend handle needed to Ack or
// Requeue it.
type Message struct {
	ID   string
	Key  string
	Body []byte
	// Deliveries counts how many times the backend handed this message out,
	// when the backend tracks it. Zero means unknown.
	Deliveries int
	Raw        any
}

type Producer interface {
	Publish(ctx context.Context, key string, body []byte) error
	Close() error
}

type Consumer interface {
	// Poll blocks until a message is available or ctx is done.
	Poll(ctx context.Context) (Message, error)
	Ack(ctx context.Context, msg Message) error
	// Requeue returns msg for redelivery no earlier than delay from now.
	Requeue(ctx context.Context, msg Message, delay time.Duration) error
	Close() error
}
