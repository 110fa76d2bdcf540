package api

import (
	"context"

	"meetsync/internal/aggregate"
	"meetsync/internal/availability"
	"meetsync/internal/queue"
)

// Users is satisfied by *cacheaside.Accessor.
type Users interface {
	Get(ctx context.Context, id string) (availability.Record, error)
	Create(ctx context.Context, rec availability.Record) (availability.Record, error)
	Update(ctx context.Context, id string, rec availability.Record) (availability.Record, error)
	Delete(ctx context.Context, id string) error
}

// Aggregator is satisfied by *aggregate.Service.
type Aggregator interface {
	Common(ctx context.Context, id1, id2 string) (availability.Schedule, error)
	Suggest(ctx context.Context, id1, id2, override string) (aggregate.Suggestion, error)
}

// Enqueuer is satisfied by *queue.Publisher.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.Request) (queue.Job, error)
	Queue() string
}

// Pinger is a dependency reported by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}
