// Package store defines the durable availability store, the source of truth
// behind the cache.
package store

import (
	"context"

	"meetsync/internal/availability"
)

// Store persists one availability record per normalized email. Implementations
// return ErrNotFound for absent rows and wrap connectivity failures with
// ErrStoreUnavailable.
type Store interface {
	Get(ctx context.Context, email string) (availability.Record, error)
	// Create sets CreatedAt when zero and fails with ErrAlreadyExists on a duplicate.
	Create(ctx context.Context, rec availability.Record) (availability.Record, error)
	// Update replaces availabilities and preferences, keeping CreatedAt.
	Update(ctx context.Context, rec availability.Record) (availability.Record, error)
	Delete(ctx context.Context, email string) error
	Ping(ctx context.Context) error
}
