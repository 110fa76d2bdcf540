// Package cache is the TTL key/value layer in front of the durable store.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMiss        = errors.New("cache miss")
	ErrUnavailable = errors.New("cache unavailable")
)

// Cache stores opaque values. Get returns ErrMiss for an absent key; any
// connectivity failure wraps ErrUnavailable.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
