// Package cacheaside implements read-through access to availability records:
// the cache is consulted first, the durable store is the source of truth, and
// every mutation hits the store before the cache.
package cacheaside

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"meetsync/internal/availability"
	"meetsync/internal/cache"
	"meetsync/internal/logging"
	"meetsync/internal/rediskeys"
	"meetsync/internal/store"
)

type Accessor struct {
	store  store.Store
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func New(st store.Store, c cache.Cache, ttl time.Duration, logger *zap.Logger) (*Accessor, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if c == nil {
		return nil, errors.New("cache is required")
	}
	if ttl <= 0 {
		ttl = rediskeys.DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accessor{store: st, cache: c, ttl: ttl, logger: logger}, nil
}

// Get returns the record for id, from cache when possible. A cache outage
// only costs a store round trip; store.ErrNotFound and
// store.ErrStoreUnavailable are returned as is.
func (a *Accessor) Get(ctx context.Context, id string) (availability.Record, error) {
	email, err := normalize(id)
	if err != nil {
		return availability.Record{}, err
	}
	key := rediskeys.CacheAsideKey(email)
	log := a.log(ctx).With(zap.String("email", email), zap.String("cache_key", key))

	raw, err := a.cache.Get(ctx, key)
	switch {
	case err == nil:
		rec, decodeErr := decodeEntry(raw)
		if decodeErr == nil {
			log.Debug("cache hit")
			return rec, nil
		}
		log.Warn("cache entry unreadable; treating as miss", zap.Error(decodeErr))
	case errors.Is(err, cache.ErrMiss):
		log.Debug("cache miss")
	default:
		log.Warn("cache degraded; reading from store", zap.Error(err))
	}

	rec, err := a.store.Get(ctx, email)
	if err != nil {
		return availability.Record{}, a.storeErr(log, "get", err)
	}
	a.fill(ctx, log, key, rec)
	return rec, nil
}

// Create persists a new record then writes it through to the cache.
func (a *Accessor) Create(ctx context.Context, rec availability.Record) (availability.Record, error) {
	email, err := normalize(rec.Email)
	if err != nil {
		return availability.Record{}, err
	}
	rec.Email = email
	log := a.log(ctx).With(zap.String("email", email))

	created, err := a.store.Create(ctx, rec)
	if err != nil {
		return availability.Record{}, a.storeErr(log, "create", err)
	}
	a.fill(ctx, log, rediskeys.CacheAsideKey(email), created)
	return created, nil
}

// Update replaces availabilities and preferences for id. created_at is kept
// by the store.
func (a *Accessor) Update(ctx context.Context, id string, rec availability.Record) (availability.Record, error) {
	email, err := normalize(id)
	if err != nil {
		return availability.Record{}, err
	}
	rec.Email = email
	log := a.log(ctx).With(zap.String("email", email))

	updated, err := a.store.Update(ctx, rec)
	if err != nil {
		return availability.Record{}, a.storeErr(log, "update", err)
	}
	a.fill(ctx, log, rediskeys.CacheAsideKey(email), updated)
	return updated, nil
}

func (a *Accessor) Delete(ctx context.Context, id string) error {
	email, err := normalize(id)
	if err != nil {
		return err
	}
	log := a.log(ctx).With(zap.String("email", email))

	if err := a.store.Delete(ctx, email); err != nil {
		return a.storeErr(log, "delete", err)
	}
	if err := a.cache.Delete(ctx, rediskeys.CacheAsideKey(email)); err != nil {
		log.Warn("cache invalidate failed", zap.Error(err))
	}
	return nil
}

// fill writes rec to the cache. Failures are logged and dropped.
func (a *Accessor) fill(ctx context.Context, log *zap.Logger, key string, rec availability.Record) {
	body, err := encodeEntry(rec)
	if err != nil {
		log.Warn("cache entry encode failed", zap.Error(err))
		return
	}
	if err := a.cache.Set(ctx, key, body, a.ttl); err != nil {
		log.Warn("cache write-back failed", zap.Error(err))
	}
}

func (a *Accessor) storeErr(log *zap.Logger, op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrAlreadyExists):
		log.Info("store "+op, zap.Error(err))
		return err
	case errors.Is(err, store.ErrStoreUnavailable):
		log.Error("store "+op+" failed", zap.Error(err))
		return err
	default:
		log.Error("store "+op+" failed", zap.Error(err))
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
}

func (a *Accessor) log(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx, a.logger)
}

func normalize(id string) (string, error) {
	email := availability.NormalizeID(id)
	if email == "" {
		return "", &availability.ValidationError{FieldErrors: map[string]string{"email": "email is required"}}
	}
	return email, nil
}

type entry struct {
	Email          string           `json:"email"`
	Availabilities map[string][]int `json:"availabilities"`
	Preferences    string           `json:"preferences"`
	CreatedAt      time.Time        `json:"created_at"`
}

func encodeEntry(rec availability.Record) ([]byte, error) {
	return json.Marshal(entry{
		Email:          rec.Email,
		Availabilities: rec.Availabilities.Raw(),
		Preferences:    string(rec.Preferences),
		CreatedAt:      rec.CreatedAt,
	})
}

func decodeEntry(raw []byte) (availability.Record, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return availability.Record{}, err
	}
	if e.Email == "" {
		return availability.Record{}, errors.New("cache entry has no email")
	}
	sched, err := availability.NormalizeSchedule(e.Availabilities)
	if err != nil {
		return availability.Record{}, err
	}
	pref, err := availability.ParsePreference(e.Preferences)
	if err != nil {
		return availability.Record{}, err
	}
	return availability.Record{
		Email:          e.Email,
		Availabilities: sched,
		Preferences:    pref,
		CreatedAt:      e.CreatedAt,
	}, nil
}
