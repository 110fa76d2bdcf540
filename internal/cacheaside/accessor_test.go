package cacheaside

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"meetsync/internal/availability"
	"meetsync/internal/cache"
	rediscache "meetsync/internal/cache/redis"
	"meetsync/internal/store"
	"meetsync/internal/store/memory"
)

type countingStore struct {
	store.Store
	mu   sync.Mutex
	gets int
	err  error
}

func (s *countingStore) Get(ctx context.Context, email string) (availability.Record, error) {
	s.mu.Lock()
	s.gets++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return availability.Record{}, err
	}
	return s.Store.Get(ctx, email)
}

func (s *countingStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

type countingCache struct {
	cache.Cache
	mu   sync.Mutex
	sets int
}

func (c *countingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Cache.Set(ctx, key, value, ttl)
}

type downCache struct{}

func (downCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, cache.ErrUnavailable
}

func (downCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return cache.ErrUnavailable
}

func (downCache) Delete(ctx context.Context, key string) error { return cache.ErrUnavailable }

func (downCache) Ping(ctx context.Context) error { return cache.ErrUnavailable }

type fixture struct {
	acc   *Accessor
	store *countingStore
	cache *countingCache
	mr    *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := &countingStore{Store: memory.New()}
	c := &countingCache{Cache: rediscache.New(client)}
	acc, err := New(st, c, time.Hour, nil)
	if err != nil {
		t.Fatalf("new accessor: %v", err)
	}
	return fixture{acc: acc, store: st, cache: c, mr: mr}
}

func mustRecord(t *testing.T, email string, days map[string][]int, pref string) availability.Record {
	t.Helper()
	rec, err := availability.NewRecord(email, days, pref)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	return rec
}

func seed(t *testing.T, f fixture, rec availability.Record) {
	t.Helper()
	if _, err := f.store.Store.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestGetColdCachePopulatesOnce(t *testing.T) {
	f := newFixture(t)
	seed(t, f, mustRecord(t, "a@x.com", map[string][]int{"monday": {9, 10}}, "first"))

	first, err := f.acc.Get(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := f.acc.Get(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}

	if f.store.getCount() != 1 {
		t.Fatalf("store gets = %d, want 1", f.store.getCount())
	}
	if f.cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", f.cache.sets)
	}
	if first.Email != second.Email || !first.CreatedAt.Equal(second.CreatedAt) || first.Preferences != second.Preferences {
		t.Fatalf("hit differs from miss: %+v vs %+v", first, second)
	}
	if len(second.Availabilities[availability.Monday]) != 2 {
		t.Fatalf("unexpected monday: %v", second.Availabilities[availability.Monday])
	}
	if ttl := f.mr.TTL("cache_aside_A@X.COM"); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}
}

func TestGetNormalizesIdentifier(t *testing.T) {
	f := newFixture(t)
	seed(t, f, mustRecord(t, "a@x.com", nil, ""))

	if _, err := f.acc.Get(context.Background(), "  A@X.com "); err != nil {
		t.Fatalf("get mixed case: %v", err)
	}
	if _, err := f.acc.Get(context.Background(), "a@x.COM"); err != nil {
		t.Fatalf("get other case: %v", err)
	}
	if f.store.getCount() != 1 {
		t.Fatalf("expected one store read for both spellings, got %d", f.store.getCount())
	}
	if keys := f.mr.Keys(); len(keys) != 1 || keys[0] != "cache_aside_A@X.COM" {
		t.Fatalf("cache keys = %v", keys)
	}
}

func TestGetMissingAlwaysNotFound(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		if _, err := f.acc.Get(context.Background(), "nobody@x.com"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("attempt %d: expected ErrNotFound, got %v", i, err)
		}
	}
	if len(f.mr.Keys()) != 0 {
		t.Fatalf("nothing should be cached for absent ids")
	}
}

func TestGetCorruptEntryTreatedAsMiss(t *testing.T) {
	f := newFixture(t)
	seed(t, f, mustRecord(t, "a@x.com", nil, "last"))
	if err := f.mr.Set("cache_aside_A@X.COM", "{not json"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	rec, err := f.acc.Get(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Preferences != availability.PreferLast {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if f.store.getCount() != 1 {
		t.Fatalf("expected store fallback")
	}
}

func TestGetCacheDownFallsThrough(t *testing.T) {
	st := memory.New()
	if _, err := st.Create(context.Background(), mustRecord(t, "a@x.com", nil, "")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	acc, err := New(st, downCache{}, time.Minute, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := acc.Get(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("expected degrade to store, got %v", err)
	}
}

func TestGetStoreDown(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("dial tcp: refused")
	if _, err := f.acc.Get(context.Background(), "a@x.com"); !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestGetEmptyID(t *testing.T) {
	f := newFixture(t)
	var verr *availability.ValidationError
	if _, err := f.acc.Get(context.Background(), "   "); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateWritesThrough(t *testing.T) {
	f := newFixture(t)
	created, err := f.acc.Create(context.Background(), mustRecord(t, "B@x.com", map[string][]int{"friday": {13}}, "random"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Email != "b@x.com" || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected created: %+v", created)
	}
	if !f.mr.Exists("cache_aside_B@X.COM") {
		t.Fatalf("expected cache entry after create")
	}

	got, err := f.acc.Get(context.Background(), "b@x.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if f.store.getCount() != 0 {
		t.Fatalf("read after create should hit cache")
	}
	if !got.CreatedAt.Equal(created.CreatedAt) || got.Preferences != availability.PreferRandom {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, created)
	}
}

func TestCreateDuplicate(t *testing.T) {
	f := newFixture(t)
	rec := mustRecord(t, "a@x.com", nil, "")
	if _, err := f.acc.Create(context.Background(), rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.acc.Create(context.Background(), rec); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreateSurvivesCacheOutage(t *testing.T) {
	acc, _ := New(memory.New(), downCache{}, time.Minute, nil)
	if _, err := acc.Create(context.Background(), mustRecord(t, "a@x.com", nil, "")); err != nil {
		t.Fatalf("cache outage must not fail create: %v", err)
	}
	if err := acc.Delete(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("cache outage must not fail delete: %v", err)
	}
}

func TestUpdateRefreshesCache(t *testing.T) {
	f := newFixture(t)
	created, err := f.acc.Create(context.Background(), mustRecord(t, "a@x.com", map[string][]int{"monday": {9}}, "first"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := f.acc.Update(context.Background(), "A@X.COM", mustRecord(t, "ignored@x.com", map[string][]int{"monday": {15}}, "last"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Email != "a@x.com" || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("unexpected updated: %+v", updated)
	}

	got, _ := f.acc.Get(context.Background(), "a@x.com")
	if hours := got.Availabilities[availability.Monday]; len(hours) != 1 || hours[0] != 15 {
		t.Fatalf("stale cache after update: %v", hours)
	}
}

func TestUpdateMissing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.acc.Update(context.Background(), "a@x.com", mustRecord(t, "a@x.com", nil, "")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteInvalidates(t *testing.T) {
	f := newFixture(t)
	if _, err := f.acc.Create(context.Background(), mustRecord(t, "a@x.com", nil, "")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.acc.Delete(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if f.mr.Exists("cache_aside_A@X.COM") {
		t.Fatalf("cache entry should be removed")
	}
	if _, err := f.acc.Get(context.Background(), "a@x.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.acc.Delete(context.Background(), "a@x.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
