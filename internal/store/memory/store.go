package memory

import (
	"context"
	"sync"
	"time"

	"meetsync/internal/availability"
	"meetsync/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]availability.Record
	now     func() time.Time
}

func New() *Store {
	return &Store{
		records: make(map[string]availability.Record),
		now:     time.Now,
	}
}

func (s *Store) Get(ctx context.Context, email string) (availability.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[email]
	if !ok {
		return availability.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Create(ctx context.Context, rec availability.Record) (availability.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.Email]; exists {
		return availability.Record{}, store.ErrAlreadyExists
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	s.records[rec.Email] = rec
	return rec, nil
}

func (s *Store) Update(ctx context.Context, rec availability.Record) (availability.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[rec.Email]
	if !ok {
		return availability.Record{}, store.ErrNotFound
	}
	rec.CreatedAt = existing.CreatedAt
	s.records[rec.Email] = rec
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[email]; !ok {
		return store.ErrNotFound
	}
	delete(s.records, email)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}
