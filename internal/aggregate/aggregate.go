// Package aggregate combines two availability reads into common hours and a
// single suggested meeting slot.
package aggregate

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"meetsync/internal/availability"
	"meetsync/internal/queue"
)

// Reader is satisfied by *cacheaside.Accessor.
type Reader interface {
	Get(ctx context.Context, id string) (availability.Record, error)
}

type Suggestion struct {
	UserID1    string                  `json:"userId1"`
	UserID2    string                  `json:"userId2"`
	Preference availability.Preference `json:"preference"`
	Found      bool                    `json:"found"`
	Day        availability.Weekday    `json:"day,omitempty"`
	Slot       []int                   `json:"slot,omitempty"`
}

type Service struct {
	reader Reader

	mu  sync.Mutex
	rng *rand.Rand
}

func New(reader Reader) *Service {
	return &Service{
		reader: reader,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Common reads both records concurrently and intersects their schedules.
// Lookup errors come back unchanged.
func (s *Service) Common(ctx context.Context, id1, id2 string) (availability.Schedule, error) {
	a, b, err := s.readPair(ctx, id1, id2)
	if err != nil {
		return nil, err
	}
	return availability.Intersect(a.Availabilities, b.Availabilities), nil
}

// Suggest picks one slot from the common hours. An empty override falls back
// to the first user's stored preference. No overlap is not an error.
func (s *Service) Suggest(ctx context.Context, id1, id2, override string) (Suggestion, error) {
	var pref availability.Preference
	if override != "" {
		p, err := availability.ParsePreference(override)
		if err != nil {
			return Suggestion{}, err
		}
		pref = p
	}
	a, b, err := s.readPair(ctx, id1, id2)
	if err != nil {
		return Suggestion{}, err
	}
	if pref == "" {
		pref = a.Preferences
	}
	if pref == "" {
		pref = availability.PreferFirst
	}

	out := Suggestion{UserID1: a.Email, UserID2: b.Email, Preference: pref}
	common := availability.Intersect(a.Availabilities, b.Availabilities)

	s.mu.Lock()
	slot, ok := availability.Pick(common, pref, s.rng)
	s.mu.Unlock()
	if !ok {
		return out, nil
	}
	out.Found = true
	out.Day = slot.Day
	hours := slot.Hours()
	out.Slot = hours[:]
	return out, nil
}

func (s *Service) readPair(ctx context.Context, id1, id2 string) (availability.Record, availability.Record, error) {
	var a, b availability.Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := s.reader.Get(gctx, id1)
		a = rec
		return err
	})
	g.Go(func() error {
		rec, err := s.reader.Get(gctx, id2)
		b = rec
		return err
	})
	if err := g.Wait(); err != nil {
		return availability.Record{}, availability.Record{}, err
	}
	return a, b, nil
}

// Process lets the service run jobs in-process when no separate worker is
// deployed.
func (s *Service) Process(ctx context.Context, job queue.Job) (Suggestion, error) {
	return s.Suggest(ctx, job.UserID1, job.UserID2, job.Preference)
}
