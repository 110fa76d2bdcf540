package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"meetsync/internal/availability"
	"meetsync/internal/store"
)

const uniqueViolation = "23505"

const schemaSQL = `CREATE TABLE IF NOT EXISTS useravail (
	email          TEXT PRIMARY KEY,
	availabilities JSONB NOT NULL,
	preferences    TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
)`

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type Store struct {
	db  DB
	now func() time.Time
}

func New(db DB) *Store {
	return &Store{db: db, now: time.Now}
}

// EnsureSchema creates the useravail table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, email string) (availability.Record, error) {
	row := s.db.QueryRow(ctx,
		`SELECT email, availabilities, preferences, created_at FROM useravail WHERE email = $1`,
		email)
	rec, err := scanRecord(row)
	if err != nil {
		return availability.Record{}, mapErr("get", err)
	}
	return rec, nil
}

func (s *Store) Create(ctx context.Context, rec availability.Record) (availability.Record, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	body, err := json.Marshal(rec.Availabilities.Raw())
	if err != nil {
		return availability.Record{}, fmt.Errorf("encode availabilities: %w", err)
	}
	var createdAt time.Time
	err = s.db.QueryRow(ctx,
		`INSERT INTO useravail (email, availabilities, preferences, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING created_at`,
		rec.Email, body, string(rec.Preferences), rec.CreatedAt).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return availability.Record{}, store.ErrAlreadyExists
	}
	if err != nil {
		return availability.Record{}, mapErr("create", err)
	}
	rec.CreatedAt = createdAt
	return rec, nil
}

// Update replaces availabilities and preferences; created_at is left as stored.
func (s *Store) Update(ctx context.Context, rec availability.Record) (availability.Record, error) {
	body, err := json.Marshal(rec.Availabilities.Raw())
	if err != nil {
		return availability.Record{}, fmt.Errorf("encode availabilities: %w", err)
	}
	var createdAt time.Time
	err = s.db.QueryRow(ctx,
		`UPDATE useravail SET availabilities = $2, preferences = $3
		 WHERE email = $1
		 RETURNING created_at`,
		rec.Email, body, string(rec.Preferences)).Scan(&createdAt)
	if err != nil {
		return availability.Record{}, mapErr("update", err)
	}
	rec.CreatedAt = createdAt
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, email string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM useravail WHERE email = $1`, email)
	if err != nil {
		return mapErr("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (availability.Record, error) {
	var (
		rec  availability.Record
		raw  []byte
		pref string
	)
	if err := row.Scan(&rec.Email, &raw, &pref, &rec.CreatedAt); err != nil {
		return availability.Record{}, err
	}
	var days map[string][]int
	if err := json.Unmarshal(raw, &days); err != nil {
		return availability.Record{}, fmt.Errorf("decode availabilities: %w", err)
	}
	sched, err := availability.NormalizeSchedule(days)
	if err != nil {
		return availability.Record{}, fmt.Errorf("stored availabilities: %w", err)
	}
	rec.Availabilities = sched
	rec.Preferences = availability.Preference(pref)
	return rec, nil
}

func mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrAlreadyExists
	}
	return fmt.Errorf("%w: %s: %v", store.ErrStoreUnavailable, op, err)
}
