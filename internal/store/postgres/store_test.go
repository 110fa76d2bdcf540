package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"meetsync/internal/availability"
	"meetsync/internal/store"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: want %d dest, got %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

type storedRow struct {
	body      []byte
	pref      string
	createdAt time.Time
}

type fakeDB struct {
	rows      map[string]storedRow
	failErr   error
	execCalls []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: map[string]storedRow{}}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execCalls = append(f.execCalls, sql)
	if f.failErr != nil {
		return pgconn.CommandTag{}, f.failErr
	}
	if strings.HasPrefix(sql, "DELETE") {
		email := args[0].(string)
		if _, ok := f.rows[email]; !ok {
			return pgconn.NewCommandTag("DELETE 0"), nil
		}
		delete(f.rows, email)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if f.failErr != nil {
		return fakeRow{err: f.failErr}
	}
	email := args[0].(string)
	row, exists := f.rows[email]
	switch {
	case strings.HasPrefix(sql, "SELECT"):
		if !exists {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{values: []any{email, row.body, row.pref, row.createdAt}}
	case strings.HasPrefix(sql, "INSERT"):
		if exists {
			return fakeRow{err: pgx.ErrNoRows}
		}
		created := args[3].(time.Time)
		f.rows[email] = storedRow{body: args[1].([]byte), pref: args[2].(string), createdAt: created}
		return fakeRow{values: []any{created}}
	case strings.HasPrefix(sql, "UPDATE"):
		if !exists {
			return fakeRow{err: pgx.ErrNoRows}
		}
		row.body = args[1].([]byte)
		row.pref = args[2].(string)
		f.rows[email] = row
		return fakeRow{values: []any{row.createdAt}}
	}
	return fakeRow{err: fmt.Errorf("unexpected sql %q", sql)}
}

func (f *fakeDB) Ping(ctx context.Context) error {
	return f.failErr
}

func record(t *testing.T, email string, days map[string][]int, pref string) availability.Record {
	t.Helper()
	rec, err := availability.NewRecord(email, days, pref)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	return rec
}

func TestCreateAndGet(t *testing.T) {
	db := newFakeDB()
	s := New(db)
	fixed := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	created, err := s.Create(context.Background(), record(t, "a@x.io", map[string][]int{"Monday": {14, 10}}, "last"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created.CreatedAt.Equal(fixed) {
		t.Fatalf("expected created_at %v, got %v", fixed, created.CreatedAt)
	}

	got, err := s.Get(context.Background(), "a@x.io")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Preferences != availability.PreferLast {
		t.Fatalf("expected last, got %q", got.Preferences)
	}
	if hours := got.Availabilities[availability.Monday]; len(hours) != 2 || hours[0] != 10 || hours[1] != 14 {
		t.Fatalf("unexpected monday hours: %v", hours)
	}
	if hours, ok := got.Availabilities[availability.Sunday]; !ok || len(hours) != 0 {
		t.Fatalf("expected empty sunday, got %v", hours)
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := New(newFakeDB())
	rec := record(t, "a@x.io", nil, "")
	if _, err := s.Create(context.Background(), rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(context.Background(), rec); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := New(newFakeDB())
	if _, err := s.Get(context.Background(), "nobody@x.io"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateKeepsCreatedAt(t *testing.T) {
	db := newFakeDB()
	s := New(db)
	first := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return first }
	if _, err := s.Create(context.Background(), record(t, "a@x.io", nil, "")); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.now = func() time.Time { return first.Add(time.Hour) }

	updated, err := s.Update(context.Background(), record(t, "a@x.io", map[string][]int{"friday": {9}}, "random"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.CreatedAt.Equal(first) {
		t.Fatalf("created_at changed: %v", updated.CreatedAt)
	}
	got, _ := s.Get(context.Background(), "a@x.io")
	if got.Preferences != availability.PreferRandom || len(got.Availabilities[availability.Friday]) != 1 {
		t.Fatalf("update not persisted: %+v", got)
	}
}

func TestUpdateMissing(t *testing.T) {
	s := New(newFakeDB())
	if _, err := s.Update(context.Background(), record(t, "a@x.io", nil, "")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := New(newFakeDB())
	if _, err := s.Create(context.Background(), record(t, "a@x.io", nil, "")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(context.Background(), "a@x.io"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(context.Background(), "a@x.io"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	db := newFakeDB()
	db.failErr = errors.New("connection refused")
	s := New(db)

	if _, err := s.Get(context.Background(), "a@x.io"); !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("get: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.Delete(context.Background(), "a@x.io"); !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("delete: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("ping: expected ErrStoreUnavailable, got %v", err)
	}
}

func TestMapErrUniqueViolation(t *testing.T) {
	err := mapErr("create", &pgconn.PgError{Code: uniqueViolation})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	db := newFakeDB()
	if err := New(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if len(db.execCalls) != 1 || !strings.Contains(db.execCalls[0], "CREATE TABLE IF NOT EXISTS useravail") {
		t.Fatalf("unexpected exec calls: %v", db.execCalls)
	}
}
