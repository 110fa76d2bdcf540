package dynamo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"meetsync/internal/availability"
	"meetsync/internal/store"
)

// mockDynamo stores items per table: table -> email -> item.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
	err    error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *mockDynamo) table(name string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[name]
}

func pk(key map[string]types.AttributeValue) string {
	return key["email"].(*types.AttributeValueMemberS).Value
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	item, ok := m.table(*params.TableName)[pk(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	tbl := m.table(*params.TableName)
	k := pk(params.Item)
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(email)" {
		if _, exists := tbl[k]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	tbl[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	tbl := m.table(*params.TableName)
	k := pk(params.Key)
	item, ok := tbl[k]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	updated := map[string]types.AttributeValue{}
	for name, v := range item {
		updated[name] = v
	}
	updated["availabilities"] = params.ExpressionAttributeValues[":a"]
	updated["preferences"] = params.ExpressionAttributeValues[":p"]
	tbl[k] = updated
	return &dyn.UpdateItemOutput{Attributes: updated}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	tbl := m.table(*params.TableName)
	k := pk(params.Key)
	if _, ok := tbl[k]; !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(tbl, k)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockDynamo) DescribeTable(ctx context.Context, params *dyn.DescribeTableInput, optFns ...func(*dyn.Options)) (*dyn.DescribeTableOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dyn.DescribeTableOutput{}, nil
}

func newRecord(t *testing.T, email string, days map[string][]int, pref string) availability.Record {
	t.Helper()
	rec, err := availability.NewRecord(email, days, pref)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	return rec
}

func TestCreateGet(t *testing.T) {
	s := New(newMockDynamo(), "useravail")
	fixed := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }

	if _, err := s.Create(context.Background(), newRecord(t, "a@x.io", map[string][]int{"tuesday": {9, 11}}, "last")); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Get(context.Background(), "a@x.io")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CreatedAt.Equal(fixed) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, fixed)
	}
	if got.Preferences != availability.PreferLast {
		t.Fatalf("preferences = %q", got.Preferences)
	}
	if hours := got.Availabilities[availability.Tuesday]; len(hours) != 2 || hours[0] != 9 || hours[1] != 11 {
		t.Fatalf("tuesday = %v", hours)
	}
	if len(got.Availabilities) != 7 {
		t.Fatalf("expected all seven days, got %d", len(got.Availabilities))
	}
}

func TestCreateDuplicate(t *testing.T) {
	s := New(newMockDynamo(), "useravail")
	rec := newRecord(t, "a@x.io", nil, "")
	if _, err := s.Create(context.Background(), rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(context.Background(), rec); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := New(newMockDynamo(), "useravail")
	if _, err := s.Get(context.Background(), "none@x.io"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateKeepsCreatedAt(t *testing.T) {
	s := New(newMockDynamo(), "useravail")
	fixed := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }
	if _, err := s.Create(context.Background(), newRecord(t, "a@x.io", nil, "")); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Update(context.Background(), newRecord(t, "a@x.io", map[string][]int{"sunday": {20}}, "random"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.CreatedAt.Equal(fixed) {
		t.Fatalf("created_at changed to %v", updated.CreatedAt)
	}
	if updated.Preferences != availability.PreferRandom || len(updated.Availabilities[availability.Sunday]) != 1 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
}

func TestUpdateDeleteMissing(t *testing.T) {
	s := New(newMockDynamo(), "useravail")
	if _, err := s.Update(context.Background(), newRecord(t, "a@x.io", nil, "")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(context.Background(), "a@x.io"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := New(newMockDynamo(), "useravail")
	if _, err := s.Create(context.Background(), newRecord(t, "a@x.io", nil, "")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Delete(context.Background(), "a@x.io"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(context.Background(), "a@x.io"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	mock := newMockDynamo()
	mock.err = errors.New("request timeout")
	s := New(mock, "useravail")
	if _, err := s.Get(context.Background(), "a@x.io"); !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("get: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := s.Create(context.Background(), newRecord(t, "a@x.io", nil, "")); !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("create: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("ping: expected ErrStoreUnavailable, got %v", err)
	}
}
