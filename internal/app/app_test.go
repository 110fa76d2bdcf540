package app

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"meetsync/internal/config"
	"meetsync/internal/metrics"
	memqueue "meetsync/internal/queue/memory"
	memstore "meetsync/internal/store/memory"
)

func memoryConfig(t *testing.T, redisAddr string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`store:
  driver: memory
queue:
  driver: memory
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Redis.Addr = redisAddr
	return cfg
}

func TestMemoryDrivers(t *testing.T) {
	mr := miniredis.RunT(t)
	d := New(memoryConfig(t, mr.Addr()), nil)
	defer d.Close()
	ctx := context.Background()

	st, err := d.Store(ctx)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, ok := st.(*memstore.Store); !ok {
		t.Fatalf("store = %T, want *memory.Store", st)
	}

	jobs, err := d.Jobs(ctx)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	consumer, err := d.Consumer(ctx)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	if jobs.(*memqueue.Broker) != consumer.(*memqueue.Broker) {
		t.Fatalf("memory producer and consumer must share one broker")
	}

	dlq, err := d.DeadLetter(ctx)
	if err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	if dlq.(*memqueue.Broker) == jobs.(*memqueue.Broker) {
		t.Fatalf("dead letter must be a separate broker")
	}

	if err := d.Cache().Ping(ctx); err != nil {
		t.Fatalf("cache ping: %v", err)
	}
	if _, ok := d.Metrics(ctx).(metrics.Noop); !ok {
		t.Fatalf("expected noop metrics without a namespace")
	}
}

func TestUnsupportedDrivers(t *testing.T) {
	cfg := memoryConfig(t, "localhost:0")
	cfg.Store.Driver = "sqlite"
	cfg.Queue.Driver = "nats"
	d := New(cfg, nil)
	defer d.Close()
	ctx := context.Background()

	if _, err := d.Store(ctx); err == nil {
		t.Fatalf("expected store driver error")
	}
	if _, err := d.Jobs(ctx); err == nil {
		t.Fatalf("expected queue driver error")
	}
	if _, err := d.Consumer(ctx); err == nil {
		t.Fatalf("expected consumer driver error")
	}
}

func TestCloseReverseOrder(t *testing.T) {
	d := New(config.Config{}, nil)
	var order []string
	d.onClose("first", func() error { order = append(order, "first"); return nil })
	d.onClose("second", func() error { order = append(order, "second"); return errors.New("ignored") })
	d.Close()
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("close order = %v", order)
	}
	d.Close()
	if len(order) != 2 {
		t.Fatalf("second Close must be a no-op, got %v", order)
	}
}
