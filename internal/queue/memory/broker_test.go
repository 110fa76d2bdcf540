package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"meetsync/internal/queue"
)

func TestBroker_PublishPollAck(t *testing.T) {
	b := New()
	ctx := context.Background()
	if err := b.Publish(ctx, "job1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	msg, err := b.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if msg.Key != "job1" || string(msg.Body) != `{"a":1}` {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Deliveries != 1 {
		t.Fatalf("deliveries = %d, want 1", msg.Deliveries)
	}
	if err := b.Ack(ctx, msg); err != nil {
		t.Fatalf("Ack error: %v", err)
	}
	if b.InFlight() || b.Pending() != 0 {
		t.Fatalf("expected empty broker")
	}
	if len(b.Published()) != 1 {
		t.Fatalf("published len = %d, want 1", len(b.Published()))
	}
}

func TestBroker_PrefetchOne(t *testing.T) {
	b := New()
	ctx := context.Background()
	_ = b.Publish(ctx, "job1", []byte("1"))
	_ = b.Publish(ctx, "job2", []byte("2"))

	first, err := b.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if _, err := b.Poll(ctx); !errors.Is(err, queue.ErrPrefetchExceeded) {
		t.Fatalf("expected ErrPrefetchExceeded, got %v", err)
	}
	if err := b.Ack(ctx, first); err != nil {
		t.Fatalf("Ack error: %v", err)
	}
	second, err := b.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if second.Key != "job2" {
		t.Fatalf("expected FIFO order, got %q", second.Key)
	}
}

func TestBroker_RequeueRedelivers(t *testing.T) {
	b := New()
	ctx := context.Background()
	_ = b.Publish(ctx, "job1", []byte("1"))

	msg, _ := b.Poll(ctx)
	if err := b.Requeue(ctx, msg, 0); err != nil {
		t.Fatalf("Requeue error: %v", err)
	}
	again, err := b.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if again.ID != msg.ID || again.Deliveries != 2 {
		t.Fatalf("unexpected redelivery: %+v", again)
	}
}

func TestBroker_RequeueDelay(t *testing.T) {
	b := New()
	now := time.Unix(100, 0)
	b.now = func() time.Time { return now }
	ctx := context.Background()
	_ = b.Publish(ctx, "job1", []byte("1"))

	msg, _ := b.Poll(ctx)
	if err := b.Requeue(ctx, msg, time.Minute); err != nil {
		t.Fatalf("Requeue error: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := b.Poll(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected delayed message to stay hidden, got %v", err)
	}

	b.mu.Lock()
	now = now.Add(time.Minute)
	b.mu.Unlock()
	if _, err := b.Poll(ctx); err != nil {
		t.Fatalf("Poll after delay: %v", err)
	}
}

func TestBroker_AckUnknown(t *testing.T) {
	b := New()
	if err := b.Ack(context.Background(), queue.Message{ID: "nope"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBroker_PollWakesOnPublish(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := make(chan queue.Message, 1)
	go func() {
		msg, err := b.Poll(ctx)
		if err == nil {
			got <- msg
		}
	}()
	time.Sleep(10 * time.Millisecond)
	_ = b.Publish(ctx, "late", []byte("x"))

	select {
	case msg := <-got:
		if msg.Key != "late" {
			t.Fatalf("unexpected key %q", msg.Key)
		}
	case <-ctx.Done():
		t.Fatalf("poll did not wake up")
	}
}
