package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"meetsync/internal/queue"
)

const idleWait = 50 * time.Millisecond

var errUnknownMessage = errors.New("message is not the outstanding delivery")

type delayed struct {
	msg   queue.Message
	dueAt time.Time
}

// Broker is an in-memory FIFO queue for a single consumer. It implements both
// queue.Producer and queue.Consumer and never hands out a second message
// before the first is acked or requeued.
type Broker struct {
	mu        sync.Mutex
	ready     []queue.Message
	delayed   []delayed
	inFlight  *queue.Message
	published []queue.Message
	notify    chan struct{}
	now       func() time.Time
	seq       int
	closed    bool
}

func New() *Broker {
	return &Broker{
		notify: make(chan struct{}, 1),
		now:    time.Now,
	}
}

func (b *Broker) Publish(ctx context.Context, key string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("broker closed")
	}
	b.seq++
	msg := queue.Message{
		ID:   fmt.Sprintf("mem-%d", b.seq),
		Key:  key,
		Body: append([]byte(nil), body...),
	}
	b.ready = append(b.ready, msg)
	b.published = append(b.published, msg)
	b.signal()
	return nil
}

func (b *Broker) Poll(ctx context.Context) (queue.Message, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return queue.Message{}, errors.New("broker closed")
		}
		if b.inFlight != nil {
			b.mu.Unlock()
			return queue.Message{}, queue.ErrPrefetchExceeded
		}
		b.promoteDue()
		if len(b.ready) > 0 {
			msg := b.ready[0]
			b.ready = b.ready[1:]
			msg.Deliveries++
			b.inFlight = &msg
			b.mu.Unlock()
			return msg, nil
		}
		wait := b.nextWait()
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return queue.Message{}, ctx.Err()
		case <-b.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (b *Broker) Ack(ctx context.Context, msg queue.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight == nil || b.inFlight.ID != msg.ID {
		return errUnknownMessage
	}
	b.inFlight = nil
	return nil
}

func (b *Broker) Requeue(ctx context.Context, msg queue.Message, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight == nil || b.inFlight.ID != msg.ID {
		return errUnknownMessage
	}
	back := *b.inFlight
	b.inFlight = nil
	if delay <= 0 {
		b.ready = append(b.ready, back)
	} else {
		b.delayed = append(b.delayed, delayed{msg: back, dueAt: b.now().Add(delay)})
	}
	b.signal()
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.signal()
	return nil
}

// Published returns every message accepted by Publish, in order.
func (b *Broker) Published() []queue.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]queue.Message, len(b.published))
	copy(out, b.published)
	return out
}

// Pending reports messages waiting for delivery, delayed ones included.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready) + len(b.delayed)
}

func (b *Broker) InFlight() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight != nil
}

// promoteDue moves delayed messages whose time has come to the ready list.
// Caller holds b.mu.
func (b *Broker) promoteDue() {
	now := b.now()
	kept := b.delayed[:0]
	for _, d := range b.delayed {
		if !d.dueAt.After(now) {
			b.ready = append(b.ready, d.msg)
			continue
		}
		kept = append(kept, d)
	}
	b.delayed = kept
}

func (b *Broker) nextWait() time.Duration {
	wait := idleWait
	now := b.now()
	for _, d := range b.delayed {
		if until := d.dueAt.Sub(now); until < wait {
			wait = until
		}
	}
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

func (b *Broker) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
