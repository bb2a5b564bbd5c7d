package mocks

import (
	"context"
	"sync"

	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
)

// MemoryBroker implements queue.Broker in memory with at-least-once
// semantics: a delivery that is not acked goes back on its queue flagged as
// redelivered.
type MemoryBroker struct {
	mu        sync.Mutex
	queues    map[string][]pending
	published map[string][][]byte
	dropped   map[string][][]byte
	wake      chan struct{}
	closed    bool

	// PublishFn overrides Publish when set.
	PublishFn func(ctx context.Context, queueName string, body []byte) error
	// PingFn overrides Ping when set.
	PingFn func(ctx context.Context) error
}

type pending struct {
	body        []byte
	redelivered bool
}

var (
	_ queue.Broker = (*MemoryBroker)(nil)
	_ queue.Pinger = (*MemoryBroker)(nil)
)

// NewMemoryBroker returns an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:    make(map[string][]pending),
		published: make(map[string][][]byte),
		dropped:   make(map[string][][]byte),
		wake:      make(chan struct{}),
	}
}

// Publish implements queue.Publisher.
func (b *MemoryBroker) Publish(ctx context.Context, queueName string, body []byte) error {
	if b.PublishFn != nil {
		if err := b.PublishFn(ctx, queueName, body); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return queue.ErrClosed
	}
	cp := append([]byte(nil), body...)
	b.published[queueName] = append(b.published[queueName], cp)
	b.push(queueName, pending{body: cp})
	return nil
}

// push must be called with b.mu held.
func (b *MemoryBroker) push(queueName string, p pending) {
	b.queues[queueName] = append(b.queues[queueName], p)
	if !b.closed {
		close(b.wake)
		b.wake = make(chan struct{})
	}
}

// Consume implements queue.Consumer. Deliveries are handed out one at a time.
func (b *MemoryBroker) Consume(ctx context.Context, queueName string, handler queue.Handler) error {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return queue.ErrClosed
		}
		items := b.queues[queueName]
		if len(items) == 0 {
			wake := b.wake
			b.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil
			case <-wake:
				continue
			}
		}
		next := items[0]
		b.queues[queueName] = items[1:]
		b.mu.Unlock()

		msg := queue.NewMessage(next.body, next.redelivered,
			func() error { return nil },
			func(requeue bool) error {
				b.mu.Lock()
				defer b.mu.Unlock()
				if requeue {
					b.push(queueName, pending{body: next.body, redelivered: true})
				} else {
					b.dropped[queueName] = append(b.dropped[queueName], next.body)
				}
				return nil
			})
		handler(ctx, msg)
		if !msg.Settled() {
			_ = msg.Nack(true)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Ping implements queue.Pinger.
func (b *MemoryBroker) Ping(ctx context.Context) error {
	if b.PingFn != nil {
		return b.PingFn(ctx)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return queue.ErrClosed
	}
	return nil
}

// Close implements queue.Broker.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.wake)
	}
	return nil
}

// Published returns every body accepted on queueName.
func (b *MemoryBroker) Published(queueName string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.published[queueName]...)
}

// Pending returns the number of undelivered messages on queueName.
func (b *MemoryBroker) Pending(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queueName])
}

// Dropped returns bodies nacked without requeue on queueName.
func (b *MemoryBroker) Dropped(queueName string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.dropped[queueName]...)
}
