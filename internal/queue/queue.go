// Package queue defines the broker abstraction shared by the dispatcher,
// the worker pool and the notifier, together with the JSON envelopes that
// travel through it.
//
// Delivery is at-least-once: a consumer handler must Ack each message exactly
// once after its side effects are durable. A message that is not acked when
// the handler returns is handed back to the broker for redelivery.
package queue

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrAlreadyAcknowledged is returned by Ack and Nack after the message
	// was already settled.
	ErrAlreadyAcknowledged = errors.New("message already acknowledged")

	// ErrClosed is returned when publishing on a closed broker.
	ErrClosed = errors.New("broker closed")
)

// Publisher places durable messages on a named queue.
type Publisher interface {
	// Publish returns nil only once the broker has taken responsibility for
	// the message.
	Publish(ctx context.Context, queueName string, body []byte) error
}

// Handler processes one delivery. It must call Ack or Nack on msg.
type Handler func(ctx context.Context, msg *Message)

// Consumer delivers messages from a named queue one at a time.
type Consumer interface {
	// Consume blocks, invoking handler for each delivery, until ctx is done
	// or the underlying connection fails.
	Consume(ctx context.Context, queueName string, handler Handler) error
}

// Broker is a Publisher and Consumer that owns a connection.
type Broker interface {
	Publisher
	Consumer
	Close() error
}

// Pinger is implemented by brokers that can report whether their server is
// reachable. Health checks use it when present.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Message is one delivery of a queued body.
type Message struct {
	Body        []byte
	Redelivered bool

	mu      sync.Mutex
	settled bool
	acked   bool
	ack     func() error
	nack    func(requeue bool) error
}

// NewMessage wraps a delivery. ack and nack perform the broker-side settlement.
func NewMessage(body []byte, redelivered bool, ack func() error, nack func(requeue bool) error) *Message {
	return &Message{Body: body, Redelivered: redelivered, ack: ack, nack: nack}
}

// Ack confirms the message; the broker will not deliver it again.
func (m *Message) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return ErrAlreadyAcknowledged
	}
	if err := m.ack(); err != nil {
		return err
	}
	m.settled = true
	m.acked = true
	return nil
}

// Nack rejects the message. With requeue it is delivered again later.
func (m *Message) Nack(requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return ErrAlreadyAcknowledged
	}
	if err := m.nack(requeue); err != nil {
		return err
	}
	m.settled = true
	return nil
}

// Settled reports whether Ack or Nack has succeeded.
func (m *Message) Settled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settled
}

// Acked reports whether the message was acknowledged.
func (m *Message) Acked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}
