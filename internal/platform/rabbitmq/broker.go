// Package rabbitmq implements queue.Broker on an AMQP 0-9-1 server.
//
// Queues are declared durable and messages persistent; publishing waits for a
// publisher confirm. Each consumer gets its own channel with a prefetch of
// one, so a worker never holds more than a single unacknowledged message.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/backoff"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

// connection is the part of *amqp.Connection the broker uses.
type connection interface {
	Channel() (*amqp.Channel, error)
	IsClosed() bool
	Close() error
}

// Broker implements queue.Broker. A lost connection is re-dialed on the next
// Publish, Consume or Ping.
type Broker struct {
	dial   func() (connection, error)
	retry  config.RetryConfig
	logger *slog.Logger

	// sem guards the fields below; it is a channel so waiting honours ctx.
	sem      chan struct{}
	conn     connection
	pubCh    *amqp.Channel
	declared map[string]bool
	closed   bool
}

var (
	_ queue.Broker = (*Broker)(nil)
	_ queue.Pinger = (*Broker)(nil)
)

// URL builds the AMQP connection URL from configuration.
func URL(cfg config.QueueConfig) string {
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.User,
		Password: cfg.Password,
		Vhost:    vhost,
	}.String()
}

// Dial connects to the broker, retrying with bounded exponential backoff
// while the server is unreachable.
func Dial(ctx context.Context, cfg config.QueueConfig, retryCfg config.RetryConfig, log *slog.Logger) (*Broker, error) {
	url := URL(cfg)
	b := newBroker(func() (connection, error) {
		return amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial:      amqp.DefaultDial(5 * time.Second),
		})
	}, retryCfg, log)

	if err := b.lock(ctx); err != nil {
		return nil, err
	}
	_, err := b.connection(ctx, true)
	b.unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	b.logger.Info("connected to rabbitmq", slog.String("host", cfg.Host), slog.Int("port", cfg.Port))
	return b, nil
}

func newBroker(dial func() (connection, error), retryCfg config.RetryConfig, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		dial:     dial,
		retry:    retryCfg,
		logger:   log.With(slog.String("component", "rabbitmq")),
		sem:      make(chan struct{}, 1),
		declared: make(map[string]bool),
	}
}

func (b *Broker) lock(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) unlock() { <-b.sem }

// connection returns the live connection, dialing a new one when there is
// none or the current one has closed. With retry set the dial is retried
// under the broker's backoff policy; otherwise it is attempted once.
// Callers hold the lock.
func (b *Broker) connection(ctx context.Context, retry bool) (connection, error) {
	if b.closed {
		return nil, queue.ErrClosed
	}
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}
	if b.conn != nil {
		b.logger.Warn("rabbitmq connection lost, reconnecting")
	}

	var conn connection
	dialOnce := func(context.Context) error {
		c, err := b.dial()
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	var err error
	if retry {
		err = backoff.Do(ctx, b.retry, b.logger, "rabbitmq", dialOnce)
	} else {
		err = dialOnce(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	if b.conn != nil {
		b.logger.Info("reconnected to rabbitmq")
	}
	b.conn = conn
	b.pubCh = nil
	b.declared = make(map[string]bool)
	return conn, nil
}

// declare makes sure queueName exists as a durable queue.
func declare(ch *amqp.Channel, queueName string) error {
	_, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	return nil
}

// publishChannel returns the shared confirm-mode channel, reopening it after
// a channel-level error and reconnecting after a connection loss. Callers
// hold the lock.
func (b *Broker) publishChannel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := b.connection(ctx, true)
	if err != nil {
		return nil, err
	}
	if b.pubCh != nil && !b.pubCh.IsClosed() {
		return b.pubCh, nil
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	b.pubCh = ch
	b.declared = make(map[string]bool)
	return ch, nil
}

// Publish implements queue.Publisher.
func (b *Broker) Publish(ctx context.Context, queueName string, body []byte) error {
	if err := b.lock(ctx); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}
	ch, err := b.publishChannel(ctx)
	if err == nil && !b.declared[queueName] {
		if err = declare(ch, queueName); err == nil {
			b.declared[queueName] = true
		}
	}
	var confirm *amqp.DeferredConfirmation
	if err == nil {
		confirm, err = ch.PublishWithDeferredConfirmWithContext(ctx, "", queueName, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	}
	b.unlock()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}

	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for publish confirm on %s: %w", queueName, err)
	}
	if !ok {
		return fmt.Errorf("broker rejected message on %s", queueName)
	}
	return nil
}

// Consume implements queue.Consumer. It returns nil when ctx is cancelled and
// an error when the channel or connection is lost; calling it again
// reconnects.
func (b *Broker) Consume(ctx context.Context, queueName string, handler queue.Handler) error {
	if err := b.lock(ctx); err != nil {
		return nil
	}
	conn, err := b.connection(ctx, true)
	b.unlock()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consume channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	if err := declare(ch, queueName); err != nil {
		return err
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", queueName, err)
	}

	b.logger.Info("consuming", slog.String("queue", queueName))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			b.dispatch(ctx, queueName, d, handler)
		}
	}
}

func (b *Broker) dispatch(ctx context.Context, queueName string, d amqp.Delivery, handler queue.Handler) {
	msg := queue.NewMessage(d.Body, d.Redelivered,
		func() error { return d.Ack(false) },
		func(requeue bool) error { return d.Nack(false, requeue) },
	)
	handler(ctx, msg)
	if !msg.Settled() {
		if err := msg.Nack(true); err != nil {
			b.logger.Error("failed to requeue unacknowledged message",
				slog.String("queue", queueName),
				slog.String("error", err.Error()))
		}
	}
}

// Ping reports whether the broker connection is up, trying a single re-dial
// when it is not.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.lock(ctx); err != nil {
		return err
	}
	defer b.unlock()
	_, err := b.connection(ctx, false)
	return err
}

// Close closes the publish channel and the connection.
func (b *Broker) Close() error {
	b.sem <- struct{}{}
	defer b.unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.pubCh != nil {
		_ = b.pubCh.Close()
	}
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
