package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	closed atomic.Bool
}

func (c *fakeConn) Channel() (*amqp.Channel, error) { return nil, amqp.ErrClosed }
func (c *fakeConn) IsClosed() bool { return c.closed.Load() }
func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

// fakeDialer hands out fakeConns and fails while down is set.
type fakeDialer struct {
	dials atomic.Int32
	down  atomic.Bool
	last  atomic.Pointer[fakeConn]
}

func (d *fakeDialer) dial() (connection, error) {
	d.dials.Add(1)
	if d.down.Load() {
		return nil, errors.New("connection refused")
	}
	c := &fakeConn{}
	d.last.Store(c)
	return c, nil
}

func newTestBroker(t *testing.T, d *fakeDialer) *Broker {
	t.Helper()
	b := newBroker(d.dial,
		config.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return b
}

func TestPing_RedialsLostConnection(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d)
	ctx := context.Background()

	require.NoError(t, b.Ping(ctx))
	require.NoError(t, b.Ping(ctx))
	assert.Equal(t, int32(1), d.dials.Load(), "a live connection is reused")

	first := d.last.Load()
	first.closed.Store(true)

	require.NoError(t, b.Ping(ctx))
	assert.Equal(t, int32(2), d.dials.Load())
	assert.NotSame(t, first, d.last.Load())
}

func TestPing_ReportsUnreachableBroker(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d)
	ctx := context.Background()
	require.NoError(t, b.Ping(ctx))

	d.last.Load().closed.Store(true)
	d.down.Store(true)

	err := b.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, int32(2), d.dials.Load(), "ping dials once without backoff")

	d.down.Store(false)
	assert.NoError(t, b.Ping(ctx))
}

func TestPublish_RetriesDialWithBackoff(t *testing.T) {
	d := &fakeDialer{}
	d.down.Store(true)
	b := newTestBroker(t, d)

	err := b.Publish(context.Background(), "predictions", []byte(`{}`))
	require.Error(t, err)
	// MaxAttempts retries after the first try.
	assert.Equal(t, int32(3), d.dials.Load())
}

func TestClosedBroker(t *testing.T) {
	d := &fakeDialer{}
	b := newTestBroker(t, d)
	ctx := context.Background()
	require.NoError(t, b.Ping(ctx))

	conn := d.last.Load()
	require.NoError(t, b.Close())
	assert.True(t, conn.IsClosed())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Ping(ctx), queue.ErrClosed)
	assert.ErrorIs(t, b.Publish(ctx, "predictions", []byte(`{}`)), queue.ErrClosed)
	assert.ErrorIs(t, b.Consume(ctx, "predictions", func(context.Context, *queue.Message) {}), queue.ErrClosed)
	assert.Equal(t, int32(1), d.dials.Load())
}

func TestPublish_HonoursContextWhileLocked(t *testing.T) {
	b := newTestBroker(t, &fakeDialer{})
	require.NoError(t, b.lock(context.Background()))
	defer b.unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := b.Publish(ctx, "predictions", []byte(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestURL(t *testing.T) {
	cfg := config.QueueConfig{Host: "mq.internal", Port: 5672, User: "svc", Password: "s3cret"}
	uri, err := amqp.ParseURI(URL(cfg))
	require.NoError(t, err)
	assert.Equal(t, "mq.internal", uri.Host)
	assert.Equal(t, 5672, uri.Port)
	assert.Equal(t, "svc", uri.Username)
	assert.Equal(t, "s3cret", uri.Password)
	assert.Equal(t, "/", uri.Vhost)
}

// TestIntegrationPublishConsume runs against a live broker given by
// AMQP_HOST (and optional AMQP_PORT defaults to 5672, guest/guest).
func TestIntegrationPublishConsume(t *testing.T) {
	host := os.Getenv("AMQP_HOST")
	if host == "" {
		t.Skip("AMQP_HOST not set, skipping integration test")
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	b, err := Dial(ctx,
		config.QueueConfig{Host: host, Port: 5672, User: "guest", Password: "guest", VHost: "/"},
		config.RetryConfig{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		log)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	queueName := "test_" + uuid.NewString()
	require.NoError(t, b.Publish(ctx, queueName, []byte(`{"n":1}`)))

	var deliveries atomic.Int32
	consumeCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = b.Consume(consumeCtx, queueName, func(ctx context.Context, msg *queue.Message) {
			if deliveries.Add(1) == 1 {
				// Leave unacked: the broker must hand it back.
				return
			}
			assert.True(t, msg.Redelivered)
			assert.NoError(t, msg.Ack())
			stop()
		})
	}()

	<-consumeCtx.Done()
	assert.Equal(t, int32(2), deliveries.Load())
}
