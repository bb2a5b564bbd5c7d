// Package riverqueue implements queue.Broker on River, a job queue stored in
// PostgreSQL. It lets a deployment run without a separate AMQP server: queue
// names map to River queues and every message becomes a job.
//
// A handler that returns without acking makes the job fail, so River retries
// it with its own backoff. That keeps the at-least-once contract of the AMQP
// driver.
package riverqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/backoff"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// errNotAcknowledged fails a job whose handler left the message unsettled.
var errNotAcknowledged = errors.New("message not acknowledged")

// envelopeArgs carries an opaque queue body as a River job.
type envelopeArgs struct {
	Body json.RawMessage `json:"body"`
}

// Kind implements river.JobArgs.
func (envelopeArgs) Kind() string { return "queue_envelope" }

// Broker implements queue.Broker.
type Broker struct {
	pool     *pgxpool.Pool
	inserter *river.Client[pgx.Tx]
	logger   *slog.Logger
}

var (
	_ queue.Broker = (*Broker)(nil)
	_ queue.Pinger = (*Broker)(nil)
)

// Open connects a pgx pool, applies River's schema migrations and prepares an
// insert-only client for publishing.
func Open(ctx context.Context, databaseURL string, retryCfg config.RetryConfig, log *slog.Logger) (*Broker, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "river"))

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := backoff.Do(ctx, retryCfg, log, "postgres", pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres for river: %w", err)
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("river migrate up failed: %w", err)
	}

	inserter, err := river.NewClient(riverpgxv5.New(pool), &river.Config{Logger: log})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create river client: %w", err)
	}

	log.Info("river queue ready")
	return &Broker{pool: pool, inserter: inserter, logger: log}, nil
}

// Publish implements queue.Publisher. The job row is committed before
// Publish returns.
func (b *Broker) Publish(ctx context.Context, queueName string, body []byte) error {
	if !json.Valid(body) {
		return fmt.Errorf("river queue bodies must be JSON")
	}
	_, err := b.inserter.Insert(ctx, envelopeArgs{Body: body}, &river.InsertOpts{Queue: queueName})
	if err != nil {
		return fmt.Errorf("failed to insert job on %s: %w", queueName, err)
	}
	return nil
}

// Consume implements queue.Consumer with a dedicated River client working
// queueName one job at a time.
func (b *Broker) Consume(ctx context.Context, queueName string, handler queue.Handler) error {
	workers := river.NewWorkers()
	river.AddWorker(workers, &envelopeWorker{handler: handler})

	client, err := river.NewClient(riverpgxv5.New(b.pool), &river.Config{
		Queues:  map[string]river.QueueConfig{queueName: {MaxWorkers: 1}},
		Workers: workers,
		Logger:  b.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create river consumer: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start river consumer: %w", err)
	}
	b.logger.Info("consuming", slog.String("queue", queueName))

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop river consumer: %w", err)
	}
	return nil
}

// Ping reports whether the Postgres pool backing the queue is reachable.
func (b *Broker) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// Close releases the pool.
func (b *Broker) Close() error {
	b.pool.Close()
	return nil
}

type envelopeWorker struct {
	river.WorkerDefaults[envelopeArgs]
	handler queue.Handler
}

// Work hands the job body to the handler and maps settlement to River
// semantics: ack completes the job, nack without requeue cancels it, and
// anything else fails the attempt so River retries it.
func (w *envelopeWorker) Work(ctx context.Context, job *river.Job[envelopeArgs]) error {
	dropped := false
	msg := queue.NewMessage(job.Args.Body, job.Attempt > 1,
		func() error { return nil },
		func(requeue bool) error {
			dropped = !requeue
			return nil
		},
	)

	w.handler(ctx, msg)

	switch {
	case msg.Acked():
		return nil
	case dropped:
		return river.JobCancel(errors.New("message rejected by handler"))
	default:
		return errNotAcknowledged
	}
}
