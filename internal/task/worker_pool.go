package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/backoff"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	"golang.org/x/sync/errgroup"
)

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many consume loops run concurrently.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// Queue is the task queue to consume.
	Queue string

	// Restart bounds how often a failing consume loop is restarted before
	// the pool gives up.
	Restart config.RetryConfig
}

// WorkerPool runs WorkerCount independent consume loops, each delivering
// one message at a time to the Worker.
type WorkerPool struct {
	consumer    queue.Consumer
	worker      *Worker
	workerCount int
	queue       string
	restart     config.RetryConfig
	logger      *slog.Logger

	processed atomic.Int64
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(consumer queue.Consumer, worker *Worker, cfg WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "worker_pool"))

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			slog.Int("specified_count", cfg.WorkerCount),
			slog.Int("default_count", 1))
		workerCount = 1
	}
	if cfg.Restart.MaxAttempts == 0 {
		cfg.Restart = config.RetryConfig{MaxAttempts: 10, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
	}

	return &WorkerPool{
		consumer:    consumer,
		worker:      worker,
		workerCount: workerCount,
		queue:       cfg.Queue,
		restart:     cfg.Restart,
		logger:      logger,
	}
}

// Processed returns the number of deliveries handled so far.
func (p *WorkerPool) Processed() int64 {
	return p.processed.Load()
}

// Run blocks until ctx is cancelled, returning nil, or until a consume loop
// has exhausted its restarts, returning that loop's last error. In the
// latter case the other loops are stopped too.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.logger.Info("starting worker pool",
		slog.Int("workers", p.workerCount),
		slog.String("queue", p.queue))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workerCount; i++ {
		slot := i
		g.Go(func() error {
			return p.loop(ctx, slot)
		})
	}

	err := g.Wait()
	p.logger.Info("worker pool stopped", slog.Int64("processed", p.Processed()))
	return err
}

// loop keeps one consumer running, restarting it with backoff after
// failures. A delivery handled since the last failure resets the backoff.
func (p *WorkerPool) loop(ctx context.Context, slot int) error {
	log := p.logger.With(slog.Int("slot", slot))
	policy := backoff.New(p.restart)
	var handled atomic.Bool

	handler := func(ctx context.Context, msg *queue.Message) {
		p.worker.Handle(ctx, msg)
		p.processed.Add(1)
		handled.Store(true)
	}

	for {
		err := p.consumer.Consume(ctx, p.queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("consumer for %q stopped unexpectedly", p.queue)
		}
		if handled.Swap(false) {
			policy = backoff.New(p.restart)
		}

		delay, stop := policy.Next()
		if stop {
			log.Error("consumer failed too often, giving up", slog.String("error", err.Error()))
			return fmt.Errorf("worker %d: %w", slot, err)
		}
		log.Warn("consumer stopped, restarting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
