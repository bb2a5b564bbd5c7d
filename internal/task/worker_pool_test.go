package task

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskQueue = "ml_tasks"

var fastRestart = config.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

// consumerFunc adapts a function to queue.Consumer.
type consumerFunc func(ctx context.Context, queueName string, handler queue.Handler) error

func (f consumerFunc) Consume(ctx context.Context, queueName string, handler queue.Handler) error {
	return f(ctx, queueName, handler)
}

func TestNewWorkerPool_DefaultsWorkerCount(t *testing.T) {
	t.Parallel()

	pool := NewWorkerPool(consumerFunc(nil), nil, WorkerPoolConfig{WorkerCount: -5}, testLogger())
	assert.Equal(t, 1, pool.workerCount)
	assert.Equal(t, uint64(10), pool.restart.MaxAttempts)
}

func TestWorkerPool_ProcessesAllTasks(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, PredictorFunc(fixedResult))
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		task, body := f.pendingTask(t)
		ids = append(ids, task.ID)
		require.NoError(t, f.broker.Publish(context.Background(), taskQueue, body))
	}

	pool := NewWorkerPool(f.broker, f.worker, WorkerPoolConfig{WorkerCount: 2, Queue: taskQueue, Restart: fastRestart}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			if f.status(t, id).Status != domain.TaskStatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker pool did not stop")
	}
	assert.Equal(t, int64(5), pool.Processed())
	assert.Equal(t, 0, f.broker.Pending(taskQueue))
	assert.Len(t, f.broker.Published(resultQueue), 5)
}

func TestWorkerPool_RedeliversAfterStoreOutage(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, PredictorFunc(fixedResult))
	var calls atomic.Int32
	f.db.Tasks.CompleteFn = func(ctx context.Context, id uuid.UUID, result json.RawMessage, workerID string) (*domain.Task, error) {
		if calls.Add(1) == 1 {
			return nil, store.ErrTransactionFailed
		}
		f.db.Tasks.CompleteFn = nil
		return f.db.Tasks.Complete(ctx, id, result, workerID)
	}
	task, body := f.pendingTask(t)
	require.NoError(t, f.broker.Publish(context.Background(), taskQueue, body))

	pool := NewWorkerPool(f.broker, f.worker, WorkerPoolConfig{WorkerCount: 1, Queue: taskQueue, Restart: fastRestart}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.status(t, task.ID).Status == domain.TaskStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWorkerPool_RestartsFailingConsumer(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	consumer := consumerFunc(func(ctx context.Context, queueName string, handler queue.Handler) error {
		if attempts.Add(1) < 3 {
			return errors.New("channel closed")
		}
		<-ctx.Done()
		return nil
	})

	pool := NewWorkerPool(consumer, nil, WorkerPoolConfig{WorkerCount: 1, Queue: taskQueue, Restart: fastRestart}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool { return attempts.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestWorkerPool_GivesUpAfterRestartBudget(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	consumer := consumerFunc(func(ctx context.Context, queueName string, handler queue.Handler) error {
		attempts.Add(1)
		return errors.New("connection refused")
	})

	pool := NewWorkerPool(consumer, nil, WorkerPoolConfig{WorkerCount: 2, Queue: taskQueue, Restart: fastRestart}, testLogger())

	err := pool.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.GreaterOrEqual(t, attempts.Load(), int32(fastRestart.MaxAttempts+1))
}
