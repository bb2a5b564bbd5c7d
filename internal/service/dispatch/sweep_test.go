package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSweeper(f *fixture, now time.Time) *Sweeper {
	sw := NewSweeper(f.svc, SweepConfig{ExpireAfter: 15 * time.Minute, BatchSize: 10},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	sw.now = func() time.Time { return now }
	return sw
}

func TestSweep_RefundsChargeLeftByFailedRollback(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	f.broker.PublishFn = func(ctx context.Context, queueName string, body []byte) error {
		return errors.New("broker down")
	}
	f.db.Ledger.CreditFn = func(ctx context.Context, accountID int64, amount decimal.Decimal, kind domain.TransactionKind, related *uuid.UUID) (*domain.Transaction, error) {
		return nil, store.ErrTransactionFailed
	}
	id := uuid.New()

	_, err := f.svc.Submit(context.Background(), SubmitRequest{TaskID: id, OwnerID: 1, Input: input, Cost: cost})
	require.ErrorIs(t, err, domain.ErrServiceUnavailable)

	stored, err := f.db.Tasks.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusPending, stored.Status)
	require.True(t, f.balance(t).Equal(decimal.RequireFromString("4.00")))

	f.db.Ledger.CreditFn = nil

	// Not stale yet.
	res := newSweeper(f, time.Now()).Sweep(context.Background())
	assert.Zero(t, res.Found)

	res = newSweeper(f, time.Now().Add(16*time.Minute)).Sweep(context.Background())
	assert.Equal(t, SweepResult{Found: 1, Refunded: 1}, res)

	stored, err = f.db.Tasks.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, ExpiredReason, stored.ErrorMessage)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("5.00")))
	assert.Equal(t, 1, f.db.Ledger.CountKind(domain.TransactionRefund, id))

	// A second sweep finds nothing left to do.
	res = newSweeper(f, time.Now().Add(16*time.Minute)).Sweep(context.Background())
	assert.Zero(t, res.Found)
	assert.Equal(t, 1, f.db.Ledger.CountKind(domain.TransactionRefund, id))
}

func TestSweep_LeavesFinishedTasksAlone(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	done, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)
	_, err = f.db.Tasks.Complete(context.Background(), done.ID, json.RawMessage(`{"prediction":"positive"}`), "worker-1")
	require.NoError(t, err)
	stuck, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)

	res := newSweeper(f, time.Now().Add(time.Hour)).Sweep(context.Background())
	assert.Equal(t, SweepResult{Found: 1, Refunded: 1}, res)

	completed, err := f.db.Tasks.GetByID(context.Background(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, completed.Status)
	assert.Equal(t, 0, f.db.Ledger.CountKind(domain.TransactionRefund, done.ID))

	expired, err := f.db.Tasks.GetByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, expired.Status)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("4.00")))
}

func TestSweep_RefundErrorKeepsTaskForNextSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	task, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)

	f.db.Ledger.CreditFn = func(ctx context.Context, accountID int64, amount decimal.Decimal, kind domain.TransactionKind, related *uuid.UUID) (*domain.Transaction, error) {
		return nil, store.ErrTransactionFailed
	}
	sw := newSweeper(f, time.Now().Add(time.Hour))
	assert.Equal(t, SweepResult{Found: 1, Errors: 1}, sw.Sweep(context.Background()))

	f.db.Ledger.CreditFn = nil
	assert.Equal(t, SweepResult{Found: 1, Refunded: 1}, sw.Sweep(context.Background()))
	assert.Equal(t, 1, f.db.Ledger.CountKind(domain.TransactionRefund, task.ID))
}

func TestSweeperRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	task, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)

	sw := newSweeper(f, time.Now().Add(time.Hour))
	sw.cfg.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.db.Ledger.CountKind(domain.TransactionRefund, task.ID) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
