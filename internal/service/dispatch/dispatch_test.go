package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/mocks"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taskQueue = "ml_tasks"

var (
	cost  = decimal.RequireFromString("1.00")
	input = json.RawMessage(`{"text":"I love this"}`)
)

type fixture struct {
	db     *mocks.MemoryDB
	broker *mocks.MemoryBroker
	svc    *Service
}

func newFixture(t *testing.T, balance string, cfg Config) *fixture {
	t.Helper()
	db := mocks.NewMemoryDB()
	db.Ledger.SetBalance(1, decimal.RequireFromString(balance))
	broker := mocks.NewMemoryBroker()
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = taskQueue
	}
	svc := New(db, db.Ledger, db.Tasks, broker, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &fixture{db: db, broker: broker, svc: svc}
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	acc, err := f.db.Ledger.GetAccount(context.Background(), 1)
	require.NoError(t, err)
	return acc.Balance
}

func TestSubmit_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})

	task, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("4.00")))
	assert.Equal(t, 1, f.db.Ledger.CountKind(domain.TransactionWithdrawal, task.ID))

	published := f.broker.Published(taskQueue)
	require.Len(t, published, 1)
	env, err := queue.DecodeTaskEnvelope(published[0])
	require.NoError(t, err)
	assert.Equal(t, task.ID.String(), env.TaskID)
	assert.Equal(t, int64(1), env.OwnerID)
	assert.JSONEq(t, string(input), string(env.Data))

	stored, err := f.svc.Get(context.Background(), task.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, stored.Status)
	assert.True(t, stored.Cost.Equal(cost))
}

func TestSubmit_InsufficientFundsHasNoSideEffects(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "0.50", Config{})

	_, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 0, f.db.Tasks.Count())
	assert.Empty(t, f.db.Ledger.Transactions())
	assert.Empty(t, f.broker.Published(taskQueue))
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("0.50")))
}

func TestSubmit_SpendsBalanceExactlyToZero(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5", Config{})

	for i := 0; i < 5; i++ {
		_, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
		require.NoError(t, err, "submission %d", i+1)
	}

	_, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.True(t, f.balance(t).IsZero())
	assert.Equal(t, 5, f.db.Tasks.Count())
	assert.Len(t, f.broker.Published(taskQueue), 5)
	assert.Len(t, f.db.Ledger.Transactions(), 5)
}

func TestSubmit_IdempotencyKeyIsScopedToOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	f.db.Ledger.SetBalance(2, decimal.RequireFromString("5.00"))
	key := uuid.NewString()

	first, err := f.svc.Submit(context.Background(), SubmitRequest{IdempotencyKey: key, OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)
	assert.Equal(t, TaskIDForKey(1, key), first.ID)

	_, err = f.svc.Submit(context.Background(), SubmitRequest{IdempotencyKey: key, OwnerID: 1, Input: input, Cost: cost})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	other, err := f.svc.Submit(context.Background(), SubmitRequest{IdempotencyKey: key, OwnerID: 2, Input: input, Cost: cost})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, int64(2), other.OwnerID)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("4.00")))
}

func TestSubmit_DuplicateTaskIDChargesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	id := uuid.New()

	_, err := f.svc.Submit(context.Background(), SubmitRequest{TaskID: id, OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), SubmitRequest{TaskID: id, OwnerID: 1, Input: input, Cost: cost})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("4.00")))
	assert.Equal(t, 1, f.db.Ledger.CountKind(domain.TransactionWithdrawal, id))
	assert.Len(t, f.broker.Published(taskQueue), 1)
}

func TestSubmit_PublishFailureRefunds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	f.broker.PublishFn = func(ctx context.Context, queueName string, body []byte) error {
		return errors.New("connection refused")
	}
	id := uuid.New()

	task, err := f.svc.Submit(context.Background(), SubmitRequest{TaskID: id, OwnerID: 1, Input: input, Cost: cost})
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.Nil(t, task)

	stored, err := f.db.Tasks.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, RollbackReason, stored.ErrorMessage)

	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("5.00")))
	assert.Equal(t, 1, f.db.Ledger.CountKind(domain.TransactionWithdrawal, id))
	assert.Equal(t, 1, f.db.Ledger.CountKind(domain.TransactionRefund, id))

	history, err := f.db.Ledger.ListTransactions(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Newest first: the refund follows the withdrawal.
	assert.Equal(t, domain.TransactionRefund, history[0].Kind)
	assert.Equal(t, domain.TransactionWithdrawal, history[1].Kind)
	for _, txn := range history {
		require.NotNil(t, txn.RelatedEntityID)
		assert.Equal(t, id, *txn.RelatedEntityID)
	}
	assert.True(t, history[0].Amount.Add(history[1].Amount).IsZero())

	sum, err := f.db.Ledger.SumCompleted(context.Background(), 1)
	require.NoError(t, err)
	// The seeded balance has no deposit behind it.
	assert.True(t, sum.IsZero())
}

func TestSubmit_PublishTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{PublishTimeout: 20 * time.Millisecond})
	f.broker.PublishFn = func(ctx context.Context, queueName string, body []byte) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("5.00")))
}

func TestSubmit_DebitFailureLeavesNoTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	f.db.Ledger.DebitFn = func(ctx context.Context, accountID int64, amount decimal.Decimal, related *uuid.UUID) (*domain.Transaction, error) {
		return nil, domain.ErrInsufficientFunds
	}

	_, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 0, f.db.Tasks.Count())
	assert.Empty(t, f.broker.Published(taskQueue))
}

func TestSubmit_Validation(t *testing.T) {
	t.Parallel()

	rejectAll := func(json.RawMessage) error { return errors.New("text is required") }

	tests := []struct {
		name  string
		cfg   Config
		req   SubmitRequest
		isErr error
	}{
		{
			name:  "malformed input",
			req:   SubmitRequest{OwnerID: 1, Input: json.RawMessage(`{"text":`), Cost: cost},
			isErr: domain.ErrValidation,
		},
		{
			name:  "missing owner",
			req:   SubmitRequest{Input: input, Cost: cost},
			isErr: domain.ErrValidation,
		},
		{
			name:  "input rejected by validator",
			cfg:   Config{ValidateInput: rejectAll},
			req:   SubmitRequest{OwnerID: 1, Input: input, Cost: cost},
			isErr: domain.ErrValidation,
		},
		{
			name:  "unknown account",
			req:   SubmitRequest{OwnerID: 2, Input: input, Cost: cost},
			isErr: store.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, "5.00", tt.cfg)
			_, err := f.svc.Submit(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.isErr)
			assert.Equal(t, 0, f.db.Tasks.Count())
			assert.Empty(t, f.db.Ledger.Transactions())
		})
	}
}

func TestSubmit_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "1.00", Config{})

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.db.Tasks.Count())
	assert.True(t, f.balance(t).IsZero())
	assert.Len(t, f.broker.Published(taskQueue), 1)
}

func TestRollback_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	task, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)

	require.NoError(t, f.svc.Rollback(context.Background(), task.ID))
	require.NoError(t, f.svc.Rollback(context.Background(), task.ID))

	assert.Equal(t, 1, f.db.Ledger.CountKind(domain.TransactionRefund, task.ID))
	assert.True(t, f.balance(t).Equal(decimal.RequireFromString("5.00")))
}

func TestRollback_CompletedTaskIsNotRefunded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	task, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)
	_, err = f.db.Tasks.Complete(context.Background(), task.ID, json.RawMessage(`{"label":"positive"}`), "worker-1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Rollback(context.Background(), task.ID))

	stored, err := f.db.Tasks.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	assert.Equal(t, 0, f.db.Ledger.CountKind(domain.TransactionRefund, task.ID))
}

func TestRollback_RefundFailureKeepsTaskPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	task, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)

	f.db.Ledger.CreditFn = func(ctx context.Context, accountID int64, amount decimal.Decimal, kind domain.TransactionKind, related *uuid.UUID) (*domain.Transaction, error) {
		return nil, store.ErrTransactionFailed
	}
	assert.Error(t, f.svc.Rollback(context.Background(), task.ID))

	stored, err := f.db.Tasks.GetByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, stored.Status)

	f.db.Ledger.CreditFn = nil
	require.NoError(t, f.svc.Rollback(context.Background(), task.ID))
	assert.Equal(t, 1, f.db.Ledger.CountKind(domain.TransactionRefund, task.ID))
}

func TestGetAndHistoryAreOwnerScoped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "5.00", Config{})
	first, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)
	second, err := f.svc.Submit(context.Background(), SubmitRequest{OwnerID: 1, Input: input, Cost: cost})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), first.ID, 2)
	assert.ErrorIs(t, err, store.ErrNotFound)

	history, err := f.svc.History(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)

	history, err = f.svc.History(context.Background(), 2, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}
