package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/mocks"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLedgerFixture(t *testing.T, balance string) (*mocks.MemoryDB, LedgerService) {
	t.Helper()
	db := mocks.NewMemoryDB()
	db.Ledger.SetBalance(1, decimal.RequireFromString(balance))
	return db, NewLedgerService(db.Ledger, db, testLogger())
}

func TestLedgerService_GetBalance(t *testing.T) {
	t.Parallel()

	_, svc := newLedgerFixture(t, "12.50")

	bal, err := svc.GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("12.50")))

	_, err = svc.GetBalance(context.Background(), 99)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLedgerService_Debit(t *testing.T) {
	t.Parallel()

	t.Run("sufficient balance", func(t *testing.T) {
		t.Parallel()
		db, svc := newLedgerFixture(t, "5.00")
		taskID := uuid.New()

		txn, err := svc.Debit(context.Background(), 1, decimal.RequireFromString("1.00"), &taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionWithdrawal, txn.Kind)
		assert.True(t, txn.Amount.Equal(decimal.RequireFromString("-1.00")))
		assert.Equal(t, domain.TransactionCompleted, txn.Status)

		bal, _ := svc.GetBalance(context.Background(), 1)
		assert.True(t, bal.Equal(decimal.RequireFromString("4.00")))
		assert.Equal(t, 1, db.Ledger.CountKind(domain.TransactionWithdrawal, taskID))
	})

	t.Run("insufficient balance leaves no trace", func(t *testing.T) {
		t.Parallel()
		db, svc := newLedgerFixture(t, "0.50")

		_, err := svc.Debit(context.Background(), 1, decimal.RequireFromString("1.00"), nil)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		bal, _ := svc.GetBalance(context.Background(), 1)
		assert.True(t, bal.Equal(decimal.RequireFromString("0.50")))
		assert.Empty(t, db.Ledger.Transactions())
	})

	t.Run("same task charged twice", func(t *testing.T) {
		t.Parallel()
		_, svc := newLedgerFixture(t, "5.00")
		taskID := uuid.New()

		_, err := svc.Debit(context.Background(), 1, decimal.RequireFromString("1.00"), &taskID)
		require.NoError(t, err)
		_, err = svc.Debit(context.Background(), 1, decimal.RequireFromString("1.00"), &taskID)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("invalid amounts", func(t *testing.T) {
		t.Parallel()
		_, svc := newLedgerFixture(t, "5.00")
		for _, amount := range []string{"0", "-1", "0.001"} {
			_, err := svc.Debit(context.Background(), 1, decimal.RequireFromString(amount), nil)
			assert.ErrorIs(t, err, domain.ErrInvalidAmount, amount)
		}
	})
}

func TestLedgerService_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	t.Parallel()

	_, svc := newLedgerFixture(t, "1.00")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.New()
			_, err := svc.Debit(context.Background(), 1, decimal.RequireFromString("1.00"), &id)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientFunds):
			insufficient++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)

	bal, _ := svc.GetBalance(context.Background(), 1)
	assert.True(t, bal.IsZero())
}

func TestLedgerService_Credit(t *testing.T) {
	t.Parallel()

	_, svc := newLedgerFixture(t, "0")
	taskID := uuid.New()

	txn, err := svc.Credit(context.Background(), 1, decimal.RequireFromString("1.00"), domain.TransactionRefund, &taskID)
	require.NoError(t, err)
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("1.00")))

	_, err = svc.Credit(context.Background(), 1, decimal.RequireFromString("1.00"), domain.TransactionRefund, &taskID)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	_, err = svc.Credit(context.Background(), 1, decimal.RequireFromString("1.00"), domain.TransactionWithdrawal, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransactionKind)
}

func TestLedgerService_Deposit(t *testing.T) {
	t.Parallel()

	_, svc := newLedgerFixture(t, "2.00")

	top, err := svc.Deposit(context.Background(), 1, decimal.RequireFromString("3.25"))
	require.NoError(t, err)
	assert.True(t, top.PreviousBalance.Equal(decimal.RequireFromString("2.00")))
	assert.True(t, top.CurrentBalance.Equal(decimal.RequireFromString("5.25")))
	assert.Equal(t, domain.TransactionDeposit, top.Transaction.Kind)

	_, err = svc.Deposit(context.Background(), 1, decimal.RequireFromString("-3"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Deposit(context.Background(), 42, decimal.RequireFromString("1"))
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestLedgerService_ListTransactionsNewestFirst(t *testing.T) {
	t.Parallel()

	_, svc := newLedgerFixture(t, "0")
	_, err := svc.Deposit(context.Background(), 1, decimal.RequireFromString("10"))
	require.NoError(t, err)
	id := uuid.New()
	_, err = svc.Debit(context.Background(), 1, decimal.RequireFromString("1"), &id)
	require.NoError(t, err)

	txns, err := svc.ListTransactions(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, domain.TransactionWithdrawal, txns[0].Kind)
	assert.Equal(t, domain.TransactionDeposit, txns[1].Kind)

	txns, err = svc.ListTransactions(context.Background(), 1, 1, 1)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TransactionDeposit, txns[0].Kind)
}

func TestLedgerService_Reconcile(t *testing.T) {
	t.Parallel()

	db := mocks.NewMemoryDB()
	svc := NewLedgerService(db.Ledger, db, testLogger())
	_, err := db.Ledger.CreateAccount(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.Deposit(context.Background(), 1, decimal.RequireFromString("5"))
	require.NoError(t, err)
	id := uuid.New()
	_, err = svc.Debit(context.Background(), 1, decimal.RequireFromString("2"), &id)
	require.NoError(t, err)
	_, err = svc.Credit(context.Background(), 1, decimal.RequireFromString("2"), domain.TransactionRefund, &id)
	require.NoError(t, err)
	assert.NoError(t, svc.Reconcile(context.Background(), 1))

	// Seeding a balance without a transaction breaks the invariant.
	db.Ledger.SetBalance(1, decimal.RequireFromString("100"))
	assert.ErrorIs(t, svc.Reconcile(context.Background(), 1), domain.ErrLedgerMismatch)
}

func TestNormalizePage(t *testing.T) {
	t.Parallel()

	l, o := NormalizePage(0, -5)
	assert.Equal(t, DefaultPageSize, l)
	assert.Equal(t, 0, o)

	l, _ = NormalizePage(MaxPageSize+1, 0)
	assert.Equal(t, MaxPageSize, l)
}
