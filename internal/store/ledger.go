package store

import (
	"context"
	"database/sql"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStore persists account balances and the append-only transaction log.
//
// Implementations must make each Debit and Credit a single atomic unit: the
// balance change and its transaction row are written together or not at all,
// and concurrent operations on one account are serialized.
type LedgerStore interface {
	// CreateAccount opens a zero-balance account for the user.
	CreateAccount(ctx context.Context, userID int64) (*domain.Account, error)

	// GetAccount returns the account. Returns ErrAccountNotFound if absent.
	GetAccount(ctx context.Context, userID int64) (*domain.Account, error)

	// Debit subtracts amount and records a COMPLETED WITHDRAWAL.
	// Returns domain.ErrInsufficientFunds when the balance is lower than amount,
	// ErrAccountNotFound when there is no account, and ErrTransactionExists when a
	// withdrawal for relatedEntityID was already recorded.
	Debit(ctx context.Context, accountID int64, amount decimal.Decimal, relatedEntityID *uuid.UUID) (*domain.Transaction, error)

	// Credit adds amount and records a COMPLETED transaction of the given kind.
	// Returns ErrTransactionExists when a refund for relatedEntityID was already recorded.
	Credit(
		ctx context.Context,
		accountID int64,
		amount decimal.Decimal,
		kind domain.TransactionKind,
		relatedEntityID *uuid.UUID,
	) (*domain.Transaction, error)

	// ListTransactions returns the account's transactions, newest first.
	ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Transaction, error)

	// SumCompleted returns the sum of all COMPLETED transaction amounts.
	SumCompleted(ctx context.Context, accountID int64) (decimal.Decimal, error)

	// WithTx returns a LedgerStore that runs on the given transaction.
	WithTx(tx *sql.Tx) LedgerStore
}
