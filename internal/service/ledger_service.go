package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/logger"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultPageSize is used when a list call passes a non-positive limit.
const DefaultPageSize = 50

// MaxPageSize caps the limit of list calls.
const MaxPageSize = 500

// TopUp is the outcome of a Deposit.
type TopUp struct {
	PreviousBalance decimal.Decimal
	CurrentBalance  decimal.Decimal
	Transaction     *domain.Transaction
}

// LedgerService manages account balances and their append-only transaction log.
type LedgerService interface {
	// GetBalance returns the current balance. Returns store.ErrAccountNotFound
	// when the account does not exist.
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)

	// Debit charges amount and records a WITHDRAWAL tagged with relatedEntityID.
	Debit(ctx context.Context, accountID int64, amount decimal.Decimal, relatedEntityID *uuid.UUID) (*domain.Transaction, error)

	// Credit adds amount under a DEPOSIT, REFUND or ADJUSTMENT transaction.
	Credit(
		ctx context.Context,
		accountID int64,
		amount decimal.Decimal,
		kind domain.TransactionKind,
		relatedEntityID *uuid.UUID,
	) (*domain.Transaction, error)

	// Deposit tops up the account and reports the balance before and after.
	Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*TopUp, error)

	// ListTransactions returns the account's transactions, newest first.
	ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Transaction, error)

	// Reconcile returns domain.ErrLedgerMismatch when the balance differs from
	// the sum of completed transactions.
	Reconcile(ctx context.Context, accountID int64) error
}

type ledgerService struct {
	ledger store.LedgerStore
	tx     store.Transactor
	logger *slog.Logger
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(ledger store.LedgerStore, tx store.Transactor, logger *slog.Logger) LedgerService {
	if ledger == nil || tx == nil {
		panic("ledger store and transactor are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerService{
		ledger: ledger,
		tx:     tx,
		logger: logger.With(slog.String("component", "ledger_service")),
	}
}

func (s *ledgerService) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	acc, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return acc.Balance, nil
}

func (s *ledgerService) Debit(
	ctx context.Context,
	accountID int64,
	amount decimal.Decimal,
	relatedEntityID *uuid.UUID,
) (*domain.Transaction, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	txn, err := s.ledger.Debit(ctx, accountID, amount, relatedEntityID)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			log.Debug("debit rejected: insufficient funds",
				slog.Int64("account_id", accountID),
				slog.String("amount", amount.String()))
		}
		return nil, fmt.Errorf("failed to debit account: %w", err)
	}

	log.Info("account debited",
		slog.Int64("account_id", accountID),
		slog.String("amount", amount.String()),
		slog.String("transaction_id", txn.ID.String()))
	return txn, nil
}

func (s *ledgerService) Credit(
	ctx context.Context,
	accountID int64,
	amount decimal.Decimal,
	kind domain.TransactionKind,
	relatedEntityID *uuid.UUID,
) (*domain.Transaction, error) {
	if !kind.IsCredit() {
		return nil, fmt.Errorf("%w: %s cannot credit an account", domain.ErrInvalidTransactionKind, kind)
	}

	txn, err := s.ledger.Credit(ctx, accountID, amount, kind, relatedEntityID)
	if err != nil {
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("account credited",
		slog.Int64("account_id", accountID),
		slog.String("amount", amount.String()),
		slog.String("kind", string(kind)),
		slog.String("transaction_id", txn.ID.String()))
	return txn, nil
}

func (s *ledgerService) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*TopUp, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var result TopUp
	err := s.tx.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		txn, err := st.Ledger.Credit(ctx, accountID, amount, domain.TransactionDeposit, nil)
		if err != nil {
			return err
		}
		// The credit holds the row lock, so this read sees exactly our update.
		acc, err := st.Ledger.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		result = TopUp{
			PreviousBalance: acc.Balance.Sub(amount),
			CurrentBalance:  acc.Balance,
			Transaction:     txn,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deposit: %w", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("account topped up",
		slog.Int64("account_id", accountID),
		slog.String("amount", amount.String()),
		slog.String("balance", result.CurrentBalance.String()))
	return &result, nil
}

func (s *ledgerService) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Transaction, error) {
	limit, offset = NormalizePage(limit, offset)
	txns, err := s.ledger.ListTransactions(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

func (s *ledgerService) Reconcile(ctx context.Context, accountID int64) error {
	acc, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}
	sum, err := s.ledger.SumCompleted(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}
	if !sum.Equal(acc.Balance) {
		logger.FromContextOrDefault(ctx, s.logger).Error("ledger mismatch",
			slog.Int64("account_id", accountID),
			slog.String("balance", acc.Balance.String()),
			slog.String("transactions_sum", sum.String()))
		return fmt.Errorf("%w: balance %s, transactions sum %s", domain.ErrLedgerMismatch, acc.Balance, sum)
	}
	return nil
}

// NormalizePage clamps list pagination to sane bounds.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
