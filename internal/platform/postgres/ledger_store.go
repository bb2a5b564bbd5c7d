package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/logger"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostgresLedgerStore implements store.LedgerStore.
//
// Debit and Credit are each a single statement: a CTE updates the account row
// (taking its row lock) and inserts the transaction row only when the update
// matched. Either both rows change or neither does, with or without an outer
// transaction.
type PostgresLedgerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLedgerStore creates a new PostgreSQL implementation of the LedgerStore interface.
func NewPostgresLedgerStore(db store.DBTX, logger *slog.Logger) *PostgresLedgerStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLedgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "ledger_store")),
	}
}

var _ store.LedgerStore = (*PostgresLedgerStore)(nil)

// WithTx implements store.LedgerStore.WithTx
func (s *PostgresLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return &PostgresLedgerStore{db: tx, logger: s.logger}
}

// CreateAccount implements store.LedgerStore.CreateAccount
func (s *PostgresLedgerStore) CreateAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	account := &domain.Account{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (user_id, balance, updated_at)
		VALUES ($1, 0, NOW())
		RETURNING balance, updated_at
	`, userID).Scan(&account.Balance, &account.UpdatedAt)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create account",
			slog.String("error", err.Error()),
			slog.Int64("user_id", userID))
		return nil, MapError(err)
	}
	return account, nil
}

// GetAccount implements store.LedgerStore.GetAccount
func (s *PostgresLedgerStore) GetAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	account := &domain.Account{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT balance, updated_at FROM accounts WHERE user_id = $1`,
		userID).Scan(&account.Balance, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, MapError(err)
	}
	return account, nil
}

const debitQuery = `
	WITH debited AS (
		UPDATE accounts
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING user_id
	)
	INSERT INTO transactions
		(id, account_id, amount, kind, status, description, related_entity_id, created_at, completed_at)
	SELECT $3, user_id, $4, $5, $6, $7, $8, $9, $9 FROM debited
	RETURNING id
`

const creditQuery = `
	WITH credited AS (
		UPDATE accounts
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING user_id
	)
	INSERT INTO transactions
		(id, account_id, amount, kind, status, description, related_entity_id, created_at, completed_at)
	SELECT $3, user_id, $4, $5, $6, $7, $8, $9, $9 FROM credited
	RETURNING id
`

// Debit implements store.LedgerStore.Debit
func (s *PostgresLedgerStore) Debit(
	ctx context.Context,
	accountID int64,
	amount decimal.Decimal,
	relatedEntityID *uuid.UUID,
) (*domain.Transaction, error) {
	txn, err := domain.NewTransaction(accountID, amount, domain.TransactionWithdrawal, relatedEntityID, describe(domain.TransactionWithdrawal, relatedEntityID))
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, debitQuery, amount, txn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Nothing matched: either no account or not enough balance.
			if _, getErr := s.GetAccount(ctx, accountID); getErr != nil {
				return nil, getErr
			}
			return nil, domain.ErrInsufficientFunds
		}
		return nil, err
	}
	return txn, nil
}

// Credit implements store.LedgerStore.Credit
func (s *PostgresLedgerStore) Credit(
	ctx context.Context,
	accountID int64,
	amount decimal.Decimal,
	kind domain.TransactionKind,
	relatedEntityID *uuid.UUID,
) (*domain.Transaction, error) {
	if !kind.IsCredit() {
		return nil, fmt.Errorf("%w: %s does not credit an account", domain.ErrInvalidTransactionKind, kind)
	}
	txn, err := domain.NewTransaction(accountID, amount, kind, relatedEntityID, describe(kind, relatedEntityID))
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, creditQuery, amount, txn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAccountNotFound
		}
		return nil, err
	}
	return txn, nil
}

// apply runs a balance-changing statement. It returns sql.ErrNoRows
// unwrapped when the account update matched no row.
func (s *PostgresLedgerStore) apply(ctx context.Context, query string, amount decimal.Decimal, txn *domain.Transaction) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, query,
		txn.AccountID,
		amount,
		txn.ID,
		txn.Amount,
		string(txn.Kind),
		string(txn.Status),
		nullString(txn.Description),
		txn.RelatedEntityID,
		txn.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrDuplicate) {
			log.Debug("ledger entry already recorded",
				slog.String("kind", string(txn.Kind)),
				slog.Int64("account_id", txn.AccountID))
		} else {
			log.Error("failed to apply ledger entry",
				slog.String("error", err.Error()),
				slog.String("kind", string(txn.Kind)),
				slog.Int64("account_id", txn.AccountID))
		}
		return mapped
	}

	log.Info("ledger entry recorded",
		slog.String("transaction_id", id.String()),
		slog.String("kind", string(txn.Kind)),
		slog.String("amount", txn.Amount.String()),
		slog.Int64("account_id", txn.AccountID))
	return nil
}

// ListTransactions implements store.LedgerStore.ListTransactions
func (s *PostgresLedgerStore) ListTransactions(
	ctx context.Context,
	accountID int64,
	limit, offset int,
) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, amount, kind, status, description, related_entity_id, created_at, completed_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	txns := make([]*domain.Transaction, 0)
	for rows.Next() {
		var (
			t           domain.Transaction
			kind        string
			status      string
			description sql.NullString
			related     uuid.NullUUID
			completedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Amount, &kind, &status, &description, &related, &t.CreatedAt, &completedAt); err != nil {
			return nil, MapError(err)
		}
		t.Kind = domain.TransactionKind(kind)
		t.Status = domain.TransactionStatus(status)
		t.Description = description.String
		if related.Valid {
			t.RelatedEntityID = &related.UUID
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.Time
		}
		txns = append(txns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return txns, nil
}

// SumCompleted implements store.LedgerStore.SumCompleted
func (s *PostgresLedgerStore) SumCompleted(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE account_id = $1 AND status = 'COMPLETED'
	`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, MapError(err)
	}
	return sum, nil
}

func describe(kind domain.TransactionKind, related *uuid.UUID) string {
	if related == nil {
		return ""
	}
	switch kind {
	case domain.TransactionWithdrawal:
		return "charge for task " + related.String()
	case domain.TransactionRefund:
		return "refund for task " + related.String()
	default:
		return ""
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
