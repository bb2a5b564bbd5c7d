package mocks

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryLedgerStore implements store.LedgerStore in memory with the same
// error contract as the PostgreSQL store.
type MemoryLedgerStore struct {
	db *MemoryDB

	DebitFn  func(ctx context.Context, accountID int64, amount decimal.Decimal, related *uuid.UUID) (*domain.Transaction, error)
	CreditFn func(ctx context.Context, accountID int64, amount decimal.Decimal, kind domain.TransactionKind, related *uuid.UUID) (*domain.Transaction, error)
}

var _ store.LedgerStore = (*MemoryLedgerStore)(nil)

// CreateAccount implements store.LedgerStore.
func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.state.accounts[userID]; ok {
		return nil, store.ErrDuplicate
	}
	acc := &domain.Account{UserID: userID, Balance: decimal.Zero, UpdatedAt: time.Now().UTC()}
	m.db.state.accounts[userID] = acc
	c := *acc
	return &c, nil
}

// GetAccount implements store.LedgerStore.
func (m *MemoryLedgerStore) GetAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	acc, ok := m.db.state.accounts[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	c := *acc
	return &c, nil
}

// SetBalance seeds an account, creating it when needed. Test helper only.
func (m *MemoryLedgerStore) SetBalance(userID int64, balance decimal.Decimal) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.state.accounts[userID] = &domain.Account{UserID: userID, Balance: balance, UpdatedAt: time.Now().UTC()}
}

// Debit implements store.LedgerStore.
func (m *MemoryLedgerStore) Debit(
	ctx context.Context,
	accountID int64,
	amount decimal.Decimal,
	related *uuid.UUID,
) (*domain.Transaction, error) {
	if m.DebitFn != nil {
		return m.DebitFn(ctx, accountID, amount, related)
	}
	return m.apply(accountID, amount, domain.TransactionWithdrawal, related)
}

// Credit implements store.LedgerStore.
func (m *MemoryLedgerStore) Credit(
	ctx context.Context,
	accountID int64,
	amount decimal.Decimal,
	kind domain.TransactionKind,
	related *uuid.UUID,
) (*domain.Transaction, error) {
	if m.CreditFn != nil {
		return m.CreditFn(ctx, accountID, amount, kind, related)
	}
	if !kind.IsCredit() {
		return nil, domain.ErrInvalidTransactionKind
	}
	return m.apply(accountID, amount, kind, related)
}

func (m *MemoryLedgerStore) apply(
	accountID int64,
	amount decimal.Decimal,
	kind domain.TransactionKind,
	related *uuid.UUID,
) (*domain.Transaction, error) {
	txn, err := domain.NewTransaction(accountID, amount, kind, related, "")
	if err != nil {
		return nil, err
	}

	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	acc, ok := m.db.state.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	if related != nil && (kind == domain.TransactionWithdrawal || kind == domain.TransactionRefund) {
		for _, t := range m.db.state.transactions {
			if t.Kind == kind && t.RelatedEntityID != nil && *t.RelatedEntityID == *related {
				return nil, store.ErrTransactionExists
			}
		}
	}
	next := acc.Balance.Add(txn.Amount)
	if next.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}
	acc.Balance = next
	acc.UpdatedAt = txn.CreatedAt
	m.db.state.transactions = append(m.db.state.transactions, txn)
	c := *txn
	return &c, nil
}

// ListTransactions implements store.LedgerStore.
func (m *MemoryLedgerStore) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]*domain.Transaction, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*domain.Transaction
	for i := len(m.db.state.transactions) - 1; i >= 0; i-- {
		t := m.db.state.transactions[i]
		if t.AccountID == accountID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// SumCompleted implements store.LedgerStore.
func (m *MemoryLedgerStore) SumCompleted(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	sum := decimal.Zero
	for _, t := range m.db.state.transactions {
		if t.AccountID == accountID && t.Status == domain.TransactionCompleted {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

// Transactions returns every recorded transaction in insertion order.
func (m *MemoryLedgerStore) Transactions() []domain.Transaction {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := make([]domain.Transaction, len(m.db.state.transactions))
	for i, t := range m.db.state.transactions {
		out[i] = *t
	}
	return out
}

// CountKind counts transactions of kind that reference related.
func (m *MemoryLedgerStore) CountKind(kind domain.TransactionKind, related uuid.UUID) int {
	n := 0
	for _, t := range m.Transactions() {
		if t.Kind == kind && t.RelatedEntityID != nil && *t.RelatedEntityID == related {
			n++
		}
	}
	return n
}

// WithTx implements store.LedgerStore.
func (m *MemoryLedgerStore) WithTx(*sql.Tx) store.LedgerStore { return m }

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
