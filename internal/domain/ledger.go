package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places the ledger stores.
const AmountScale = 2

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	TransactionDeposit    TransactionKind = "DEPOSIT"
	TransactionWithdrawal TransactionKind = "WITHDRAWAL"
	TransactionRefund     TransactionKind = "REFUND"
	TransactionAdjustment TransactionKind = "ADJUSTMENT"
)

// IsCredit reports whether entries of this kind increase a balance.
func (k TransactionKind) IsCredit() bool {
	switch k {
	case TransactionDeposit, TransactionRefund, TransactionAdjustment:
		return true
	default:
		return false
	}
}

// Valid reports whether k is a known kind.
func (k TransactionKind) Valid() bool {
	return k == TransactionWithdrawal || k.IsCredit()
}

// TransactionStatus is the settlement state of a ledger entry.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// Account holds the spendable balance of one user.
type Account struct {
	UserID    int64           `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is an append-only ledger entry. Amount is signed: withdrawals
// are negative, credits positive.
type Transaction struct {
	ID              uuid.UUID         `json:"id"`
	AccountID       int64             `json:"account_id"`
	Amount          decimal.Decimal   `json:"amount"`
	Kind            TransactionKind   `json:"type"`
	Status          TransactionStatus `json:"status"`
	Description     string            `json:"description,omitempty"`
	RelatedEntityID *uuid.UUID        `json:"related_entity_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// NewTransaction builds a COMPLETED ledger entry for the given unsigned
// amount, applying the sign implied by kind.
func NewTransaction(
	accountID int64,
	amount decimal.Decimal,
	kind TransactionKind,
	relatedEntityID *uuid.UUID,
	description string,
) (*Transaction, error) {
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTransactionKind, kind)
	}

	signed := amount
	if kind == TransactionWithdrawal {
		signed = amount.Neg()
	}

	now := time.Now().UTC()
	return &Transaction{
		ID:              uuid.New(),
		AccountID:       accountID,
		Amount:          signed,
		Kind:            kind,
		Status:          TransactionCompleted,
		Description:     description,
		RelatedEntityID: relatedEntityID,
		CreatedAt:       now,
		CompletedAt:     &now,
	}, nil
}

// ValidateAmount rejects non-positive amounts and amounts with more than
// AmountScale decimal places.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be positive, got %s", ErrInvalidAmount, amount)
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: at most %d decimal places, got %s", ErrInvalidAmount, AmountScale, amount)
	}
	return nil
}
