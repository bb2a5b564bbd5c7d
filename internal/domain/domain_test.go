package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid", "user@example.com", "correcthorsebattery", nil},
		{"trimmed email", "  user@example.com ", "correcthorsebattery", nil},
		{"empty email", "", "correcthorsebattery", ErrEmptyEmail},
		{"bad email", "not-an-email", "correcthorsebattery", ErrInvalidEmail},
		{"short password", "user@example.com", "short", ErrPasswordTooShort},
		{"long password", "user@example.com", string(make([]byte, 73)), ErrPasswordTooLong},
		{"no password", "user@example.com", "", ErrEmptyPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewUser(tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, u)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user@example.com", u.Email)
			assert.False(t, u.CreatedAt.IsZero())
		})
	}
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("1")))
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("0.01")))
	assert.ErrorIs(t, ValidateAmount(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("-5")), ErrInvalidAmount)
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("0.001")), ErrInvalidAmount)
}

func TestNewTransactionSign(t *testing.T) {
	related := uuid.New()

	w, err := NewTransaction(1, decimal.NewFromInt(3), TransactionWithdrawal, &related, "")
	require.NoError(t, err)
	assert.True(t, w.Amount.Equal(decimal.NewFromInt(-3)))
	assert.Equal(t, TransactionCompleted, w.Status)
	assert.NotNil(t, w.CompletedAt)

	r, err := NewTransaction(1, decimal.NewFromInt(3), TransactionRefund, &related, "")
	require.NoError(t, err)
	assert.True(t, r.Amount.Equal(decimal.NewFromInt(3)))

	_, err = NewTransaction(1, decimal.NewFromInt(3), TransactionKind("BONUS"), nil, "")
	assert.ErrorIs(t, err, ErrInvalidTransactionKind)
}

func TestTransactionKindIsCredit(t *testing.T) {
	assert.True(t, TransactionDeposit.IsCredit())
	assert.True(t, TransactionRefund.IsCredit())
	assert.True(t, TransactionAdjustment.IsCredit())
	assert.False(t, TransactionWithdrawal.IsCredit())
	assert.True(t, TransactionWithdrawal.Valid())
}

func TestNewTask(t *testing.T) {
	input := json.RawMessage(`{"text":"great"}`)

	task, err := NewTask(uuid.Nil, 7, input, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, KindPrediction, task.Kind)

	id := uuid.New()
	task, err = NewTask(id, 7, input, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, id, task.ID)

	_, err = NewTask(uuid.Nil, 0, input, decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = NewTask(uuid.Nil, 7, json.RawMessage(`{bad`), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTaskStatusIsTerminal(t *testing.T) {
	assert.False(t, TaskStatusPending.IsTerminal())
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
}
