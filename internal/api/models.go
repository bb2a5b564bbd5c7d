package api

import (
	"encoding/json"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/shopspring/decimal"
)

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the body of POST /auth/refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AuthResponse is returned by register, login and refresh.
type AuthResponse struct {
	UserID       int64  `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`

	// ExpiresAt is the RFC 3339 expiry of the access token.
	ExpiresAt string `json:"expires_at"`
}

// PredictRequest is the body of POST /predictions/predict.
type PredictRequest struct {
	Data json.RawMessage `json:"data" validate:"required"`
}

// PredictResponse acknowledges a queued prediction.
type PredictResponse struct {
	PredictionID string          `json:"prediction_id"`
	Status       string          `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
	Cost         decimal.Decimal `json:"cost"`
}

// PredictionResponse is the client view of a task.
type PredictionResponse struct {
	PredictionID string          `json:"prediction_id"`
	Status       string          `json:"status"`
	Input        json.RawMessage `json:"input,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	Cost         decimal.Decimal `json:"cost"`
	Timestamp    time.Time       `json:"timestamp"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// HistoryResponse lists predictions newest first.
type HistoryResponse struct {
	Predictions []PredictionResponse `json:"predictions"`
}

// BalanceResponse is returned by GET /users/balance.
type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// TopUpRequest is the body of POST /users/balance/topup.
type TopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TopUpResponse reports a deposit.
type TopUpResponse struct {
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	TransactionID   string          `json:"transaction_id"`
}

// TransactionResponse is one ledger entry.
type TransactionResponse struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	Type            string          `json:"type"`
	Status          string          `json:"status"`
	Description     string          `json:"description,omitempty"`
	RelatedEntityID string          `json:"related_entity_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TransactionsResponse lists ledger entries newest first.
type TransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// LinkTelegramRequest is the body of PUT /users/telegram. A null chat_id
// unlinks the chat.
type LinkTelegramRequest struct {
	ChatID *int64 `json:"chat_id"`
}

// UserResponse is returned by GET /users/me.
type UserResponse struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	TelegramChatID *int64    `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func predictionToResponse(t *domain.Task) PredictionResponse {
	return PredictionResponse{
		PredictionID: t.ID.String(),
		Status:       string(t.Status),
		Input:        t.Input,
		Result:       t.Result,
		Error:        t.ErrorMessage,
		Cost:         t.Cost,
		Timestamp:    t.CreatedAt,
		CompletedAt:  t.CompletedAt,
	}
}

func transactionToResponse(tx *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:          tx.ID.String(),
		Amount:      tx.Amount,
		Type:        string(tx.Kind),
		Status:      string(tx.Status),
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt,
	}
	if tx.RelatedEntityID != nil {
		resp.RelatedEntityID = tx.RelatedEntityID.String()
	}
	return resp
}
