package api

import (
	"log/slog"
	"net/http"

	"github.com/DimeNiceTry/EmotionClassifier/internal/api/shared"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/logger"
	"github.com/DimeNiceTry/EmotionClassifier/internal/service"
)

// UserHandler serves the authenticated user's profile, balance and
// transaction log.
type UserHandler struct {
	users  service.UserService
	ledger service.LedgerService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users service.UserService, ledger service.LedgerService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{
		users:  users,
		ledger: ledger,
		logger: logger.With(slog.String("component", "user_handler")),
	}
}

// Me handles GET /users/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get user")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, UserResponse{
		ID:             user.ID,
		Email:          user.Email,
		TelegramChatID: user.TelegramChatID,
		CreatedAt:      user.CreatedAt,
	})
}

// Balance handles GET /users/balance.
func (h *UserHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get balance")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, BalanceResponse{Balance: balance})
}

// TopUp handles POST /users/balance/topup.
func (h *UserHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req TopUpRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	topUp, err := h.ledger.Deposit(r.Context(), userID, req.Amount)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to top up balance")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("balance topped up",
		slog.String("amount", req.Amount.String()),
		slog.String("balance", topUp.CurrentBalance.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, TopUpResponse{
		PreviousBalance: topUp.PreviousBalance,
		CurrentBalance:  topUp.CurrentBalance,
		TransactionID:   topUp.Transaction.ID.String(),
	})
}

// Transactions handles GET /users/transactions.
func (h *UserHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	limit, offset, err := getPage(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	txs, err := h.ledger.ListTransactions(r.Context(), userID, limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list transactions")
		return
	}
	resp := TransactionsResponse{Transactions: make([]TransactionResponse, 0, len(txs))}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, transactionToResponse(tx))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// LinkTelegram handles PUT /users/telegram.
func (h *UserHandler) LinkTelegram(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req LinkTelegramRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.users.LinkTelegram(r.Context(), userID, req.ChatID); err != nil {
		HandleAPIError(w, r, err, "Failed to link Telegram chat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
