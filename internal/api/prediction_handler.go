package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/DimeNiceTry/EmotionClassifier/internal/api/shared"
	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/logger"
	"github.com/DimeNiceTry/EmotionClassifier/internal/service/dispatch"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IdempotencyKeyHeader carries a client-chosen UUID. Retrying a request with
// the same key never charges twice; keys are scoped to the caller.
const IdempotencyKeyHeader = "Idempotency-Key"

// Dispatcher submits and reads prediction tasks.
type Dispatcher interface {
	Submit(ctx context.Context, req dispatch.SubmitRequest) (*domain.Task, error)
	Get(ctx context.Context, taskID uuid.UUID, ownerID int64) (*domain.Task, error)
	History(ctx context.Context, ownerID int64, limit, offset int) ([]*domain.Task, error)
}

// PredictionHandler handles prediction submission and lookup.
type PredictionHandler struct {
	dispatcher Dispatcher
	cost       decimal.Decimal
	logger     *slog.Logger
}

// NewPredictionHandler creates a handler charging cost per prediction.
func NewPredictionHandler(dispatcher Dispatcher, cost decimal.Decimal, logger *slog.Logger) *PredictionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionHandler{
		dispatcher: dispatcher,
		cost:       cost,
		logger:     logger.With(slog.String("component", "prediction_handler")),
	}
}

// Predict handles POST /predictions/predict. The task is processed
// asynchronously, so success is 202 Accepted.
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var idemKey string
	if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
		parsed, err := uuid.Parse(key)
		if err != nil {
			HandleAPIError(w, r, fmt.Errorf("%w: %s must be a UUID", domain.ErrInvalidID, IdempotencyKeyHeader), "")
			return
		}
		idemKey = parsed.String()
	}

	var req PredictRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.dispatcher.Submit(r.Context(), dispatch.SubmitRequest{
		IdempotencyKey: idemKey,
		OwnerID:        userID,
		Input:          req.Data,
		Cost:           h.cost,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit prediction")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Debug("prediction accepted",
		slog.String("task_id", task.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusAccepted, PredictResponse{
		PredictionID: task.ID.String(),
		Status:       string(task.Status),
		Timestamp:    task.CreatedAt,
		Cost:         task.Cost,
	})
}

// GetPrediction handles GET /predictions/{id}. Tasks of other users are
// reported as not found.
func (h *PredictionHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.dispatcher.Get(r.Context(), id, userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get prediction")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, predictionToResponse(task))
}

// History handles GET /predictions/history.
func (h *PredictionHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	limit, offset, err := getPage(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tasks, err := h.dispatcher.History(r.Context(), userID, limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list predictions")
		return
	}
	resp := HistoryResponse{Predictions: make([]PredictionResponse, 0, len(tasks))}
	for _, t := range tasks {
		resp.Predictions = append(resp.Predictions, predictionToResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
