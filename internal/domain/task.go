package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskStatus is the lifecycle state of a prediction task.
// The only transitions are pending to completed and pending to failed.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// KindPrediction is the only task kind the service bills for.
const KindPrediction = "prediction"

// Task is a billed unit of asynchronous work.
type Task struct {
	ID           uuid.UUID       `json:"id"`
	OwnerID      int64           `json:"owner_id"`
	Kind         string          `json:"kind"`
	Input        json.RawMessage `json:"input"`
	Status       TaskStatus      `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Cost         decimal.Decimal `json:"cost"`
	ProcessedBy  string          `json:"processed_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// NewTask builds a pending task. A nil id gets a fresh random id.
func NewTask(id uuid.UUID, ownerID int64, input json.RawMessage, cost decimal.Decimal) (*Task, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	task := &Task{
		ID:        id,
		OwnerID:   ownerID,
		Kind:      KindPrediction,
		Input:     input,
		Status:    TaskStatusPending,
		Cost:      cost,
		CreatedAt: time.Now().UTC(),
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks the invariants of a freshly created task.
func (t *Task) Validate() error {
	if t.OwnerID <= 0 {
		return fmt.Errorf("%w: owner id must be positive", ErrValidation)
	}
	if len(t.Input) == 0 || !json.Valid(t.Input) {
		return fmt.Errorf("%w: input must be valid JSON", ErrValidation)
	}
	if t.Cost.IsNegative() {
		return fmt.Errorf("%w: cost cannot be negative", ErrValidation)
	}
	return nil
}
