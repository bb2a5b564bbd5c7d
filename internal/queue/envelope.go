package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// TaskEnvelope is the wire form of a queued task.
type TaskEnvelope struct {
	TaskID    string          `json:"prediction_id" validate:"required,uuid"`
	OwnerID   int64           `json:"user_id"       validate:"required,gt=0"`
	Kind      string          `json:"kind,omitempty"`
	Data      json.RawMessage `json:"data"          validate:"required"`
	Timestamp time.Time       `json:"timestamp"`
}

// ResultEnvelope is the wire form of a finished task, published for notifiers.
type ResultEnvelope struct {
	TaskID    string          `json:"prediction_id" validate:"required,uuid"`
	Status    string          `json:"status,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	WorkerID  string          `json:"worker_id"     validate:"required"`
	Timestamp time.Time       `json:"timestamp"`
}

// ValidationError reports an envelope that can never be processed. Consumers
// drop such messages instead of retrying them.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid envelope: %s: %v", e.Reason, e.Err)
	}
	return "invalid envelope: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return domain.ErrValidation }

// NewTaskEnvelope builds the envelope for a freshly created task.
func NewTaskEnvelope(task *domain.Task) TaskEnvelope {
	return TaskEnvelope{
		TaskID:    task.ID.String(),
		OwnerID:   task.OwnerID,
		Kind:      task.Kind,
		Data:      task.Input,
		Timestamp: time.Now().UTC(),
	}
}

// TaskUUID returns the parsed task id. Call only on a validated envelope.
func (e TaskEnvelope) TaskUUID() uuid.UUID {
	return uuid.MustParse(e.TaskID)
}

// EffectiveKind returns the task kind, defaulting to a prediction.
func (e TaskEnvelope) EffectiveKind() string {
	if e.Kind == "" {
		return domain.KindPrediction
	}
	return e.Kind
}

// Encode marshals the envelope to JSON.
func (e TaskEnvelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeTaskEnvelope parses and validates a task envelope. Any failure is a
// *ValidationError.
func DecodeTaskEnvelope(body []byte) (TaskEnvelope, error) {
	var env TaskEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return TaskEnvelope{}, &ValidationError{Reason: "malformed JSON", Err: err}
	}
	if err := validate.Struct(env); err != nil {
		return TaskEnvelope{}, &ValidationError{Reason: "missing or invalid fields", Err: err}
	}
	if !isJSONObject(env.Data) {
		return TaskEnvelope{}, &ValidationError{Reason: "data must be a JSON object"}
	}
	return env, nil
}

// Encode marshals the envelope to JSON.
func (e ResultEnvelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// TaskUUID returns the parsed task id. Call only on a validated envelope.
func (e ResultEnvelope) TaskUUID() uuid.UUID {
	return uuid.MustParse(e.TaskID)
}

// DecodeResultEnvelope parses and validates a result envelope.
func DecodeResultEnvelope(body []byte) (ResultEnvelope, error) {
	var env ResultEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ResultEnvelope{}, &ValidationError{Reason: "malformed JSON", Err: err}
	}
	if err := validate.Struct(env); err != nil {
		return ResultEnvelope{}, &ValidationError{Reason: "missing or invalid fields", Err: err}
	}
	return env, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
