package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/google/uuid"
)

// TaskStore persists prediction tasks. Terminal writes are conditional on the
// task still being pending, so replays of the same write are detectable.
type TaskStore interface {
	// Create inserts a pending task. Returns ErrTaskExists if the id is taken.
	Create(ctx context.Context, task *domain.Task) error

	// Complete moves a pending task to completed with the given result.
	// Returns ErrTaskNotFound if absent, or a *StateError wrapping
	// ErrInvalidState when the task is already terminal.
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage, workerID string) (*domain.Task, error)

	// Fail moves a pending task to failed. Errors as for Complete.
	Fail(ctx context.Context, id uuid.UUID, reason string) (*domain.Task, error)

	// Get returns the task if it belongs to ownerID; ErrTaskNotFound otherwise.
	Get(ctx context.Context, id uuid.UUID, ownerID int64) (*domain.Task, error)

	// GetByID returns the task regardless of owner.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListByOwner returns the owner's tasks, newest first.
	ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]*domain.Task, error)

	// ListPendingBefore returns up to limit pending tasks created before
	// cutoff, oldest first.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error)

	// WithTx returns a TaskStore that runs on the given transaction.
	WithTx(tx *sql.Tx) TaskStore
}
