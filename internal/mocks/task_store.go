package mocks

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
)

// MemoryTaskStore implements store.TaskStore in memory. Complete and Fail
// honour the pending-only transition rule.
type MemoryTaskStore struct {
	db *MemoryDB

	CreateFn   func(ctx context.Context, task *domain.Task) error
	CompleteFn func(ctx context.Context, id uuid.UUID, result json.RawMessage, workerID string) (*domain.Task, error)
	FailFn     func(ctx context.Context, id uuid.UUID, reason string) (*domain.Task, error)
	GetByIDFn  func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}

var _ store.TaskStore = (*MemoryTaskStore)(nil)

// Create implements store.TaskStore.
func (m *MemoryTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, task)
	}
	if err := task.Validate(); err != nil {
		return err
	}
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.state.tasks[task.ID]; ok {
		return store.ErrTaskExists
	}
	c := *task
	m.db.state.tasks[task.ID] = &c
	m.db.state.taskOrder = append(m.db.state.taskOrder, task.ID)
	return nil
}

// Complete implements store.TaskStore.
func (m *MemoryTaskStore) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage, workerID string) (*domain.Task, error) {
	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, id, result, workerID)
	}
	return m.finish(id, func(t *domain.Task) {
		t.Status = domain.TaskStatusCompleted
		t.Result = append(json.RawMessage(nil), result...)
		t.ProcessedBy = workerID
	})
}

// Fail implements store.TaskStore.
func (m *MemoryTaskStore) Fail(ctx context.Context, id uuid.UUID, reason string) (*domain.Task, error) {
	if m.FailFn != nil {
		return m.FailFn(ctx, id, reason)
	}
	return m.finish(id, func(t *domain.Task) {
		t.Status = domain.TaskStatusFailed
		t.ErrorMessage = reason
	})
}

func (m *MemoryTaskStore) finish(id uuid.UUID, apply func(t *domain.Task)) (*domain.Task, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.state.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if t.Status != domain.TaskStatusPending {
		c := *t
		return &c, &store.StateError{Entity: "task", ID: id.String(), Current: string(t.Status)}
	}
	apply(t)
	now := time.Now().UTC()
	t.CompletedAt = &now
	c := *t
	return &c, nil
}

// Get implements store.TaskStore.
func (m *MemoryTaskStore) Get(ctx context.Context, id uuid.UUID, ownerID int64) (*domain.Task, error) {
	t, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	return t, nil
}

// GetByID implements store.TaskStore.
func (m *MemoryTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	t, ok := m.db.state.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	c := *t
	return &c, nil
}

// ListByOwner implements store.TaskStore.
func (m *MemoryTaskStore) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]*domain.Task, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*domain.Task
	for i := len(m.db.state.taskOrder) - 1; i >= 0; i-- {
		t := m.db.state.tasks[m.db.state.taskOrder[i]]
		if t.OwnerID == ownerID {
			c := *t
			out = append(out, &c)
		}
	}
	return page(out, limit, offset), nil
}

// ListPendingBefore implements store.TaskStore.
func (m *MemoryTaskStore) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*domain.Task
	for _, id := range m.db.state.taskOrder {
		t := m.db.state.tasks[id]
		if t.Status == domain.TaskStatusPending && t.CreatedAt.Before(cutoff) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

// Count returns the number of stored tasks.
func (m *MemoryTaskStore) Count() int {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return len(m.db.state.tasks)
}

// WithTx implements store.TaskStore.
func (m *MemoryTaskStore) WithTx(*sql.Tx) store.TaskStore { return m }
