package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/logger"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
)

// PostgresTaskStore implements store.TaskStore.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

const taskColumns = `id, owner_id, kind, input, status, result, error_message, cost, processed_by, created_at, completed_at`

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner_id, kind, input, status, cost, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		task.ID,
		task.OwnerID,
		task.Kind,
		string(task.Input),
		string(task.Status),
		task.Cost,
		task.CreatedAt,
	)
	if err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrDuplicate) {
			log.Warn("task id already exists", slog.String("task_id", task.ID.String()))
			return store.ErrTaskExists
		}
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return mapped
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.Int64("owner_id", task.OwnerID))
	return nil
}

// Complete implements store.TaskStore.Complete
func (s *PostgresTaskStore) Complete(
	ctx context.Context,
	id uuid.UUID,
	result json.RawMessage,
	workerID string,
) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = 'completed', result = $2, processed_by = $3, completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+taskColumns,
		id, string(result), nullString(workerID))
	return s.finish(ctx, id, row, "complete")
}

// Fail implements store.TaskStore.Fail
func (s *PostgresTaskStore) Fail(ctx context.Context, id uuid.UUID, reason string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+taskColumns,
		id, reason)
	return s.finish(ctx, id, row, "fail")
}

// finish interprets the result of a conditional terminal update. When no row
// matched it looks the task up to tell a missing task from a terminal one.
func (s *PostgresTaskStore) finish(ctx context.Context, id uuid.UUID, row *sql.Row, op string) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := scanTask(row)
	if err == nil {
		log.Debug("task transitioned",
			slog.String("task_id", id.String()),
			slog.String("status", string(task.Status)))
		return task, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()),
			slog.String("operation", op))
		return nil, store.NewStoreError("task", op, "failed to update task", MapError(err))
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, &store.StateError{Entity: "task", ID: id.String(), Current: string(current.Status)}
}

// Get implements store.TaskStore.Get
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID, ownerID int64) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return task, nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}
	return task, nil
}

// ListByOwner implements store.TaskStore.ListByOwner
func (s *PostgresTaskStore) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, MapError(err)
	}
	return scanTasks(rows)
}

// ListPendingBefore implements store.TaskStore.ListPendingBefore
func (s *PostgresTaskStore) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, MapError(err)
	}
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]*domain.Task, error) {
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task        domain.Task
		input       []byte
		result      []byte
		status      string
		errMsg      sql.NullString
		processedBy sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Kind,
		&input,
		&status,
		&result,
		&errMsg,
		&task.Cost,
		&processedBy,
		&task.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Input = json.RawMessage(input)
	if result != nil {
		task.Result = json.RawMessage(result)
	}
	task.Status = domain.TaskStatus(status)
	task.ErrorMessage = errMsg.String
	task.ProcessedBy = processedBy.String
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return &task, nil
}
