// Package dispatch turns a paid prediction request into a queued task.
//
// Submit persists the task, charges the owner and publishes the task
// envelope. The charge and the task row are written in one datastore
// transaction, so a task exists exactly when it has been paid for. When the
// broker refuses the envelope, Rollback marks the task failed and refunds
// the charge, again in one transaction; the refund is keyed by the task id
// and can be recorded only once.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/logger"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	"github.com/DimeNiceTry/EmotionClassifier/internal/service"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Error messages stored on tasks that were failed and refunded before a
// worker finished them.
const (
	RollbackReason = "task could not be queued"
	ExpiredReason  = "task expired before processing"
)

// SubmitRequest describes one prediction request.
type SubmitRequest struct {
	// TaskID is an optional caller-chosen id. uuid.Nil means one is derived
	// from IdempotencyKey, or generated when there is no key.
	TaskID uuid.UUID
	// IdempotencyKey is an optional client key. Repeating it for the same
	// owner maps to the same task and is rejected as a duplicate; other
	// owners' keys never collide with it.
	IdempotencyKey string
	OwnerID        int64
	Input          json.RawMessage
	Cost           decimal.Decimal
}

// idempotencyNamespace seeds task ids derived from idempotency keys.
var idempotencyNamespace = uuid.MustParse("8f4b7c2e-5d1a-4e6b-9c3f-2a7d0e9b1c54")

// TaskIDForKey returns the task id an owner's idempotency key maps to.
func TaskIDForKey(ownerID int64, key string) uuid.UUID {
	return uuid.NewSHA1(idempotencyNamespace, []byte(strconv.FormatInt(ownerID, 10)+":"+key))
}

// Config holds the dispatcher settings.
type Config struct {
	TaskQueue      string
	PublishTimeout time.Duration
	// ValidateInput rejects request payloads before anything is charged.
	// Optional.
	ValidateInput func(input json.RawMessage) error
}

// Service submits tasks. It is safe for concurrent use.
type Service struct {
	tx        store.Transactor
	ledger    store.LedgerStore
	tasks     store.TaskStore
	publisher queue.Publisher
	cfg       Config
	logger    *slog.Logger
}

// New creates a dispatcher.
func New(
	tx store.Transactor,
	ledger store.LedgerStore,
	tasks store.TaskStore,
	publisher queue.Publisher,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if tx == nil || ledger == nil || tasks == nil || publisher == nil {
		panic("dispatch: transactor, stores and publisher are required")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tx:        tx,
		ledger:    ledger,
		tasks:     tasks,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "dispatcher")),
	}
}

// Submit validates, persists, charges and enqueues a task, returning it in
// the pending state.
//
// Errors: domain.ErrValidation for a bad payload, domain.ErrInsufficientFunds
// when the owner cannot pay (nothing is written), store.ErrDuplicate when
// the task id is already taken (nothing is charged), domain.ErrServiceUnavailable
// when the broker refused the task (the charge has been refunded).
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	taskID := req.TaskID
	if taskID == uuid.Nil && req.IdempotencyKey != "" {
		taskID = TaskIDForKey(req.OwnerID, req.IdempotencyKey)
	}
	task, err := domain.NewTask(taskID, req.OwnerID, req.Input, req.Cost)
	if err != nil {
		return nil, err
	}
	if s.cfg.ValidateInput != nil {
		if err := s.cfg.ValidateInput(req.Input); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
	}
	log = log.With(slog.String("task_id", task.ID.String()), slog.Int64("owner_id", task.OwnerID))

	acc, err := s.ledger.GetAccount(ctx, task.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if acc.Balance.LessThan(task.Cost) {
		log.Debug("submission rejected: insufficient funds",
			slog.String("balance", acc.Balance.String()),
			slog.String("cost", task.Cost.String()))
		return nil, domain.ErrInsufficientFunds
	}

	err = s.tx.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		if err := st.Tasks.Create(ctx, task); err != nil {
			return err
		}
		if !task.Cost.IsPositive() {
			return nil
		}
		_, err := st.Ledger.Debit(ctx, task.OwnerID, task.Cost, &task.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			log.Info("duplicate task id rejected")
		} else if !errors.Is(err, domain.ErrInsufficientFunds) {
			log.Error("failed to persist task", slog.String("error", err.Error()))
		}
		return nil, fmt.Errorf("failed to submit task: %w", err)
	}

	if err := s.publish(ctx, task); err != nil {
		log.Error("failed to publish task, rolling back",
			slog.String("error", err.Error()),
			slog.String("queue", s.cfg.TaskQueue))
		// The refund must happen even if the caller has gone away.
		if rbErr := s.Rollback(context.WithoutCancel(ctx), task.ID); rbErr != nil {
			log.Error("rollback failed, the expiry sweep will refund the task",
				slog.String("error", rbErr.Error()))
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	log.Info("task submitted", slog.String("cost", task.Cost.String()))
	return task, nil
}

func (s *Service) publish(ctx context.Context, task *domain.Task) error {
	body, err := queue.NewTaskEnvelope(task).Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()
	return s.publisher.Publish(ctx, s.cfg.TaskQueue, body)
}

// Rollback fails a pending task and refunds its charge in one transaction.
// It is idempotent: a task that is no longer pending is left alone and a
// refund already on record is not repeated.
func (s *Service) Rollback(ctx context.Context, taskID uuid.UUID) error {
	_, err := s.refund(ctx, taskID, RollbackReason)
	return err
}

// refund fails the task with reason and credits its cost back. It reports
// whether a refund was written by this call.
func (s *Service) refund(ctx context.Context, taskID uuid.UUID, reason string) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("task_id", taskID.String()))

	refunded := false
	err := s.tx.InTx(ctx, func(ctx context.Context, st store.Stores) error {
		task, err := st.Tasks.Fail(ctx, taskID, reason)
		if err != nil {
			var stateErr *store.StateError
			if errors.As(err, &stateErr) {
				log.Warn("rollback skipped: task no longer pending",
					slog.String("status", stateErr.Current))
				return nil
			}
			return err
		}
		if !task.Cost.IsPositive() {
			return nil
		}
		_, err = st.Ledger.Credit(ctx, task.OwnerID, task.Cost, domain.TransactionRefund, &task.ID)
		if errors.Is(err, store.ErrDuplicate) {
			log.Info("refund already recorded")
			return nil
		}
		if err != nil {
			return err
		}
		refunded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to roll back task %s: %w", taskID, err)
	}
	if refunded {
		log.Info("task rolled back and refunded", slog.String("reason", reason))
	}
	return refunded, nil
}

// Get returns the caller's task. Tasks of other owners are reported as not found.
func (s *Service) Get(ctx context.Context, taskID uuid.UUID, ownerID int64) (*domain.Task, error) {
	return s.tasks.Get(ctx, taskID, ownerID)
}

// History returns the owner's tasks, newest first.
func (s *Service) History(ctx context.Context, ownerID int64, limit, offset int) ([]*domain.Task, error) {
	limit, offset = service.NormalizePage(limit, offset)
	return s.tasks.ListByOwner(ctx, ownerID, limit, offset)
}
