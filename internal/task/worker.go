package task

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
	"github.com/google/uuid"
)

// WorkerConfig holds the per-delivery settings of a Worker.
type WorkerConfig struct {
	// ID is recorded on completed tasks and result envelopes.
	ID string
	// TaskTimeout bounds a single prediction.
	TaskTimeout time.Duration
	// ResultQueue receives a result envelope per finished task when
	// PublishResults is set.
	ResultQueue    string
	PublishResults bool
}

// Worker processes single deliveries from the task queue. The Ledger is
// never touched: a failed prediction is recorded as FAILED, not refunded.
type Worker struct {
	tasks     store.TaskStore
	registry  *Registry
	publisher queue.Publisher
	cfg       WorkerConfig
	logger    *slog.Logger
}

// NewWorker creates a Worker. publisher may be nil when results are not published.
func NewWorker(tasks store.TaskStore, registry *Registry, publisher queue.Publisher, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.ID == "" {
		cfg.ID = DefaultWorkerID()
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if publisher == nil {
		cfg.PublishResults = false
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		tasks:     tasks,
		registry:  registry,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "worker"), slog.String("worker_id", cfg.ID)),
	}
}

// ID returns the worker identity.
func (w *Worker) ID() string { return w.cfg.ID }

// Handle processes one delivery. Tasks that are already terminal are acked
// without running the predictor. It acks the message once the outcome is
// durable or the message can never be processed, and nacks it with requeue
// when the task store could not be read or written.
func (w *Worker) Handle(ctx context.Context, msg *queue.Message) {
	log := w.logger.With(slog.Bool("redelivered", msg.Redelivered))

	env, err := queue.DecodeTaskEnvelope(msg.Body)
	if err != nil {
		log.Error("dropping invalid task envelope", slog.String("error", err.Error()))
		w.ack(log, msg)
		return
	}
	taskID := env.TaskUUID()
	log = log.With(slog.String("task_id", env.TaskID), slog.String("kind", env.EffectiveKind()))

	current, err := w.tasks.GetByID(ctx, taskID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Error("task not found, dropping message")
		w.ack(log, msg)
		return
	case err != nil:
		log.Error("failed to load task, requeueing", slog.String("error", err.Error()))
		w.nack(log, msg)
		return
	case current.Status.IsTerminal():
		// Redelivery of a finished or expired task.
		log.Info("task already finished, skipping", slog.String("status", string(current.Status)))
		w.ack(log, msg)
		return
	}

	result, predictErr := w.predict(ctx, env)
	if ctx.Err() != nil {
		// Shutting down: leave the task pending for the next delivery.
		log.Info("worker stopping, requeueing task")
		w.nack(log, msg)
		return
	}

	var task *domain.Task
	if predictErr != nil {
		log.Warn("prediction failed", slog.String("error", predictErr.Error()))
		task, err = w.tasks.Fail(ctx, taskID, predictErr.Error())
	} else {
		task, err = w.tasks.Complete(ctx, taskID, result, w.cfg.ID)
	}

	switch {
	case err == nil:
		log.Info("task finished", slog.String("status", string(task.Status)))
		w.publishResult(ctx, log, task)
		w.ack(log, msg)
	case errors.Is(err, store.ErrInvalidState):
		// Another delivery of the same task already wrote the outcome.
		log.Warn("task already finished, skipping", slog.String("error", err.Error()))
		w.ack(log, msg)
	case errors.Is(err, store.ErrNotFound):
		log.Error("task not found, dropping message")
		w.ack(log, msg)
	default:
		log.Error("failed to record task outcome, requeueing", slog.String("error", err.Error()))
		w.nack(log, msg)
	}
}

// predict runs the predictor for env under the task timeout. Panics are
// converted into errors.
func (w *Worker) predict(ctx context.Context, env queue.TaskEnvelope) (result json.RawMessage, err error) {
	p, err := w.registry.Lookup(env.EffectiveKind())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("predictor panicked",
				slog.String("task_id", env.TaskID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			result, err = nil, fmt.Errorf("predictor panic: %v", r)
		}
	}()

	result, err = p.Predict(ctx, env.Data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("prediction timed out after %s", w.cfg.TaskTimeout)
		}
		return nil, err
	}
	if !json.Valid(result) {
		return nil, fmt.Errorf("predictor returned invalid JSON")
	}
	if env.EffectiveKind() == domain.KindPrediction {
		if vErr := ValidateOutput(result); vErr != nil {
			w.logger.Warn("prediction does not match output schema",
				slog.String("task_id", env.TaskID),
				slog.String("error", vErr.Error()))
		}
	}
	return result, nil
}

func (w *Worker) publishResult(ctx context.Context, log *slog.Logger, task *domain.Task) {
	if !w.cfg.PublishResults {
		return
	}
	body, err := queue.ResultEnvelope{
		TaskID:    task.ID.String(),
		Status:    string(task.Status),
		Result:    task.Result,
		Error:     task.ErrorMessage,
		WorkerID:  w.cfg.ID,
		Timestamp: time.Now().UTC(),
	}.Encode()
	if err == nil {
		err = w.publisher.Publish(ctx, w.cfg.ResultQueue, body)
	}
	if err != nil {
		// The task row is authoritative; a lost notification is not retried.
		log.Warn("failed to publish result", slog.String("error", err.Error()))
	}
}

func (w *Worker) ack(log *slog.Logger, msg *queue.Message) {
	if err := msg.Ack(); err != nil {
		log.Error("failed to ack message", slog.String("error", err.Error()))
	}
}

func (w *Worker) nack(log *slog.Logger, msg *queue.Message) {
	if err := msg.Nack(true); err != nil {
		log.Error("failed to nack message", slog.String("error", err.Error()))
	}
}

// DefaultWorkerID returns "worker-<hostname>-<random>".
func DefaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "worker-" + host + "-" + uuid.NewString()[:8]
	}
	return "worker-" + host + "-" + hex.EncodeToString(b[:])
}
