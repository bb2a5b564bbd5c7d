// Command worker consumes prediction tasks from the queue, runs the
// configured predictor and records each outcome on the task.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/broker"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/gemini"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/logger"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/postgres"
	"github.com/DimeNiceTry/EmotionClassifier/internal/task"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database, cfg.Retry, log)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := broker.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to queue broker: %w", err)
	}
	defer b.Close()

	predictor, err := newPredictor(ctx, cfg, log)
	if err != nil {
		return err
	}
	registry := task.NewRegistry()
	registry.Register(domain.KindPrediction, predictor)

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = task.DefaultWorkerID()
	}

	tasks := postgres.NewTransactor(db, log).Stores().Tasks
	worker := task.NewWorker(tasks, registry, b, task.WorkerConfig{
		ID:             workerID,
		TaskTimeout:    cfg.Worker.TaskTimeout,
		ResultQueue:    cfg.Queue.ResultQueue,
		PublishResults: cfg.Queue.PublishResults,
	}, log)
	pool := task.NewWorkerPool(b, worker, task.WorkerPoolConfig{
		WorkerCount: cfg.Worker.Count,
		Queue:       cfg.Queue.TaskQueue,
		Restart:     cfg.Retry,
	}, log)

	log.Info("worker starting",
		slog.String("worker_id", workerID),
		slog.String("predictor", cfg.Worker.Predictor),
		slog.Any("kinds", registry.Kinds()),
		slog.Int("consumers", cfg.Worker.Count),
		slog.String("queue", cfg.Queue.TaskQueue))

	if err := pool.Run(ctx); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}

func newPredictor(ctx context.Context, cfg *config.Config, log *slog.Logger) (task.Predictor, error) {
	switch cfg.Worker.Predictor {
	case "gemini":
		p, err := gemini.NewPredictor(ctx, cfg.LLM, cfg.Retry, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini predictor: %w", err)
		}
		return p, nil
	default:
		return task.NewKeywordPredictor(cfg.Worker.MinLatency, cfg.Worker.MaxLatency), nil
	}
}
