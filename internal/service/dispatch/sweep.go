package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// SweepConfig controls the expiry sweep.
type SweepConfig struct {
	// Interval between sweeps. Defaults to one minute.
	Interval time.Duration
	// ExpireAfter is how long a task may stay pending before it is failed
	// and refunded. Defaults to 15 minutes.
	ExpireAfter time.Duration
	// BatchSize caps the tasks handled per sweep. Defaults to 100.
	BatchSize int
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	// Found is the number of stale pending tasks listed.
	Found int
	// Refunded counts refunds written by this sweep.
	Refunded int
	// Errors counts tasks that could not be expired and stay pending.
	Errors int
}

// Sweeper fails and refunds tasks that stayed pending past ExpireAfter.
// It covers the charge left behind when a publish and its rollback both
// fail, and tasks whose envelope was lost by the broker. A worker that
// later receives an expired task finds it terminal and drops it.
type Sweeper struct {
	svc    *Service
	cfg    SweepConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewSweeper creates a Sweeper over the dispatcher's stores.
func NewSweeper(svc *Service, cfg SweepConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		svc:    svc,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "expiry_sweep")),
	}
}

// Run sweeps once at start and then every Interval until ctx is cancelled.
// It always returns nil; a failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("starting expiry sweep",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("expire_after", s.cfg.ExpireAfter))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweep stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep expires one batch of stale pending tasks.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	cutoff := s.now().Add(-s.cfg.ExpireAfter)
	stale, err := s.svc.tasks.ListPendingBefore(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("failed to list stale tasks", slog.String("error", err.Error()))
		}
		return res
	}

	res.Found = len(stale)
	for _, task := range stale {
		if ctx.Err() != nil {
			break
		}
		refunded, err := s.svc.refund(ctx, task.ID, ExpiredReason)
		if err != nil {
			res.Errors++
			s.logger.Error("failed to expire task",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if refunded {
			res.Refunded++
		}
	}

	if res.Found > 0 {
		s.logger.Info("expired stale tasks",
			slog.Int("found", res.Found),
			slog.Int("refunded", res.Refunded),
			slog.Int("errors", res.Errors))
	}
	return res
}
