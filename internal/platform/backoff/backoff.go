// Package backoff builds the bounded exponential retry policy shared by
// every component that waits on an external dependency.
package backoff

import (
	"context"
	"log/slog"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/sethvargo/go-retry"
)

// New returns an exponential backoff with 10% jitter, capped per attempt at
// cfg.MaxDelay and giving up after cfg.MaxAttempts retries.
func New(cfg config.RetryConfig) retry.Backoff {
	b := retry.NewExponential(cfg.InitialDelay)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithCappedDuration(cfg.MaxDelay, b)
	return retry.WithMaxRetries(cfg.MaxAttempts, b)
}

// Do runs fn until it succeeds, the policy is exhausted or ctx ends. Every
// error returned by fn is treated as retryable; the last one is returned.
func Do(ctx context.Context, cfg config.RetryConfig, log *slog.Logger, what string, fn func(ctx context.Context) error) error {
	return Retry(ctx, cfg, log, what, fn, func(error) bool { return false })
}

// Retry is Do for calls that can fail permanently: errors for which
// permanent returns true are returned at once without another attempt.
func Retry(
	ctx context.Context,
	cfg config.RetryConfig,
	log *slog.Logger,
	what string,
	fn func(ctx context.Context) error,
	permanent func(error) bool,
) error {
	attempt := 0
	return retry.Do(ctx, New(cfg), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || permanent(err) {
			return err
		}
		log.Warn("dependency not ready, retrying",
			slog.String("dependency", what),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		return retry.RetryableError(err)
	})
}
