// Package broker opens the queue driver selected by configuration.
package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/rabbitmq"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/riverqueue"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
)

// Supported values of queue.driver.
const (
	DriverRabbitMQ = "rabbitmq"
	DriverRiver    = "river"
)

// Open connects to the broker named by cfg.Queue.Driver, waiting for it
// with the configured retry policy.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (queue.Broker, error) {
	switch cfg.Queue.Driver {
	case DriverRabbitMQ:
		b, err := rabbitmq.Dial(ctx, cfg.Queue, cfg.Retry, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	case DriverRiver:
		b, err := riverqueue.Open(ctx, cfg.Database.URL, cfg.Retry, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}
