// Package notify pushes finished task results to the owner's linked chat.
//
// The Service consumes result envelopes published by workers. Delivery is
// best effort: a result whose owner has no linked chat, or that could not be
// sent after the retry budget, is acknowledged and logged. Only a failed
// datastore lookup leaves the message for redelivery.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/domain"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/backoff"
	"github.com/DimeNiceTry/EmotionClassifier/internal/queue"
	"github.com/DimeNiceTry/EmotionClassifier/internal/store"
)

// Sender delivers a text message to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Service turns result envelopes into chat messages.
type Service struct {
	tasks  store.TaskStore
	users  store.UserStore
	sender Sender
	retry  config.RetryConfig
	logger *slog.Logger
}

// NewService creates a notifier.
func NewService(tasks store.TaskStore, users store.UserStore, sender Sender, retry config.RetryConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:  tasks,
		users:  users,
		sender: sender,
		retry:  retry,
		logger: logger.With(slog.String("component", "notifier")),
	}
}

// Run consumes resultQueue until ctx is cancelled.
func (s *Service) Run(ctx context.Context, consumer queue.Consumer, resultQueue string) error {
	s.logger.Info("notifier started", slog.String("queue", resultQueue))
	err := consumer.Consume(ctx, resultQueue, s.Handle)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Handle processes one result delivery.
func (s *Service) Handle(ctx context.Context, msg *queue.Message) {
	log := s.logger

	env, err := queue.DecodeResultEnvelope(msg.Body)
	if err != nil {
		log.Error("dropping invalid result envelope", slog.String("error", err.Error()))
		s.ack(log, msg)
		return
	}
	log = log.With(slog.String("task_id", env.TaskID))

	chatID, task, err := s.recipient(ctx, env)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Warn("result for unknown task or user, dropping", slog.String("error", err.Error()))
		s.ack(log, msg)
		return
	case err != nil:
		log.Error("failed to look up result recipient, requeueing", slog.String("error", err.Error()))
		if nackErr := msg.Nack(true); nackErr != nil {
			log.Error("failed to nack message", slog.String("error", nackErr.Error()))
		}
		return
	case chatID == 0:
		log.Debug("owner has no linked chat, skipping", slog.Int64("owner_id", task.OwnerID))
		s.ack(log, msg)
		return
	}

	text := FormatResult(task)
	err = backoff.Retry(ctx, s.retry, log, "telegram", func(ctx context.Context) error {
		return s.sender.Send(ctx, chatID, text)
	}, func(err error) bool {
		return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	})
	if err != nil {
		log.Error("failed to deliver result", slog.String("error", err.Error()), slog.Int64("chat_id", chatID))
	} else {
		log.Info("result delivered", slog.Int64("chat_id", chatID))
	}
	s.ack(log, msg)
}

func (s *Service) recipient(ctx context.Context, env queue.ResultEnvelope) (int64, *domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, env.TaskUUID())
	if err != nil {
		return 0, nil, err
	}
	user, err := s.users.GetByID(ctx, task.OwnerID)
	if err != nil {
		return 0, nil, err
	}
	if user.TelegramChatID == nil {
		return 0, task, nil
	}
	return *user.TelegramChatID, task, nil
}

func (s *Service) ack(log *slog.Logger, msg *queue.Message) {
	if err := msg.Ack(); err != nil {
		log.Error("failed to ack message", slog.String("error", err.Error()))
	}
}

// markdownEscaper escapes free text for Telegram's legacy Markdown mode.
var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// FormatResult renders the chat message for a finished task.
func FormatResult(task *domain.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Prediction %s*\n", task.ID)

	if task.Status == domain.TaskStatusFailed {
		fmt.Fprintf(&b, "Status: failed\nReason: %s", markdownEscaper.Replace(task.ErrorMessage))
		return b.String()
	}

	var res struct {
		Prediction string   `json:"prediction"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(task.Result, &res); err != nil || res.Prediction == "" {
		fmt.Fprintf(&b, "Status: %s\nResult: %s", task.Status, markdownEscaper.Replace(string(task.Result)))
		return b.String()
	}
	fmt.Fprintf(&b, "Status: %s\nResult: %s", task.Status, res.Prediction)
	if res.Confidence != nil {
		fmt.Fprintf(&b, "\nConfidence: %.1f%%", *res.Confidence*100)
	}
	return b.String()
}
