// Command notifier consumes prediction results and pushes them to the
// owner's linked Telegram chat.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DimeNiceTry/EmotionClassifier/internal/config"
	"github.com/DimeNiceTry/EmotionClassifier/internal/notify"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/broker"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/logger"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/postgres"
	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/telegram"
)

func main() {
	if err := run(); err != nil {
		slog.Error("notifier failed", slog.String("error", err.Error()))
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
	if cfg.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required to run the notifier")
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

	sender, err := telegram.NewSender(cfg.Telegram.BotToken, log)
	if err != nil {
		return fmt.Errorf("failed to create telegram sender: %w", err)
	}

	stores := postgres.NewTransactor(db, log).Stores()
	svc := notify.NewService(stores.Tasks, stores.Users, sender, cfg.Retry, log)

	log.Info("notifier starting", slog.String("queue", cfg.Queue.ResultQueue))
	if err := svc.Run(ctx, b, cfg.Queue.ResultQueue); err != nil {
		return err
	}
	log.Info("notifier stopped")
	return nil
}
