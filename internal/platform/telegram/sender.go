// Package telegram delivers text messages to Telegram chats through the Bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botAPI is the subset of *tgbotapi.BotAPI the sender calls.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender implements notify.Sender with a Telegram bot.
type Sender struct {
	bot    botAPI
	logger *slog.Logger
}

// NewSender authenticates the bot token against the Bot API.
func NewSender(token string, logger *slog.Logger) (*Sender, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("telegram bot authorized", slog.String("username", bot.Self.UserName))
	return newSender(bot, logger), nil
}

func newSender(bot botAPI, logger *slog.Logger) *Sender {
	return &Sender{bot: bot, logger: logger.With(slog.String("component", "telegram_sender"))}
}

// Send posts text to chatID. The Bot API client has no context support, so
// ctx is only checked before the call.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to chat %d: %w", chatID, err)
	}
	s.logger.Debug("message sent", slog.Int64("chat_id", chatID))
	return nil
}
