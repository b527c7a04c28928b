package destination

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedrelay/internal/config"
)

// Notifier sends operator alerts (dead feeds, purge summaries) to the
// configured Telegram chat. Per-item delivery errors never go through it.
type Notifier struct {
	api    telegramAPI
	chatID int64
	log    *slog.Logger
}

// NewNotifier creates a Notifier, or nil when no operator chat is
// configured (alerts are then only logged).
func NewNotifier(cfg config.OperatorConfig, log *slog.Logger) (*Notifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create notifier api: %w", err)
	}
	return &Notifier{api: api, chatID: cfg.ChatID, log: log}, nil
}

// Notify sends a plain-text alert to the operator chat. A nil Notifier
// logs and drops the alert.
func (n *Notifier) Notify(text string) {
	if n == nil {
		slog.Warn("no operator destination configured, dropping alert", "text", text)
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error("send operator alert", "error", err)
	}
}
