package destination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedrelay/internal/config"
	"feedrelay/internal/model"
)

// rateLimitCooldown is how long an adapter sleeps after a "too many
// requests" response before retrying the same call once.
const rateLimitCooldown = 30 * time.Second

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram delivers messages to one Telegram chat.
type Telegram struct {
	api      telegramAPI
	cfg      config.TelegramDestination
	cooldown time.Duration
	log      *slog.Logger
}

// NewTelegram creates a Telegram adapter for the given destination config.
func NewTelegram(cfg config.TelegramDestination, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, cfg: cfg, cooldown: rateLimitCooldown, log: log}, nil
}

// newTelegramWithAPI wires a custom API implementation, used by tests.
func newTelegramWithAPI(api telegramAPI, cfg config.TelegramDestination, log *slog.Logger) *Telegram {
	return &Telegram{api: api, cfg: cfg, cooldown: rateLimitCooldown, log: log}
}

// Name returns the configured destination name.
func (t *Telegram) Name() string { return t.cfg.Name }

// Render renders the template with Telegram escaping for the configured
// parse mode.
func (t *Telegram) Render(tmpl string, args map[string]any) (string, error) {
	return renderText(tmpl, args, t.cfg.ParseMode)
}

// Override returns a copy of the adapter with subscription tweaks applied.
func (t *Telegram) Override(o model.DestinationOverride) Adapter {
	out := *t
	if o.DisableNotification != nil {
		out.cfg.DisableNotification = *o.DisableNotification
	}
	if o.DisableWebPagePreview != nil {
		out.cfg.DisableWebPagePreview = *o.DisableWebPagePreview
	}
	return &out
}

// Send posts text to the chat and returns the message id as the ref.
// A rate-limited send sleeps the cooldown and retries; any repeat limit
// triggers another cooldown.
func (t *Telegram) Send(ctx context.Context, text string) (string, error) {
	msg := tgbotapi.NewMessage(t.cfg.ChatID, text)
	msg.ParseMode = t.cfg.ParseMode
	msg.DisableNotification = t.cfg.DisableNotification
	msg.DisableWebPagePreview = t.cfg.DisableWebPagePreview

	sent, err := t.api.Send(msg)
	if err != nil {
		if isRateLimited(err) {
			t.log.Warn("telegram rate limited, cooling down", "destination", t.cfg.Name, "cooldown", t.cooldown)
			if serr := sleepCtx(ctx, t.cooldown); serr != nil {
				return "", serr
			}
			return t.Send(ctx, text)
		}
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	return strconv.Itoa(sent.MessageID), nil
}

// Edit replaces the text of a previously sent message.
func (t *Telegram) Edit(ctx context.Context, ref, text string) (EditOutcome, error) {
	messageID, err := strconv.Atoi(ref)
	if err != nil {
		return EditFailed, fmt.Errorf("bad message ref %q: %w", ref, err)
	}

	edit := tgbotapi.NewEditMessageText(t.cfg.ChatID, messageID, text)
	edit.ParseMode = t.cfg.ParseMode

	_, err = t.api.Send(edit)
	if err == nil {
		return EditOK, nil
	}

	switch {
	case strings.Contains(err.Error(), "message is not modified"):
		// The destination already shows this text.
		return EditOK, nil
	case strings.Contains(err.Error(), "message to edit not found"),
		strings.Contains(err.Error(), "MESSAGE_ID_INVALID"):
		return EditNotFound, nil
	case isRateLimited(err):
		t.log.Warn("telegram rate limited, cooling down", "destination", t.cfg.Name, "cooldown", t.cooldown)
		if serr := sleepCtx(ctx, t.cooldown); serr != nil {
			return EditFailed, serr
		}
		return t.Edit(ctx, ref, text)
	default:
		return EditFailed, fmt.Errorf("edit message %d: %w", messageID, err)
	}
}

func isRateLimited(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429
	}
	return strings.Contains(err.Error(), "Too Many Requests")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
