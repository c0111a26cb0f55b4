package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// Telegram pushes short HTML messages to a user's chat. Sends are
// fire-and-forget: they run in their own goroutine with a timeout and a
// failure is only ever logged.
type Telegram struct {
	bot *bot.Bot
	log *slog.Logger
}

// NewTelegram builds the relay. An empty token disables pushes entirely;
// every Send becomes a no-op so callers never need to nil-check.
func NewTelegram(token string, log *slog.Logger) *Telegram {
	if log == nil {
		log = slog.Default()
	}
	if token == "" {
		log.Info("telegram token not set, chat notifications disabled")
		return &Telegram{log: log}
	}
	b, err := bot.New(token)
	if err != nil {
		log.Error("telegram bot init failed, chat notifications disabled", "error", err)
		return &Telegram{log: log}
	}
	return &Telegram{bot: b, log: log}
}

// Enabled reports whether the relay has a working bot.
func (t *Telegram) Enabled() bool { return t.bot != nil }

// Send delivers an HTML-formatted message to chatID without blocking the caller.
func (t *Telegram) Send(chatID int64, html string) {
	if t.bot == nil || chatID == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      html,
			ParseMode: tgmodels.ParseModeHTML,
		})
		if err != nil {
			t.log.Error("telegram send failed", "chat_id", chatID, "error", err)
		}
	}()
}
