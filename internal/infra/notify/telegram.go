// File: internal/infra/notify/telegram.go
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"directory-billing/internal/config"
	"directory-billing/internal/domain/ports/adapter"
	"directory-billing/internal/infra/logging"
)

// Compile-time check
var (
	_ adapter.Notifier = (*TelegramNotifier)(nil)
	_ adapter.Notifier = (*NoopNotifier)(nil)
)

// TelegramNotifier posts operator notifications to one chat.
type TelegramNotifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	minimum adapter.Severity
	log     *zerolog.Logger
}

// New returns a Telegram notifier when a token and chat are configured and a
// logging no-op otherwise.
func New(cfg config.NotifyConfig, logger *zerolog.Logger) (adapter.Notifier, error) {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		return NewNoopNotifier(logger), nil
	}
	return NewTelegramNotifier(cfg, tgbotapi.APIEndpoint, logger)
}

// NewTelegramNotifier verifies the token against endpoint (a tgbotapi endpoint
// format string) before returning.
func NewTelegramNotifier(cfg config.NotifyConfig, endpoint string, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if cfg.TelegramToken == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.TelegramChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	minimum := adapter.SeverityInfo
	if strings.EqualFold(cfg.MinSeverity, string(adapter.SeverityCritical)) {
		minimum = adapter.SeverityCritical
	}
	return &TelegramNotifier{bot: bot, chatID: cfg.TelegramChatID, minimum: minimum, log: logger}, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, n adapter.Notification) error {
	if t.minimum == adapter.SeverityCritical && n.Severity != adapter.SeverityCritical {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, format(n))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		l := logging.With(ctx, t.log)
		l.Warn().Err(err).Str("title", n.Title).Msg("telegram notification failed")
		return err
	}
	return nil
}

func format(n adapter.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(n.Severity)), n.Title)
	if n.BusinessID != "" {
		fmt.Fprintf(&b, "\nbusiness: %s", n.BusinessID)
	}
	if n.Body != "" {
		b.WriteString("\n")
		b.WriteString(n.Body)
	}
	return b.String()
}

// NoopNotifier logs notifications instead of sending them.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) Notify(ctx context.Context, note adapter.Notification) error {
	if n.log == nil {
		return nil
	}
	l := logging.With(ctx, n.log)
	l.Debug().Str("severity", string(note.Severity)).Str("title", note.Title).Msg("notification (noop)")
	return nil
}
