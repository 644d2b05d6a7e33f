// Package notifier delivers poll results to users over Telegram.
package notifier

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	errors "github.com/Proton-105/slotwatch/internal/errors"
	"github.com/Proton-105/slotwatch/pkg/metrics"
)

// Sender is the subset of *telebot.Bot used for delivery.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Recipient addresses a chat by its stored identifier.
type Recipient string

// Recipient implements telebot.Recipient.
func (r Recipient) Recipient() string {
	return string(r)
}

// Telegram sends plain-text messages through the bot API.
type Telegram struct {
	sender Sender
	log    *slog.Logger
}

// NewTelegram builds a Telegram notifier.
func NewTelegram(sender Sender, log *slog.Logger) *Telegram {
	if log == nil {
		log = slog.Default()
	}

	return &Telegram{
		sender: sender,
		log:    log.With(slog.String("component", "notifier")),
	}
}

// Send delivers message to userID. Rejections come back as DeliveryError.
func (t *Telegram) Send(ctx context.Context, userID, message string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewDeliveryError(userID, err)
	}

	opts := &telebot.SendOptions{DisableWebPagePreview: true}
	if _, err := t.sender.Send(Recipient(userID), message, opts); err != nil {
		metrics.RecordNotification("failed")
		t.log.Warn("telegram delivery failed", slog.String("user_id", userID), slog.Any("error", err))
		return errors.NewDeliveryError(userID, err)
	}

	metrics.RecordNotification("sent")
	t.log.Debug("notification sent", slog.String("user_id", userID))
	return nil
}
