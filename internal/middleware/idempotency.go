package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/bot/handlers"
	"github.com/Proton-105/slotwatch/internal/idempotency"
)

// UpdateTTL is how long a processed Telegram update is remembered.
const UpdateTTL = 24 * time.Hour

// Idempotency ensures handlers execute at most once per Telegram update, so
// a redelivered message cannot advance the dialog twice.
func Idempotency(manager idempotency.Manager, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := extractIdempotencyKey(c)
			if key == "" {
				return next(c)
			}

			result, err := manager.Execute(requestContext(c), key, UpdateTTL, func(context.Context) (interface{}, error) {
				return nil, next(c)
			})
			switch {
			case errors.Is(err, idempotency.ErrRequestInProgress):
				return nil
			case err != nil:
				return err
			}

			if result != nil && result.FromCache {
				log.Debug("duplicate update skipped", slog.String("key", key))
			}
			return nil
		}
	}
}

func extractIdempotencyKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if cb := c.Callback(); cb != nil && cb.ID != "" {
		return "update:cb:" + cb.ID
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		return fmt.Sprintf("update:msg:%d:%d", chatID, msg.ID)
	}

	return ""
}

func requestContext(c telebot.Context) context.Context {
	return handlers.RequestContext(c)
}
