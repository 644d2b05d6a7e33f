package handlers

import (
	"context"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/i18n"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes inline callback events.
type CallbackHandler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

const requestContextKey = "request_ctx"

// WithRequestContext attaches ctx to the update so handlers share its
// correlation id and deadline.
func WithRequestContext(c telebot.Context, ctx context.Context) {
	if c != nil {
		c.Set(requestContextKey, ctx)
	}
}

// RequestContext returns the context attached by WithRequestContext, or
// context.Background.
func RequestContext(c telebot.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(requestContextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// SubscriberID is the stored identifier of the update's sender.
func SubscriberID(sender *telebot.User) string {
	if sender == nil {
		return ""
	}
	return strconv.FormatInt(sender.ID, 10)
}

func translator(catalog *i18n.Manager, c telebot.Context) i18n.Translator {
	lang := ""
	if c != nil && c.Sender() != nil {
		lang = c.Sender().LanguageCode
	}
	return catalog.Translator(lang)
}
