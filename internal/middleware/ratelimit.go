package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/i18n"
	"github.com/Proton-105/slotwatch/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user and per-command limits for incoming Telegram updates.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	catalog *i18n.Manager
	log     *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, catalog *i18n.Manager, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		catalog: catalog,
		log:     log,
	}
}

// Handle returns a telebot middleware. Limiter failures let the update
// through; only an exceeded limit stops it.
func (m *RateLimitMiddleware) Handle(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if m.limiter == nil || !m.rules.Enabled() {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil || m.rules.IsWhitelisted(sender.ID) {
			return next(c)
		}

		if limit, window, err := m.rules.GetPerUserLimit(); err == nil {
			if m.exceeded(c, fmt.Sprintf("user:%d", sender.ID), limit, window) {
				return m.reject(c)
			}
		}

		if command := commandOf(c.Text()); command != "" {
			if limit, window, err := m.rules.GetCommandLimit(command); err == nil {
				if m.exceeded(c, fmt.Sprintf("cmd:%s:%d", command, sender.ID), limit, window) {
					return m.reject(c)
				}
			}
		}

		return next(c)
	}
}

func (m *RateLimitMiddleware) exceeded(c telebot.Context, key string, limit int, window time.Duration) bool {
	result, err := m.limiter.Check(requestContext(c), key, limit, window)
	switch {
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		m.log.Warn("rate limit exceeded", slog.String("key", key))
		return true
	case err != nil:
		m.log.Warn("rate limiter error", slog.String("key", key), slog.Any("error", err))
		return false
	default:
		return result != nil && !result.Allowed
	}
}

func (m *RateLimitMiddleware) reject(c telebot.Context) error {
	lang := ""
	if c.Sender() != nil {
		lang = c.Sender().LanguageCode
	}

	msg := "Too many requests. Please slow down."
	if m.catalog != nil {
		msg = m.catalog.Translator(lang).T("errors.rate_limited")
	}

	if c.Callback() != nil {
		return c.Respond(&telebot.CallbackResponse{Text: msg})
	}
	return c.Send(msg)
}

func commandOf(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name, _, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.TrimPrefix(name, "/")
}
