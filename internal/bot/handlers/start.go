package handlers

import (
	"errors"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/bot/keyboard"
	"github.com/Proton-105/slotwatch/internal/i18n"
	"github.com/Proton-105/slotwatch/internal/state"
)

// NewStartHandler greets the user by first name and shows the main menu.
func NewStartHandler(fsm state.StateMachine, catalog *i18n.Manager, kb *keyboard.Builder, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			log.Warn("start handler invoked without sender")
			return nil
		}

		t := translator(catalog, c)
		ctx := RequestContext(c)

		if _, err := fsm.GetState(ctx, sender.ID); errors.Is(err, state.ErrStateNotFound) {
			if setErr := fsm.SetState(ctx, sender.ID, state.StateIdle, nil); setErr != nil {
				log.Error("failed to set initial user state", slog.Int64("telegram_id", sender.ID), slog.Any("error", setErr))
			}
		} else if err != nil {
			log.Warn("failed to fetch user state", slog.Int64("telegram_id", sender.ID), slog.Any("error", err))
		}

		name := strings.TrimSpace(sender.FirstName)
		if name == "" {
			name = sender.Username
		}

		text := t.Tf("start.greeting", name) + "\n" + t.T("start.hint")
		return c.Send(text, kb.MainMenu(t))
	}
}
