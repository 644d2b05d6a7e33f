package handlers

import (
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/bot/keyboard"
	"github.com/Proton-105/slotwatch/internal/i18n"
	"github.com/Proton-105/slotwatch/internal/state"
)

// NewCancelHandler abandons any dialog in progress and returns to the main menu.
// It serves both the /cancel command and the inline cancel button.
func NewCancelHandler(fsm state.StateMachine, catalog *i18n.Manager, kb *keyboard.Builder, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			log.Warn("cancel handler invoked without sender context")
			return nil
		}

		if err := fsm.ClearState(RequestContext(c), sender.ID); err != nil && !errors.Is(err, state.ErrStateNotFound) {
			log.Error("failed to clear user state", slog.Int64("user_id", sender.ID), slog.Any("error", err))
			return err
		}

		if c.Callback() != nil {
			_ = c.Respond()
		}

		t := translator(catalog, c)
		return c.Send(t.T("cancel.done"), kb.MainMenu(t))
	}
}
