package keyboard

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/i18n"
)

// CallbackCancel is the unique id of the inline cancel button.
const CallbackCancel = "cancel"

// Builder creates the bot's keyboards.
type Builder struct {
	log *slog.Logger
}

// NewBuilder returns a new Builder instance.
func NewBuilder(log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{log: log}
}

// MainMenu builds a reply keyboard with the bot commands.
func (b *Builder) MainMenu(t i18n.Translator) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{ResizeKeyboard: true}

	markup.Reply(
		markup.Row(markup.Text(lookup(t, "menu.subscribe")), markup.Text(lookup(t, "menu.status"))),
		markup.Row(markup.Text(lookup(t, "menu.cancel"))),
	)

	return markup
}

// CancelButton builds a single inline cancel button shown during the dialog.
func (b *Builder) CancelButton(t i18n.Translator) *telebot.ReplyMarkup {
	markup, err := NewInlineKeyboard().
		AddRow(InlineButton{Text: lookup(t, "buttons.cancel"), Unique: CallbackCancel}).
		Build()
	if err != nil {
		b.log.Error("failed to build cancel keyboard", slog.Any("error", err))
		return nil
	}
	return markup
}

func lookup(t i18n.Translator, key string) string {
	if t == nil {
		return key
	}
	return t.T(key)
}
