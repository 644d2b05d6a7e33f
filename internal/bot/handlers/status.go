package handlers

import (
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/domain"
	"github.com/Proton-105/slotwatch/internal/i18n"
	"github.com/Proton-105/slotwatch/internal/subscription"
)

// NewStatusHandler reports the stored subscription of the sender.
func NewStatusHandler(service *subscription.Service, catalog *i18n.Manager, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		t := translator(catalog, c)

		sub, err := service.Get(RequestContext(c), SubscriberID(sender))
		switch {
		case errors.Is(err, subscription.ErrNotFound):
			return c.Send(t.T("status.none"))
		case err != nil:
			log.Error("status lookup failed", slog.Int64("telegram_id", sender.ID), slog.Any("error", err))
			return err
		}

		return c.Send(t.Tf("status.current", sub.LocationID, sub.CurrentAppointmentDate.Format(domain.DateLayout)))
	}
}
