package handlers

import (
	"errors"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/bot/keyboard"
	"github.com/Proton-105/slotwatch/internal/dateparse"
	"github.com/Proton-105/slotwatch/internal/domain"
	apperrors "github.com/Proton-105/slotwatch/internal/errors"
	"github.com/Proton-105/slotwatch/internal/i18n"
	"github.com/Proton-105/slotwatch/internal/state"
	"github.com/Proton-105/slotwatch/internal/subscription"
)

// Subscribe drives the idle -> awaiting_location -> awaiting_date -> idle dialog.
type Subscribe struct {
	fsm     state.StateMachine
	service *subscription.Service
	catalog *i18n.Manager
	kb      *keyboard.Builder
	log     *slog.Logger
}

// NewSubscribe wires the dialog handlers.
func NewSubscribe(
	fsm state.StateMachine,
	service *subscription.Service,
	catalog *i18n.Manager,
	kb *keyboard.Builder,
	log *slog.Logger,
) *Subscribe {
	if log == nil {
		log = slog.Default()
	}

	return &Subscribe{
		fsm:     fsm,
		service: service,
		catalog: catalog,
		kb:      kb,
		log:     log,
	}
}

// Command starts (or restarts) the dialog.
func (s *Subscribe) Command(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if err := s.fsm.SetState(RequestContext(c), sender.ID, state.StateAwaitingLocation, nil); err != nil {
		return err
	}

	t := translator(s.catalog, c)
	return c.Send(t.T("subscribe.ask_location"), s.kb.CancelButton(t))
}

// Location handles text received in awaiting_location.
func (s *Subscribe) Location(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	t := translator(s.catalog, c)

	location, err := subscription.NormalizeLocation(c.Text())
	if err != nil {
		return c.Send(t.T("subscribe.invalid_location"), s.kb.CancelButton(t))
	}

	if err := s.fsm.Advance(RequestContext(c), sender.ID, state.StateAwaitingDate, map[string]interface{}{
		state.ContextLocationID: location,
	}); err != nil {
		return err
	}

	return c.Send(t.T("subscribe.ask_date"), s.kb.CancelButton(t))
}

// Date handles text received in awaiting_date and commits the subscription.
func (s *Subscribe) Date(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	ctx := RequestContext(c)
	t := translator(s.catalog, c)

	current, err := s.fsm.GetState(ctx, sender.ID)
	if err != nil {
		return err
	}

	location, ok := current.StringValue(state.ContextLocationID)
	if !ok || location == "" {
		// Context lost (e.g. expired); ask for the location again.
		if err := s.fsm.Advance(ctx, sender.ID, state.StateAwaitingLocation, nil); err != nil {
			return err
		}
		return c.Send(t.T("subscribe.ask_location"), s.kb.CancelButton(t))
	}

	sub, err := s.service.Subscribe(ctx, SubscriberID(sender), location, c.Text())
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeInput) {
			formats := strings.Join(dateparse.SupportedFormats(), ", ")
			return c.Send(t.Tf("subscribe.invalid_date", formats), s.kb.CancelButton(t))
		}

		s.log.Error("failed to store subscription", slog.Int64("telegram_id", sender.ID), slog.Any("error", err))
		return c.Send(t.T("subscribe.failed"))
	}

	if err := s.fsm.ClearState(ctx, sender.ID); err != nil && !errors.Is(err, state.ErrStateNotFound) {
		s.log.Warn("failed to clear dialog state", slog.Int64("telegram_id", sender.ID), slog.Any("error", err))
	}

	return c.Send(
		t.Tf("subscribe.saved", sub.LocationID, sub.CurrentAppointmentDate.Format(domain.DateLayout)),
		s.kb.MainMenu(t),
	)
}
