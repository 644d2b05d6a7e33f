package bot

import (
	"errors"
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/slotwatch/internal/bot/handlers"
	"github.com/Proton-105/slotwatch/internal/state"
)

// Dispatcher routes incoming updates to state-specific handlers.
type Dispatcher struct {
	fsm           state.StateMachine
	stateHandlers map[state.State]handlers.Handler
	log           *slog.Logger
	mu            sync.RWMutex
}

// NewDispatcher creates a Dispatcher with an empty handlers registry.
func NewDispatcher(fsm state.StateMachine, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		fsm:           fsm,
		stateHandlers: make(map[state.State]handlers.Handler),
		log:           log,
	}
}

// RegisterStateHandler registers a handler for the provided state.
func (d *Dispatcher) RegisterStateHandler(s state.State, h handlers.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stateHandlers[s] = h
}

// Dispatch routes the update based on the user's current state.
func (d *Dispatcher) Dispatch(c telebot.Context) error {
	if c == nil || c.Sender() == nil {
		d.log.Warn("cannot dispatch without sender information")
		return nil
	}

	userID := c.Sender().ID

	currentState, err := d.currentState(c)
	if err != nil {
		return err
	}

	handler := d.getHandler(currentState)
	if handler == nil {
		d.log.Info("no handler registered for state", "state", currentState, "user_id", userID)
		return nil
	}

	return handler(c)
}

// currentState treats a missing session as idle.
func (d *Dispatcher) currentState(c telebot.Context) (state.State, error) {
	userState, err := d.fsm.GetState(handlers.RequestContext(c), c.Sender().ID)
	switch {
	case errors.Is(err, state.ErrStateNotFound):
		return state.StateIdle, nil
	case err != nil:
		return "", err
	case userState == nil:
		return state.StateIdle, nil
	}
	return userState.CurrentState, nil
}

// Handles reports whether a handler is registered for the sender's state.
func (d *Dispatcher) Handles(c telebot.Context) (bool, error) {
	if c == nil || c.Sender() == nil {
		return false, nil
	}

	current, err := d.currentState(c)
	if err != nil {
		return false, err
	}
	return d.getHandler(current) != nil, nil
}

func (d *Dispatcher) getHandler(s state.State) handlers.Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateHandlers[s]
}
