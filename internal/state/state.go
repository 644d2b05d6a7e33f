package state

import "time"

// State represents a finite-state machine state.
type State string

const (
	// StateIdle indicates that no configuration dialog is in progress.
	StateIdle State = "idle"
	// StateAwaitingLocation indicates that the bot asked for the enrollment location id.
	StateAwaitingLocation State = "awaiting_location"
	// StateAwaitingDate indicates that the bot asked for the current appointment date.
	StateAwaitingDate State = "awaiting_date"
	// StateError indicates that the dialog failed and requires recovery.
	StateError State = "error"
)

// Context keys carried forward between dialog steps.
const (
	ContextLocationID = "location_id"
)

// UserState captures the current FSM state for a Telegram user.
type UserState struct {
	UserID       int64                  `json:"user_id"`
	CurrentState State                  `json:"current_state"`
	Context      map[string]interface{} `json:"context"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// StringValue returns the context value stored under key when it is a string.
func (s *UserState) StringValue(key string) (string, bool) {
	if s == nil || s.Context == nil {
		return "", false
	}
	v, ok := s.Context[key].(string)
	return v, ok
}
