package state

// validTransitions contains the permitted non-emergency transitions in the FSM.
var validTransitions = map[State][]State{
	StateIdle: {
		StateAwaitingLocation,
	},
	StateAwaitingLocation: {
		StateAwaitingDate,
		StateAwaitingLocation,
	},
	StateAwaitingDate: {
		StateAwaitingDate,
		StateAwaitingLocation,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is valid.
// Idle and error are reachable from anywhere.
func IsTransitionAllowed(from, to State) bool {
	if to == StateError || to == StateIdle {
		return true
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}
