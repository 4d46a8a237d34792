package jobqueue

// transitions is the legal state-transition table from spec.md §3.2.
// Any (from, to) pair not listed here is an invariant violation.
var transitions = map[State]map[State]bool{
	StateScheduled: {StateAvailable: true, StateCancelled: true},
	StateAvailable: {StateExecuting: true, StateCancelled: true},
	StateExecuting: {
		StateCompleted: true,
		StateRetryable: true,
		StateDiscarded: true,
		StateCancelled: true,
		StateAvailable: true, // rescuer recovery of a crashed worker
	},
	StateRetryable: {StateAvailable: true, StateCancelled: true},
}

// ValidateTransition reports an error unless from -> to is a legal
// transition per the state machine in spec.md §3.2. The zero State is
// accepted as "from" to allow validating the initial insert (no prior
// state to check against).
func ValidateTransition(from, to State) error {
	if from == "" {
		switch to {
		case StateScheduled, StateAvailable:
			return nil
		default:
			return ErrInvalidTransition
		}
	}
	if from == to {
		return ErrInvalidTransition
	}
	if allowed, ok := transitions[from]; ok && allowed[to] {
		return nil
	}
	return ErrInvalidTransition
}
