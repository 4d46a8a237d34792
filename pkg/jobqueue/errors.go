package jobqueue

import "errors"

// Sentinel errors for the jobqueue package.
var (
	// ErrUnknownWorker is returned/synthesized when a job names a worker
	// that is not present in the Registry at dispatch time.
	ErrUnknownWorker = errors.New("jobqueue: unknown worker")

	// ErrAlreadyRegistered is not itself an error condition (re-registering
	// a name is allowed and replaces the prior entry, per spec.md §8
	// "Register(w); Register(w') ... leaves only w' in the registry"),
	// but is exported so callers can log the replacement if they choose.
	ErrAlreadyRegistered = errors.New("jobqueue: worker name already registered")

	// ErrInvalidTransition indicates an attempted state change outside the
	// table in state.go. This is an invariant violation: it must be
	// visible, not swallowed (spec.md §7 kind 6).
	ErrInvalidTransition = errors.New("jobqueue: invalid state transition")

	// ErrInvalidPayload is returned (as a retryable Err outcome, not an
	// invariant) when a job's args cannot be unmarshaled into the
	// handler's declared payload type.
	ErrInvalidPayload = errors.New("jobqueue: invalid payload")
)

// ErrInvariant builds an invariant-violation error carrying msg. These
// errors must propagate per spec.md §7: they indicate bugs, not runtime
// conditions.
func ErrInvariant(msg string) error {
	return &invariantError{msg: msg}
}

type invariantError struct {
	msg string
}

func (e *invariantError) Error() string { return "jobqueue: invariant violation: " + e.msg }

// Is reports whether target is also an *invariantError, so callers can
// errors.Is against a sentinel-free invariant check via
// errors.As(err, new(*invariantError)) or the exported IsInvariant helper.
func (e *invariantError) Is(target error) bool {
	_, ok := target.(*invariantError)
	return ok
}

// IsInvariant reports whether err is an invariant-violation error.
func IsInvariant(err error) bool {
	var inv *invariantError
	return errors.As(err, &inv)
}
