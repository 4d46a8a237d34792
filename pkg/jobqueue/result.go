package jobqueue

import "time"

type resultKind uint8

const (
	kindOk resultKind = iota
	kindErr
	kindCancel
	kindSnooze
)

// Result is the four-variant WorkerResult described in spec.md §4.2. The
// zero value is Ok(), so a handler that returns an empty Result behaves
// as a success, matching "A handler that returns nothing is equivalent
// to ok()."
type Result struct {
	err    error
	reason string
	after  time.Duration
	kind   resultKind
}

// Ok reports success. It takes no value: a success result carries
// nothing beyond its kind, and no return value is persisted.
func Ok() Result { return Result{kind: kindOk} }

// Err marks the attempt as failed. It is retried if attempts remain,
// otherwise discarded, per spec.md §4.4.
func Err(err error) Result { return Result{kind: kindErr, err: err} }

// Cancel marks the job as terminally cancelled with reason appended to
// its error history.
func Cancel(reason string) Result { return Result{kind: kindCancel, reason: reason} }

// Snooze reschedules the job after seconds into the future, returning it
// to the scheduled state.
func Snooze(after time.Duration) Result { return Result{kind: kindSnooze, after: after} }

// IsOk reports whether r is the success variant.
func (r Result) IsOk() bool { return r.kind == kindOk }

// IsErr reports whether r is the error variant, and returns the error if so.
func (r Result) IsErr() (error, bool) { return r.err, r.kind == kindErr }

// IsCancel reports whether r is the cancel variant, and returns the reason if so.
func (r Result) IsCancel() (string, bool) { return r.reason, r.kind == kindCancel }

// IsSnooze reports whether r is the snooze variant, and returns the delay if so.
func (r Result) IsSnooze() (time.Duration, bool) { return r.after, r.kind == kindSnooze }

// Normalize maps a (Result, error) handler return pair onto a single
// Result, applying spec.md §4.2's "returns nothing is equivalent to ok(),
// raises is treated as error(raised)" rules.
func Normalize(r Result, err error) Result {
	if err != nil {
		return Err(err)
	}
	if r.kind == kindOk && r.err == nil && r.reason == "" && r.after == 0 {
		return Ok()
	}
	return r
}
