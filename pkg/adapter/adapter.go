// Package adapter defines the storage contract every database backend
// must satisfy: PostgreSQL, MySQL, SQLite, and the in-memory fixture
// used by the dispatcher/executor/plugin test suites all implement the
// same Adapter interface so the rest of the module is database-agnostic.
package adapter

import (
	"context"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// JobUpdate is a partial update: only non-nil fields are applied. This
// mirrors UpdateJob's "applies only non-null fields of partial" contract
// rather than requiring callers to re-supply the whole row.
type JobUpdate struct {
	State       *jobqueue.State
	ScheduledAt *time.Time
	AttemptedAt *time.Time
	CompletedAt *time.Time
	DiscardedAt *time.Time
	CancelledAt *time.Time
	Attempt     *int
	AppendError *jobqueue.ErrorRecord
	Meta        map[string]any
}

// CancelFilter narrows CancelJobs to a subset of non-terminal jobs.
// Zero-value fields are wildcards; an entirely zero CancelFilter cancels
// every non-terminal row.
type CancelFilter struct {
	Queue  string
	Worker string
	State  jobqueue.State
}

// UniqueOptions configures CheckUnique. See Defaults for the zero-value
// behavior.
type UniqueOptions struct {
	// Fields selects which columns participate in the match. Valid
	// members: "worker", "queue", "args". Defaults to all three.
	Fields []string
	// Keys, when non-empty, restricts the "args" comparison to these
	// extracted keys instead of comparing the whole args document.
	Keys []string
	// Period bounds how far back inserted_at may be and still count as a
	// conflict. Zero means the 60s default; Infinite overrides Period
	// entirely.
	Period   time.Duration
	Infinite bool
	// States restricts which job states count as live conflicts.
	// Defaults to available, scheduled, executing, retryable.
	States []jobqueue.State
}

// Defaults fills zero-valued fields of opts with the spec defaults and
// returns the result; opts itself is left untouched.
func (opts UniqueOptions) Defaults() UniqueOptions {
	out := opts
	if len(out.Fields) == 0 {
		out.Fields = []string{"worker", "queue", "args"}
	}
	if len(out.States) == 0 {
		out.States = []jobqueue.State{
			jobqueue.StateAvailable,
			jobqueue.StateScheduled,
			jobqueue.StateExecuting,
			jobqueue.StateRetryable,
		}
	}
	if out.Period == 0 && !out.Infinite {
		out.Period = 60 * time.Second
	}
	return out
}

// HasField reports whether name is among opts.Fields.
func (opts UniqueOptions) HasField(name string) bool {
	for _, f := range opts.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Notifier is the optional pub/sub side channel an Adapter may expose.
// Adapters without native pub/sub (MySQL, SQLite) return ErrNotifyUnsupported
// from both methods; callers fall back to poll interval + stager broadcast,
// or pair the orchestrator with pkg/notifier/redis.
type Notifier interface {
	Listen(ctx context.Context, callback func(queue string)) error
	Notify(ctx context.Context, queue string) error
}

// Adapter is the polymorphic storage contract every backend satisfies
// with identical observable behavior, per spec.md §4.1.
type Adapter interface {
	Notifier

	Migrate(ctx context.Context) error
	Rollback(ctx context.Context, targetVersion int64) error

	InsertJob(ctx context.Context, j jobqueue.Job) (jobqueue.Job, error)
	GetJob(ctx context.Context, id int64) (*jobqueue.Job, error)
	UpdateJob(ctx context.Context, id int64, partial JobUpdate) (*jobqueue.Job, error)

	// FetchJobs atomically claims up to limit available, due rows from
	// queue, transitioning each to executing. Two concurrent callers,
	// in this process or another, must never receive overlapping rows.
	FetchJobs(ctx context.Context, queue string, limit int) ([]jobqueue.Job, error)

	StageJobs(ctx context.Context) (int, error)
	CancelJobs(ctx context.Context, filter CancelFilter) (int, error)
	RescueStuckJobs(ctx context.Context, after time.Duration) (int, error)
	PruneJobs(ctx context.Context, maxAge time.Duration) (int, error)

	CheckUnique(ctx context.Context, opts UniqueOptions, job jobqueue.Job) (*jobqueue.Job, error)

	Close() error
}
