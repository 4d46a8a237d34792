// Package executor implements the lifecycle executor: given a single
// claimed job, run its handler and persist the resulting outcome as
// exactly one adapter write.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
	"github.com/iagocavalcante/izi-queue/pkg/telemetry"
)

// Isolator dispatches a job to the isolation pool instead of running it
// inline. pkg/isolation.Pool implements this; it is an interface here so
// executor has no hard dependency on subprocess machinery (and so tests
// can substitute a fake).
type Isolator interface {
	Execute(ctx context.Context, spec jobqueue.IsolationSpec, job jobqueue.Job, timeout time.Duration) jobqueue.Result
}

// Registry is the subset of *jobqueue.Registry the executor needs.
type Registry interface {
	Get(name string) (jobqueue.WorkerExecutor, bool)
}

// Run executes job against reg's matching worker and persists the
// outcome via store, emitting telemetry on bus. It implements spec.md
// §4.4's five-step algorithm. log receives per-job operational
// messages (job_id/queue/worker attributes via JobIDExtractor/
// QueueExtractor/WorkerExtractor); a nil log is replaced with
// slog.Default().
func Run(ctx context.Context, job jobqueue.Job, reg Registry, store adapter.Adapter, bus *telemetry.Bus, iso Isolator, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	ctx = ContextWithJob(ctx, job)

	bus.Emit(telemetry.Event{Name: telemetry.JobStart, Job: &job, Queue: job.Queue})
	log.DebugContext(ctx, "job execution starting", "attempt", job.Attempt)

	backoff := jobqueue.DefaultBackoff
	if w, ok := reg.Get(job.Worker); ok {
		if spec := w.Spec(); spec.Backoff != nil {
			backoff = spec.Backoff
		}
	}

	result := runHandler(ctx, job, reg, iso)

	if err := persist(ctx, store, bus, job, result, backoff); err != nil {
		// The executor's own write failed; best-effort discard so the
		// job doesn't spin forever, per spec.md §4.4's "exception thrown
		// BY the executor itself ... MUST be caught."
		log.ErrorContext(ctx, "executor write failed, discarding job", "err", err)
		fallback(ctx, store, job, err)
	}
}

func runHandler(ctx context.Context, job jobqueue.Job, reg Registry, iso Isolator) (result jobqueue.Result) {
	w, ok := reg.Get(job.Worker)
	if !ok {
		return jobqueue.Err(fmt.Errorf("%w: worker %q not registered", jobqueue.ErrUnknownWorker, job.Worker))
	}
	spec := w.Spec()

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if spec.Isolation != nil {
		if iso == nil {
			return jobqueue.Err(errors.New("job requires isolation but no isolation pool is configured"))
		}
		return iso.Execute(runCtx, *spec.Isolation, job, timeout)
	}

	return invoke(runCtx, w, job, timeout)
}

func invoke(ctx context.Context, w jobqueue.WorkerExecutor, job jobqueue.Job, timeout time.Duration) jobqueue.Result {
	done := make(chan jobqueue.Result, 1)
	go func() {
		done <- safeExecute(ctx, w, job)
	}()
	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return jobqueue.Err(fmt.Errorf("timed out after %dms", timeout.Milliseconds()))
	}
}

func safeExecute(ctx context.Context, w jobqueue.WorkerExecutor, job jobqueue.Job) (result jobqueue.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = jobqueue.Err(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return w.Execute(ctx, job, job.Args)
}

func persist(ctx context.Context, store adapter.Adapter, bus *telemetry.Bus, job jobqueue.Job, result jobqueue.Result, backoff jobqueue.BackoffFunc) error {
	now := time.Now()

	if result.IsOk() {
		_, err := store.UpdateJob(ctx, job.ID, adapter.JobUpdate{
			State:       statePtr(jobqueue.StateCompleted),
			CompletedAt: &now,
		})
		if err != nil {
			return err
		}
		bus.Emit(telemetry.Event{Name: telemetry.JobComplete, Job: &job, Queue: job.Queue})
		return nil
	}

	if reason, isCancel := result.IsCancel(); isCancel {
		rec := &jobqueue.ErrorRecord{At: now, Attempt: job.Attempt, Error: "cancelled: " + reason}
		_, err := store.UpdateJob(ctx, job.ID, adapter.JobUpdate{
			State:       statePtr(jobqueue.StateCancelled),
			CancelledAt: &now,
			AppendError: rec,
		})
		if err != nil {
			return err
		}
		bus.Emit(telemetry.Event{Name: telemetry.JobCancel, Job: &job, Queue: job.Queue, Result: reason})
		return nil
	}

	if after, isSnooze := result.IsSnooze(); isSnooze {
		scheduledAt := now.Add(after)
		_, err := store.UpdateJob(ctx, job.ID, adapter.JobUpdate{
			State:       statePtr(jobqueue.StateScheduled),
			ScheduledAt: &scheduledAt,
		})
		if err != nil {
			return err
		}
		bus.Emit(telemetry.Event{Name: telemetry.JobSnooze, Job: &job, Queue: job.Queue, Duration: after})
		return nil
	}

	handlerErr, _ := result.IsErr()
	rec := formatError(handlerErr, job.Attempt)

	if job.Attempt >= job.MaxAttempts {
		_, err := store.UpdateJob(ctx, job.ID, adapter.JobUpdate{
			State:       statePtr(jobqueue.StateDiscarded),
			DiscardedAt: &now,
			AppendError: &rec,
		})
		if err != nil {
			return err
		}
		bus.Emit(telemetry.Event{Name: telemetry.JobError, Job: &job, Queue: job.Queue, Err: handlerErr, Extra: map[string]any{"terminal": true}})
		return nil
	}

	delay := backoff(job)
	scheduledAt := now.Add(delay)
	_, err := store.UpdateJob(ctx, job.ID, adapter.JobUpdate{
		State:       statePtr(jobqueue.StateRetryable),
		ScheduledAt: &scheduledAt,
		AppendError: &rec,
	})
	if err != nil {
		return err
	}
	bus.Emit(telemetry.Event{Name: telemetry.JobError, Job: &job, Queue: job.Queue, Err: handlerErr})
	return nil
}

func fallback(ctx context.Context, store adapter.Adapter, job jobqueue.Job, cause error) {
	now := time.Now()
	rec := formatError(fmt.Errorf("executor write failed: %w", cause), job.Attempt)
	_, _ = store.UpdateJob(ctx, job.ID, adapter.JobUpdate{
		State:       statePtr(jobqueue.StateDiscarded),
		DiscardedAt: &now,
		AppendError: &rec,
	})
}

// formatError builds the ErrorRecord recorded against a job, per
// spec.md §4.4's formatError contract.
func formatError(err error, attempt int) jobqueue.ErrorRecord {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return jobqueue.ErrorRecord{At: time.Now(), Attempt: attempt, Error: msg}
}

func statePtr(s jobqueue.State) *jobqueue.State { return &s }
