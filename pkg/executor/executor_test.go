package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iagocavalcante/izi-queue/pkg/adapter/memadapter"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
	"github.com/iagocavalcante/izi-queue/pkg/telemetry"
)

type fixedWorker struct {
	name   string
	result jobqueue.Result
	err    error
	panics bool
	sleep  time.Duration
}

func (w *fixedWorker) Name() string { return w.name }

func (w *fixedWorker) Handle(ctx context.Context, _ jobqueue.Job, _ struct{}) (jobqueue.Result, error) {
	if w.panics {
		panic("boom")
	}
	if w.sleep > 0 {
		select {
		case <-time.After(w.sleep):
		case <-ctx.Done():
		}
	}
	return w.result, w.err
}

func setup(t *testing.T, w *fixedWorker) (*memadapter.Adapter, *jobqueue.Registry, *telemetry.Bus) {
	t.Helper()
	reg := jobqueue.NewRegistry()
	jobqueue.Register[struct{}](reg, w, jobqueue.WithTimeout(50*time.Millisecond))
	store := memadapter.New(nil)
	bus := telemetry.NewBus()
	return store, reg, bus
}

func insertJob(t *testing.T, store *memadapter.Adapter, worker string, attempt, maxAttempts int) jobqueue.Job {
	t.Helper()
	j, err := store.InsertJob(context.Background(), jobqueue.Job{
		Worker: worker, Queue: "default", State: jobqueue.StateExecuting,
		Attempt: attempt, MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return j
}

func TestRun_OkMarksCompleted(t *testing.T) {
	w := &fixedWorker{name: "ok", result: jobqueue.Ok()}
	store, reg, bus := setup(t, w)
	job := insertJob(t, store, "ok", 1, 20)

	var events []string
	bus.On(telemetry.Wildcard, func(ev telemetry.Event) { events = append(events, ev.Name) })

	Run(context.Background(), job, reg, store, bus, nil, nil)

	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, jobqueue.StateCompleted, got.State)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, []string{telemetry.JobStart, telemetry.JobComplete}, events)
}

func TestRun_ErrorWithAttemptsRemainingRetries(t *testing.T) {
	w := &fixedWorker{name: "fail", err: errors.New("boom")}
	store, reg, bus := setup(t, w)
	job := insertJob(t, store, "fail", 1, 20)

	Run(context.Background(), job, reg, store, bus, nil, nil)

	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, jobqueue.StateRetryable, got.State)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "boom", got.Errors[0].Error)
	assert.True(t, got.ScheduledAt.After(time.Now()))
}

func TestRun_ErrorAtMaxAttemptsDiscards(t *testing.T) {
	w := &fixedWorker{name: "fail", err: errors.New("boom")}
	store, reg, bus := setup(t, w)
	job := insertJob(t, store, "fail", 20, 20)

	Run(context.Background(), job, reg, store, bus, nil, nil)

	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, jobqueue.StateDiscarded, got.State)
	assert.NotNil(t, got.DiscardedAt)
}

func TestRun_CancelResult(t *testing.T) {
	w := &fixedWorker{name: "cancel", result: jobqueue.Cancel("no longer needed")}
	store, reg, bus := setup(t, w)
	job := insertJob(t, store, "cancel", 1, 20)

	Run(context.Background(), job, reg, store, bus, nil, nil)

	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, jobqueue.StateCancelled, got.State)
	require.Len(t, got.Errors, 1)
}

func TestRun_SnoozeResult(t *testing.T) {
	w := &fixedWorker{name: "snooze", result: jobqueue.Snooze(time.Hour)}
	store, reg, bus := setup(t, w)
	job := insertJob(t, store, "snooze", 1, 20)

	Run(context.Background(), job, reg, store, bus, nil, nil)

	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, jobqueue.StateScheduled, got.State)
	assert.True(t, got.ScheduledAt.After(time.Now().Add(50*time.Minute)))
}

func TestRun_UnknownWorkerSynthesizesError(t *testing.T) {
	store, reg, bus := setup(t, &fixedWorker{name: "other"})
	job := insertJob(t, store, "missing", 1, 20)

	Run(context.Background(), job, reg, store, bus, nil, nil)

	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, jobqueue.StateRetryable, got.State)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0].Error, "not registered")
}

func TestRun_TimeoutYieldsError(t *testing.T) {
	w := &fixedWorker{name: "slow", sleep: 500 * time.Millisecond}
	store, reg, bus := setup(t, w)
	job := insertJob(t, store, "slow", 1, 20)

	Run(context.Background(), job, reg, store, bus, nil, nil)

	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, jobqueue.StateRetryable, got.State)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0].Error, "timed out")
}

func TestRun_HandlerPanicIsRecovered(t *testing.T) {
	w := &fixedWorker{name: "panicky", panics: true}
	store, reg, bus := setup(t, w)
	job := insertJob(t, store, "panicky", 1, 20)

	require.NotPanics(t, func() {
		Run(context.Background(), job, reg, store, bus, nil, nil)
	})

	got, _ := store.GetJob(context.Background(), job.ID)
	assert.Equal(t, jobqueue.StateRetryable, got.State)
	assert.Contains(t, got.Errors[0].Error, "panic")
}
