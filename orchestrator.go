// Package iziqueue is the composition root of the database-backed job
// queue: it wires a storage Adapter, a worker Registry, one Dispatcher
// per configured queue, the lifecycle Executor, the Stager/Rescuer/
// Pruner background plugins, and the telemetry event bus into a single
// public API, the way forge.App wires pkg/job, pkg/db, pkg/health, and
// pkg/logger together in the teacher repo this module grew out of.
package iziqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/cache"
	"github.com/iagocavalcante/izi-queue/pkg/dispatcher"
	"github.com/iagocavalcante/izi-queue/pkg/executor"
	"github.com/iagocavalcante/izi-queue/pkg/health"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
	"github.com/iagocavalcante/izi-queue/pkg/logger"
	"github.com/iagocavalcante/izi-queue/pkg/plugin"
	"github.com/iagocavalcante/izi-queue/pkg/telemetry"
)

// Job is the persisted unit of work. See jobqueue.Job for field details.
type Job = jobqueue.Job

// CancelFilter narrows CancelJobs to a subset of non-terminal jobs.
type CancelFilter = adapter.CancelFilter

// QueueStatus is a snapshot of one dispatcher's runtime state.
type QueueStatus = dispatcher.QueueStatus

// Orchestrator is the immutable-after-construction composition root.
// Build one with New, register workers with Register, then Start or Run
// it.
type Orchestrator struct {
	baseCtx context.Context
	log     *slog.Logger

	store    adapter.Adapter
	registry *jobqueue.Registry
	bus      *telemetry.Bus
	iso      executor.Isolator
	notifier adapter.Notifier

	uniqueCache  cache.Cache[int64]
	healthChecks health.Checks

	queueCfgs map[string]QueueConfig
	queues    map[string]*dispatcher.Dispatcher

	stagerInterval  time.Duration
	rescuerInterval time.Duration
	rescueAfter     time.Duration
	prunerInterval  time.Duration
	pruneMaxAge     time.Duration

	stager  plugin.Plugin
	rescuer plugin.Plugin
	pruner  plugin.Plugin

	shutdownTimeout time.Duration
	shutdownHooks   []func(context.Context) error

	mu         sync.Mutex
	running    bool
	listenStop context.CancelFunc
	runDone    chan struct{}
}

// New creates an Orchestrator backed by store. It does not start
// anything; call Start or Run once every worker has been Registered and
// Migrate has been run.
func New(store adapter.Adapter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		baseCtx:         context.Background(),
		log:             logger.New(executor.JobIDExtractor(), executor.QueueExtractor(), executor.WorkerExtractor()),
		store:           store,
		registry:        jobqueue.NewRegistry(),
		bus:             telemetry.NewBus(),
		queueCfgs:       make(map[string]QueueConfig),
		queues:          make(map[string]*dispatcher.Dispatcher),
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.queueCfgs) == 0 {
		o.queueCfgs["default"] = QueueConfig{Name: "default", Limit: defaultQueueLimit}
	}
	return o
}

// Migrate applies every pending schema migration on the underlying
// adapter.
func (o *Orchestrator) Migrate(ctx context.Context) error {
	return o.store.Migrate(ctx)
}

// Register adds w to the Orchestrator's worker registry under its own
// Name(). Re-registering a name replaces the prior worker. Register is a
// package-level function, not a method, because Go methods cannot
// introduce new type parameters: P is inferred from w's Handle
// signature.
func Register[P any, T jobqueue.Handler[P]](o *Orchestrator, w T, opts ...jobqueue.WorkerOption) {
	jobqueue.Register[P](o.registry, w, opts...)
}

// GetJob fetches a single job by id.
func (o *Orchestrator) GetJob(ctx context.Context, id int64) (*Job, error) {
	return o.store.GetJob(ctx, id)
}

// CancelJobs marks every non-terminal job matching filter as cancelled,
// returning the number of rows affected.
func (o *Orchestrator) CancelJobs(ctx context.Context, filter CancelFilter) (int, error) {
	return o.store.CancelJobs(ctx, filter)
}

// defaultPruneMaxAge and defaultRescueAfter are spec.md §6.3's public-API
// defaults, distinct from the plugin package's own maintenance-loop
// defaults (pkg/plugin.DefaultMaxAge is 24h for the always-running
// Pruner; an on-demand PruneJobs call defaults to the longer 7 days).
const (
	defaultPruneMaxAge = 7 * 24 * time.Hour
	defaultRescueAfter = 300 * time.Second
)

// PruneJobs deletes terminal jobs older than maxAge, defaulting to 7
// days when maxAge is zero.
func (o *Orchestrator) PruneJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = defaultPruneMaxAge
	}
	return o.store.PruneJobs(ctx, maxAge)
}

// RescueStuckJobs returns executing jobs whose attempted_at predates
// after back to available, defaulting after to 300s when zero.
func (o *Orchestrator) RescueStuckJobs(ctx context.Context, after time.Duration) (int, error) {
	if after <= 0 {
		after = defaultRescueAfter
	}
	return o.store.RescueStuckJobs(ctx, after)
}

func (o *Orchestrator) dispatcherFor(name string) (*dispatcher.Dispatcher, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}
	return d, nil
}

// PauseQueue stops queue from claiming new jobs without interrupting
// jobs already in flight.
func (o *Orchestrator) PauseQueue(name string) error {
	d, err := o.dispatcherFor(name)
	if err != nil {
		return err
	}
	return d.Pause()
}

// ResumeQueue re-arms polling on queue after PauseQueue.
func (o *Orchestrator) ResumeQueue(name string) error {
	d, err := o.dispatcherFor(name)
	if err != nil {
		return err
	}
	return d.Resume()
}

// ScaleQueue mutates queue's concurrency limit in place.
func (o *Orchestrator) ScaleQueue(name string, limit int) error {
	d, err := o.dispatcherFor(name)
	if err != nil {
		return err
	}
	d.Scale(limit)
	return nil
}

// GetQueueStatus returns a snapshot of one queue's runtime state.
func (o *Orchestrator) GetQueueStatus(name string) (QueueStatus, error) {
	d, err := o.dispatcherFor(name)
	if err != nil {
		return QueueStatus{}, err
	}
	return d.Status(), nil
}

// GetAllQueueStatus returns a snapshot of every configured queue, in no
// particular order.
func (o *Orchestrator) GetAllQueueStatus() []QueueStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]QueueStatus, 0, len(o.queues))
	for _, d := range o.queues {
		out = append(out, d.Status())
	}
	return out
}

// On subscribes fn to event (an exact telemetry event name or
// telemetry.Wildcard), returning an unsubscribe function.
func (o *Orchestrator) On(event string, fn telemetry.Handler) (unsubscribe func()) {
	return o.bus.On(event, fn)
}

// Drain blocks until queue (or every queue, if name is empty) has no
// available or executing jobs left, re-staging and re-dispatching until
// none remain. Intended for tests and one-shot batch-processing runs,
// not for steady-state operation.
func (o *Orchestrator) Drain(ctx context.Context, name string) error {
	names, err := o.drainTargets(name)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := o.store.StageJobs(ctx); err != nil {
			return fmt.Errorf("iziqueue: drain: stage: %w", err)
		}
		for _, d := range names {
			d.Dispatch()
		}

		empty, err := o.allQueuesEmpty(ctx, names)
		if err != nil {
			return err
		}
		if empty {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) drainTargets(name string) ([]*dispatcher.Dispatcher, error) {
	if name != "" {
		d, err := o.dispatcherFor(name)
		if err != nil {
			return nil, err
		}
		return []*dispatcher.Dispatcher{d}, nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*dispatcher.Dispatcher, 0, len(o.queues))
	for _, d := range o.queues {
		out = append(out, d)
	}
	return out, nil
}

func (o *Orchestrator) allQueuesEmpty(ctx context.Context, targets []*dispatcher.Dispatcher) (bool, error) {
	for _, d := range targets {
		st := d.Status()
		if st.Inflight > 0 {
			return false, nil
		}
		jobs, err := o.store.FetchJobs(ctx, st.Name, 1)
		if err != nil {
			return false, fmt.Errorf("iziqueue: drain: probe %q: %w", st.Name, err)
		}
		if len(jobs) > 0 {
			// The probe itself just claimed a row; let it run rather than
			// leaving it executing forever.
			for _, j := range jobs {
				executor.Run(ctx, j, o.registry, o.store, o.bus, o.iso, o.log)
			}
			return false, nil
		}
	}
	return true, nil
}

// Healthcheck runs the adapter's own liveness probe plus every check
// registered via WithHealthChecks, returning the aggregated result.
func (o *Orchestrator) Healthcheck(ctx context.Context) *health.Response {
	checks := make(health.Checks, len(o.healthChecks)+1)
	for name, fn := range o.healthChecks {
		checks[name] = fn
	}
	checks["adapter"] = func(ctx context.Context) error {
		_, err := o.store.GetJob(ctx, 0)
		return err
	}
	return health.Run(ctx, checks)
}
