package iziqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
	"github.com/iagocavalcante/izi-queue/pkg/telemetry"
)

// insertConfig accumulates the options applied to a single Insert call.
type insertConfig struct {
	queue       string
	priority    *int
	maxAttempts *int
	scheduledAt time.Time
	tags        []string
	meta        map[string]any
	unique      *adapter.UniqueOptions
}

// InsertOption configures one Insert/InsertWithResult call.
type InsertOption func(*insertConfig)

// InQueue overrides the worker's default queue for this insert.
func InQueue(name string) InsertOption {
	return func(c *insertConfig) { c.queue = name }
}

// WithPriority overrides the worker's default priority for this insert.
func WithPriority(p int) InsertOption {
	return func(c *insertConfig) { c.priority = &p }
}

// WithMaxAttempts overrides the worker's default max attempts for this
// insert.
func WithMaxAttempts(n int) InsertOption {
	return func(c *insertConfig) { c.maxAttempts = &n }
}

// ScheduledAt defers the job until at. Jobs scheduled in the future are
// inserted in the scheduled state rather than available.
func ScheduledAt(at time.Time) InsertOption {
	return func(c *insertConfig) { c.scheduledAt = at }
}

// WithTags attaches tags to the inserted job for filtering/diagnostics.
func WithTags(tags ...string) InsertOption {
	return func(c *insertConfig) { c.tags = tags }
}

// WithMeta attaches arbitrary metadata to the inserted job.
func WithMeta(meta map[string]any) InsertOption {
	return func(c *insertConfig) { c.meta = meta }
}

// Unique requests a uniqueness check before inserting, per spec.md
// §4.7a. A zero-value opts applies the package defaults (match on
// worker+queue+args, 60s period, live states only).
func Unique(opts adapter.UniqueOptions) InsertOption {
	return func(c *insertConfig) { c.unique = &opts }
}

// InsertParams is one element of an InsertAll batch.
type InsertParams struct {
	Worker string
	Queue  string
	Args   any
	Opts   []InsertOption
}

// InsertResult is InsertWithResult's return value: the job as persisted
// (or the pre-existing conflicting job) plus whether a uniqueness
// conflict was found.
type InsertResult struct {
	Job      Job
	Conflict bool
}

// Insert persists a new job for worker on queue, defaulting queue,
// priority, and max attempts from the worker's registered WorkerSpec
// and then from the package defaults ("default" / 0 / 20), per spec.md
// §6.3. It is a thin wrapper over InsertWithResult that discards the
// conflict flag.
func (o *Orchestrator) Insert(ctx context.Context, worker, queue string, args any, opts ...InsertOption) (Job, error) {
	if queue != "" {
		opts = append([]InsertOption{InQueue(queue)}, opts...)
	}
	result, err := o.InsertWithResult(ctx, worker, args, opts...)
	if err != nil {
		return Job{}, err
	}
	return result.Job, nil
}

// InsertWithResult persists a new job for worker, applying opts over the
// worker's registered defaults. If a Unique option is present and the
// adapter reports a live conflicting job, the existing job is returned
// with Conflict set instead of inserting a new row.
func (o *Orchestrator) InsertWithResult(ctx context.Context, worker string, args any, opts ...InsertOption) (InsertResult, error) {
	cfg := insertConfig{scheduledAt: time.Now()}
	spec, hasSpec := o.registry.Spec(worker)
	if hasSpec {
		cfg.queue = spec.Queue
		cfg.priority = &spec.Priority
		cfg.maxAttempts = &spec.MaxAttempts
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	raw, err := marshalArgs(args)
	if err != nil {
		return InsertResult{}, fmt.Errorf("iziqueue: insert %q: %w", worker, err)
	}

	queue := cfg.queue
	if queue == "" {
		queue = "default"
	}
	maxAttempts := 20
	if cfg.maxAttempts != nil {
		maxAttempts = *cfg.maxAttempts
	}
	priority := 0
	if cfg.priority != nil {
		priority = *cfg.priority
	}

	job := jobqueue.Job{
		InsertedAt:  time.Now(),
		ScheduledAt: cfg.scheduledAt,
		Queue:       queue,
		Worker:      worker,
		Args:        raw,
		Meta:        cfg.meta,
		Tags:        cfg.tags,
		MaxAttempts: maxAttempts,
		Priority:    priority,
	}
	job.State = jobqueue.InitialState(job.ScheduledAt, job.InsertedAt)

	if cfg.unique != nil {
		existing, err := o.checkUnique(ctx, *cfg.unique, job)
		if err != nil {
			return InsertResult{}, fmt.Errorf("iziqueue: insert %q: check unique: %w", worker, err)
		}
		if existing != nil {
			o.bus.Emit(telemetry.Event{
				Name:  telemetry.JobUniqueConflict,
				Queue: existing.Queue,
				Job:   existing,
			})
			return InsertResult{Job: *existing, Conflict: true}, nil
		}
	}

	stored, err := o.store.InsertJob(ctx, job)
	if err != nil {
		return InsertResult{}, fmt.Errorf("iziqueue: insert %q: %w", worker, err)
	}

	if cfg.unique != nil {
		o.cacheUniqueInsert(ctx, *cfg.unique, stored)
	}
	o.notifyInserted(ctx, stored.Queue)

	return InsertResult{Job: stored}, nil
}

// InsertAll persists every InsertParams in params, returning the stored
// jobs in the same order. InsertAll stops at the first error, returning
// the jobs successfully inserted so far alongside it.
func (o *Orchestrator) InsertAll(ctx context.Context, params []InsertParams) ([]Job, error) {
	jobs := make([]Job, 0, len(params))
	for i, p := range params {
		job, err := o.Insert(ctx, p.Worker, p.Queue, p.Args, p.Opts...)
		if err != nil {
			return jobs, fmt.Errorf("iziqueue: insert_all[%d] %q: %w", i, p.Worker, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// notifyInserted tells both the adapter's native pub/sub (if any) and
// the optional external notifier about a new row on queue, then wakes
// the local dispatcher directly so same-process execution doesn't wait
// on a round trip through either side channel.
func (o *Orchestrator) notifyInserted(ctx context.Context, queue string) {
	if err := o.store.Notify(ctx, queue); err != nil && o.log != nil {
		o.log.Debug("adapter notify unavailable", "queue", queue, "err", err)
	}
	if o.notifier != nil {
		if err := o.notifier.Notify(ctx, queue); err != nil {
			o.log.Error("notifier notify failed", "queue", queue, "err", err)
		}
	}
	o.mu.Lock()
	d, ok := o.queues[queue]
	o.mu.Unlock()
	if ok {
		d.Dispatch()
	}
}

func marshalArgs(args any) (json.RawMessage, error) {
	if args == nil {
		return nil, nil
	}
	if raw, ok := args.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(args)
}
