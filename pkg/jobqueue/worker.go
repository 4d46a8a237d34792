package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Handler is implemented by task types using structural typing, the way
// the teacher's pkg/job.WithTask avoids importing an interface: any type
// with Name() and a matching Handle signature satisfies Handler[P]
// without declaring it does so.
type Handler[P any] interface {
	// Name is the worker name jobs reference to route to this handler.
	Name() string
	// Handle performs the unit of work. job carries persisted metadata
	// (attempt count, tags, priority); payload is the deserialized args.
	Handle(ctx context.Context, job Job, payload P) (Result, error)
}

// ResourceLimits are best-effort constraints applied to an isolated
// worker's subprocess. Unsupported fields are ignored on platforms that
// can't express them (spec.md §3.3 "optional per-worker resourceLimits").
type ResourceLimits struct {
	// CPUShares is advisory only: Go has no portable cgroup-share knob in
	// os/exec, so isolation.Pool surfaces it to cgroup-aware deployments
	// rather than enforcing it directly.
	CPUShares int
	// MemoryMB, if nonzero, is advisory only on this implementation: Go
	// has no portable per-child-process hard memory cap without cgroups,
	// so it is surfaced to isolation.Pool for cgroup-aware deployments to
	// apply, but is not enforced by default.
	MemoryMB int
	// Niceness, if nonzero, is advisory only on this implementation: it is
	// logged when isolation.Pool spawns the process, but setpriority(2) is
	// not called.
	Niceness int
}

// IsolationSpec marks a worker for execution in the Isolation Pool
// (spec.md §4.6) rather than inline in the dispatcher's goroutine.
type IsolationSpec struct {
	// WorkerPath identifies, to the isolated subprocess, which handler to
	// load. It is opaque to the orchestrator: the isolation runner resolves
	// it against its own registry copy.
	WorkerPath string
	ResourceLimits *ResourceLimits
}

// WorkerSpec holds a registered worker's configured defaults, as
// described in spec.md §3.3.
type WorkerSpec struct {
	Backoff     BackoffFunc
	Isolation   *IsolationSpec
	Name        string
	Queue       string
	Timeout     time.Duration
	MaxAttempts int
	Priority    int
}

// WorkerOption configures a WorkerSpec at registration time.
type WorkerOption func(*WorkerSpec)

// InQueue sets the worker's default queue.
func InQueue(name string) WorkerOption {
	return func(s *WorkerSpec) { s.Queue = name }
}

// WithMaxAttempts sets the worker's default max attempts.
func WithMaxAttempts(n int) WorkerOption {
	return func(s *WorkerSpec) { s.MaxAttempts = n }
}

// WithPriority sets the worker's default priority.
func WithPriority(p int) WorkerOption {
	return func(s *WorkerSpec) { s.Priority = p }
}

// WithBackoff overrides the default backoff formula for this worker.
func WithBackoff(fn BackoffFunc) WorkerOption {
	return func(s *WorkerSpec) {
		if fn != nil {
			s.Backoff = fn
		}
	}
}

// WithTimeout overrides the default 60s handler timeout.
func WithTimeout(d time.Duration) WorkerOption {
	return func(s *WorkerSpec) {
		if d > 0 {
			s.Timeout = d
		}
	}
}

// WithIsolation marks the worker for execution in the isolation pool.
func WithIsolation(spec IsolationSpec) WorkerOption {
	return func(s *WorkerSpec) { s.Isolation = &spec }
}

// defaultTimeout is the 60s default from spec.md §3.3.
const defaultTimeout = 60 * time.Second

func newWorkerSpec(name string, opts ...WorkerOption) WorkerSpec {
	s := WorkerSpec{
		Name:        name,
		MaxAttempts: 20,
		Timeout:     defaultTimeout,
		Backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WorkerExecutor is the type-erased interface stored in the Registry,
// mirroring the teacher's taskExecutor pattern so workers of different
// payload types can share one map. It is exported so pkg/executor and
// pkg/dispatcher can invoke a registered worker without importing a
// concrete payload type.
type WorkerExecutor interface {
	Execute(ctx context.Context, job Job, payload json.RawMessage) Result
	Spec() WorkerSpec
}

type typedWorker[P any, T Handler[P]] struct {
	task T
	s    WorkerSpec
}

func (w *typedWorker[P, T]) Execute(ctx context.Context, job Job, raw json.RawMessage) Result {
	var payload P
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Err(errors.Join(ErrInvalidPayload, err))
		}
	}
	return Normalize(w.task.Handle(ctx, job, payload))
}

func (w *typedWorker[P, T]) Spec() WorkerSpec { return w.s }
