package iziqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/cache"
	"github.com/iagocavalcante/izi-queue/pkg/executor"
	"github.com/iagocavalcante/izi-queue/pkg/health"
)

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithContext sets the base context used for Run's signal handling.
// Defaults to context.Background().
func WithContext(ctx context.Context) Option {
	return func(o *Orchestrator) {
		if ctx != nil {
			o.baseCtx = ctx
		}
	}
}

// WithLogger sets the structured logger used throughout the
// Orchestrator and every dispatcher/plugin it wires.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithQueue adds one queue to the Orchestrator's dispatcher set.
// Registering the same name twice keeps only the last configuration.
func WithQueue(cfg QueueConfig) Option {
	return func(o *Orchestrator) {
		if cfg.Limit <= 0 {
			cfg.Limit = defaultQueueLimit
		}
		o.queueCfgs[cfg.Name] = cfg
	}
}

// WithQueues adds every cfg to the Orchestrator's dispatcher set.
func WithQueues(cfgs ...QueueConfig) Option {
	return func(o *Orchestrator) {
		for _, cfg := range cfgs {
			WithQueue(cfg)(o)
		}
	}
}

// WithIsolationPool wires an isolation pool (typically *isolation.Pool)
// so workers registered with jobqueue.WithIsolation run in it instead of
// inline. Leaving this unset is fine as long as no registered worker
// requests isolation.
func WithIsolationPool(p executor.Isolator) Option {
	return func(o *Orchestrator) { o.iso = p }
}

// WithNotifier pairs the Orchestrator with a cross-process pub/sub
// notifier (pkg/notifier/redis, typically) for adapters with no native
// LISTEN/NOTIFY, per spec.md §6.2. Purely a latency optimization: the
// Orchestrator still falls back to polling and the Stager's
// broadcast-on-stage without one.
func WithNotifier(n adapter.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithUniqueCache installs a fast-path existence cache consulted before
// CheckUnique hits the database, per spec.md §4.7a. Strictly an
// optimization: every cache hit is re-validated against the adapter.
func WithUniqueCache(c cache.Cache[int64]) Option {
	return func(o *Orchestrator) { o.uniqueCache = c }
}

// WithStagerInterval overrides the Stager's poll interval (default 1s).
func WithStagerInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.stagerInterval = d }
}

// WithRescuer overrides the Rescuer's poll interval and stuck-after
// threshold (defaults 60s / 300s).
func WithRescuer(interval, after time.Duration) Option {
	return func(o *Orchestrator) {
		o.rescuerInterval = interval
		o.rescueAfter = after
	}
}

// WithPruner overrides the Pruner's poll interval and max terminal-job
// age (defaults 60s / 24h).
func WithPruner(interval, maxAge time.Duration) Option {
	return func(o *Orchestrator) {
		o.prunerInterval = interval
		o.pruneMaxAge = maxAge
	}
}

// WithShutdownTimeout bounds how long Shutdown waits for in-flight
// executions and registered hooks before giving up. Default 30s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithShutdownHook appends fn to the list run during Shutdown, after
// every dispatcher and plugin has stopped. Hooks run in registration
// order; failures are collected with errors.Join rather than aborting
// the remaining hooks.
func WithShutdownHook(fn func(context.Context) error) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.shutdownHooks = append(o.shutdownHooks, fn)
		}
	}
}

// WithHealthChecks registers named checks (e.g. a database ping, a
// Redis ping) consulted by Healthcheck. Orchestrator adds its own
// "adapter" check automatically; checks here are merged alongside it.
func WithHealthChecks(checks health.Checks) Option {
	return func(o *Orchestrator) {
		if o.healthChecks == nil {
			o.healthChecks = make(health.Checks)
		}
		for name, fn := range checks {
			o.healthChecks[name] = fn
		}
	}
}
