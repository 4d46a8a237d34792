package plugin

import (
	"context"
	"log/slog"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/telemetry"
)

// Defaults from spec.md §4.5.
const (
	DefaultPrunerInterval = 60 * time.Second
	DefaultMaxAge         = 24 * time.Hour
)

// NewPruner creates the plugin that deletes old terminal jobs, emitting
// job:complete (queue "pruner") whenever it deletes at least one row.
func NewPruner(interval, maxAge time.Duration, store adapter.Adapter, bus *telemetry.Bus, log *slog.Logger) Plugin {
	if interval <= 0 {
		interval = DefaultPrunerInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	act := func(ctx context.Context) (int, error) {
		return store.PruneJobs(ctx, maxAge)
	}
	onResult := func(count int) {
		bus.Emit(telemetry.Event{
			Name:  telemetry.JobComplete,
			Queue: "pruner",
			Count: count,
			Extra: map[string]any{"maxAge": maxAge},
		})
	}
	return newPeriodic("pruner", interval, act, onResult, bus, log)
}
