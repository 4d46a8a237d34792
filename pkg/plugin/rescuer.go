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
	DefaultRescuerInterval = 60 * time.Second
	DefaultRescueAfter     = 300 * time.Second
)

// NewRescuer creates the plugin that returns stuck executing jobs to
// available, emitting job:rescue whenever it moves at least one row.
func NewRescuer(interval, rescueAfter time.Duration, store adapter.Adapter, bus *telemetry.Bus, log *slog.Logger) Plugin {
	if interval <= 0 {
		interval = DefaultRescuerInterval
	}
	if rescueAfter <= 0 {
		rescueAfter = DefaultRescueAfter
	}
	act := func(ctx context.Context) (int, error) {
		return store.RescueStuckJobs(ctx, rescueAfter)
	}
	onResult := func(count int) {
		bus.Emit(telemetry.Event{
			Name:  telemetry.JobRescue,
			Count: count,
			Extra: map[string]any{"rescueAfter": rescueAfter},
		})
	}
	return newPeriodic("rescuer", interval, act, onResult, bus, log)
}
