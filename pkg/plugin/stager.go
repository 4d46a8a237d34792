package plugin

import (
	"context"
	"log/slog"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/telemetry"
)

// DefaultStagerInterval is spec.md §4.5's 1s default.
const DefaultStagerInterval = time.Second

// NewStager creates the always-on plugin that promotes due scheduled
// jobs to available and wakes every dispatcher when it does. wake is
// called once per tick that staged at least one job, not once per job.
func NewStager(interval time.Duration, store adapter.Adapter, bus *telemetry.Bus, wake func(), log *slog.Logger) Plugin {
	if interval <= 0 {
		interval = DefaultStagerInterval
	}
	act := func(ctx context.Context) (int, error) {
		return store.StageJobs(ctx)
	}
	onResult := func(count int) {
		if wake != nil {
			wake()
		}
	}
	return newPeriodic("stager", interval, act, onResult, bus, log)
}
