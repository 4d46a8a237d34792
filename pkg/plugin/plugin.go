// Package plugin implements the three periodic background loops: the
// Stager, Rescuer, and Pruner. All three share one ticking action loop
// (periodic.go), grounded on the teacher corpus's internal.TimerTask:
// run the action once immediately, then again on every tick until
// stopped.
package plugin

import (
	"context"
	"errors"
)

// Plugin is the shared contract for a background loop: a name for
// diagnostics, a start/stop lifecycle, and an optional pre-start
// validation pass.
type Plugin interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	// Validate reports configuration errors that should prevent the
	// orchestrator from starting. Most plugins have nothing to check
	// and return nil.
	Validate() []error
}

// ErrAlreadyStarted is returned by Start on a plugin already running.
var ErrAlreadyStarted = errors.New("plugin: already started")

// ErrNotStarted is returned by Stop on a plugin that was never started.
var ErrNotStarted = errors.New("plugin: not started")
