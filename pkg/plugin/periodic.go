package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/telemetry"
)

// action is the work a periodic loop performs on each tick: it returns
// a count used to decide whether to emit telemetry, and an error which
// the loop logs and reports as plugin:error without stopping the loop,
// per spec.md §4.5's "MUST catch its own exceptions."
type action func(ctx context.Context) (int, error)

// periodic runs action immediately and then on every tick of interval,
// until Stop is called. It is the one implementation shared by Stager,
// Rescuer, and Pruner.
type periodic struct {
	name     string
	interval time.Duration
	action   action
	onResult func(count int)
	bus      *telemetry.Bus
	log      *slog.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newPeriodic(name string, interval time.Duration, act action, onResult func(int), bus *telemetry.Bus, log *slog.Logger) *periodic {
	if log == nil {
		log = slog.Default()
	}
	return &periodic{name: name, interval: interval, action: act, onResult: onResult, bus: bus, log: log}
}

func (p *periodic) Name() string { return p.name }

func (p *periodic) Validate() []error { return nil }

func (p *periodic) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(runCtx)
	p.bus.Emit(telemetry.Event{Name: telemetry.PluginStart, Extra: map[string]any{"plugin": p.name}})
	return nil
}

func (p *periodic) Stop() error {
	if !p.running.CompareAndSwap(true, false) {
		return ErrNotStarted
	}
	p.cancel()
	<-p.done
	p.bus.Emit(telemetry.Event{Name: telemetry.PluginStop, Extra: map[string]any{"plugin": p.name}})
	return nil
}

func (p *periodic) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *periodic) tick(ctx context.Context) {
	count, err := p.action(ctx)
	if err != nil {
		p.log.Error("plugin action failed", "plugin", p.name, "err", err)
		p.bus.Emit(telemetry.Event{Name: telemetry.PluginError, Err: fmt.Errorf("%s: %w", p.name, err)})
		return
	}
	if count > 0 && p.onResult != nil {
		p.onResult(count)
	}
}
