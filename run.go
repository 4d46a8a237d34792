package iziqueue

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/dispatcher"
	"github.com/iagocavalcante/izi-queue/pkg/plugin"
)

// Start constructs one Dispatcher per configured queue, installs the
// listen callback that wakes the matching dispatcher on Notify, and
// starts the stager (always on), rescuer, pruner, and every dispatcher
// concurrently. Returns ErrAlreadyStarted if called twice without an
// intervening Shutdown.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.running = true
	o.runDone = make(chan struct{})
	for name, cfg := range o.queueCfgs {
		o.queues[name] = dispatcher.New(dispatcher.Config{
			Queue:        name,
			Limit:        cfg.Limit,
			PollInterval: cfg.PollInterval,
			Paused:       cfg.Paused,
		}, o.store, o.registry, o.bus, o.iso, o.log)
	}
	o.mu.Unlock()

	o.stager = plugin.NewStager(o.stagerInterval, o.store, o.bus, o.wakeAll, o.log)
	o.rescuer = plugin.NewRescuer(o.rescuerInterval, o.rescueAfter, o.store, o.bus, o.log)
	o.pruner = plugin.NewPruner(o.prunerInterval, o.pruneMaxAge, o.store, o.bus, o.log)

	var cfgErrs []error
	for _, p := range []plugin.Plugin{o.stager, o.rescuer, o.pruner} {
		cfgErrs = append(cfgErrs, p.Validate()...)
	}
	if err := errors.Join(cfgErrs...); err != nil {
		return err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	o.listenStop = cancel
	o.startListeners(listenCtx)

	if err := o.stager.Start(ctx); err != nil {
		return err
	}
	if err := o.rescuer.Start(ctx); err != nil {
		return err
	}
	if err := o.pruner.Start(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	queues := make([]*dispatcher.Dispatcher, 0, len(o.queues))
	for _, d := range o.queues {
		queues = append(queues, d)
	}
	o.mu.Unlock()
	for _, d := range queues {
		if err := d.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// wakeAll is passed to the Stager so a tick that stages at least one job
// wakes every dispatcher immediately rather than waiting for its next
// poll tick.
func (o *Orchestrator) wakeAll() {
	o.mu.Lock()
	queues := make([]*dispatcher.Dispatcher, 0, len(o.queues))
	for _, d := range o.queues {
		queues = append(queues, d)
	}
	o.mu.Unlock()
	for _, d := range queues {
		d.Dispatch()
	}
}

// startListeners wires both the adapter's native pub/sub (if it
// supports one) and the optional external notifier to wake the matching
// dispatcher on insert, per spec.md §6.2's routing rule.
func (o *Orchestrator) startListeners(ctx context.Context) {
	wake := func(queue string) {
		o.mu.Lock()
		d, ok := o.queues[queue]
		o.mu.Unlock()
		if ok {
			d.Dispatch()
		}
	}

	go func() {
		if err := o.store.Listen(ctx, wake); err != nil && ctx.Err() == nil {
			o.log.Debug("adapter listen unavailable, relying on poll interval", "err", err)
		}
	}()

	if o.notifier != nil {
		go func() {
			if err := o.notifier.Listen(ctx, wake); err != nil && ctx.Err() == nil {
				o.log.Error("notifier listen failed", "err", err)
			}
		}()
	}
}

// Stop stops every dispatcher and background plugin, waiting up to grace
// for in-flight executions to finish. Unlike Shutdown, Stop does not run
// shutdown hooks or close the adapter, so the Orchestrator can, in
// principle, be started again against the same store.
func (o *Orchestrator) Stop(ctx context.Context, grace time.Duration) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotStarted
	}
	queues := make([]*dispatcher.Dispatcher, 0, len(o.queues))
	for _, d := range o.queues {
		queues = append(queues, d)
	}
	o.running = false
	done := o.runDone
	o.mu.Unlock()
	if done != nil {
		close(done)
	}

	if o.listenStop != nil {
		o.listenStop()
	}

	var errs []error
	for _, d := range queues {
		if err := d.Stop(grace); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range []plugin.Plugin{o.stager, o.rescuer, o.pruner} {
		if p == nil {
			continue
		}
		if err := p.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops everything Stop does, then runs every registered
// shutdown hook (in registration order, collecting failures rather than
// aborting early) and closes the adapter. ctx bounds the whole sequence;
// Shutdown additionally enforces its own shutdownTimeout if ctx carries
// no deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.shutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := o.Stop(ctx, o.shutdownTimeout); err != nil && !errors.Is(err, ErrNotStarted) {
		errs = append(errs, err)
	}

	for _, hook := range o.shutdownHooks {
		if err := hook(ctx); err != nil {
			errs = append(errs, err)
			o.log.Error("shutdown hook failed", "err", err)
		}
	}

	if err := o.store.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Run starts the Orchestrator and blocks until the base context is
// cancelled, SIGINT/SIGTERM is received, or Shutdown is called from
// elsewhere, then runs a graceful Shutdown. It is the blocking
// counterpart to Start for processes whose entire job is to run the
// queue, grounded on forge's own signal-aware App.Run.
func (o *Orchestrator) Run(ctx context.Context) error {
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := o.Start(sigCtx); err != nil {
		return err
	}

	o.mu.Lock()
	done := o.runDone
	o.mu.Unlock()

	o.log.Info("iziqueue: running", "queues", len(o.queueCfgs))
	select {
	case <-sigCtx.Done():
	case <-done:
		return nil
	}
	o.log.Info("iziqueue: shutting down")

	return o.Shutdown(context.Background())
}
