// Package isolation runs CPU-bound or untrusted worker handlers in a
// pool of subprocesses rather than inline in the dispatcher's goroutine.
// Go's goroutines share one address space and cannot be forcibly
// terminated, so isolation here means a separate OS process: the same
// binary re-executed with EnvVar set, communicating over stdin/stdout
// with newline-delimited JSON. See DESIGN.md for why this is the one
// subsystem grounded directly on the standard library rather than a
// third-party package from the example corpus.
package isolation

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/id"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
	"github.com/iagocavalcante/izi-queue/pkg/telemetry"
)

// EnvVar, when set to "1" in a process's environment, tells that
// process to run as an isolation worker (see Main) instead of its
// normal host entrypoint.
const EnvVar = "IZI_ISOLATION_WORKER"

// DefaultIdleTimeout is spec.md §4.6's 30s default.
const DefaultIdleTimeout = 30 * time.Second

// ErrPoolClosed is returned by Execute after Shutdown.
var ErrPoolClosed = errors.New("isolation: pool closed")

// Config configures a Pool.
type Config struct {
	MinContexts int
	MaxContexts int
	IdleTimeout time.Duration
}

type workerContext struct {
	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Scanner
	workerPath string
	lastUsed   time.Time
	// id identifies this subprocess across its spawn/kill log lines and
	// the thread:spawn/thread:exit telemetry pair, since a reused
	// workerContext outlives any single job's own id.
	id string
}

// Pool manages a bounded set of subprocess execution contexts, one per
// (at most) maxContexts concurrently running isolated job.
type Pool struct {
	cfg    Config
	binary string
	bus    *telemetry.Bus
	log    *slog.Logger

	mu    sync.Mutex
	idle  map[string][]*workerContext
	all   map[*workerContext]struct{}
	total int

	closed   bool
	reapStop chan struct{}
	reapDone chan struct{}
}

// NewPool creates a Pool. The host binary itself is re-exec'd as the
// subprocess: callers must arrange for their main() to call Main before
// doing anything else when EnvVar is set.
func NewPool(cfg Config, bus *telemetry.Bus, log *slog.Logger) *Pool {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxContexts <= 0 {
		cfg.MaxContexts = 4
	}
	if log == nil {
		log = slog.Default()
	}
	binary, err := os.Executable()
	if err != nil {
		binary = os.Args[0]
	}
	p := &Pool{
		cfg:      cfg,
		binary:   binary,
		bus:      bus,
		log:      log,
		idle:     make(map[string][]*workerContext),
		all:      make(map[*workerContext]struct{}),
		reapStop: make(chan struct{}),
		reapDone: make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// Execute satisfies pkg/executor.Isolator: it acquires a context bound
// to spec.WorkerPath, round-trips job to it, and enforces timeout with
// a forced kill — no grace period, per spec.md §4.6.
func (p *Pool) Execute(ctx context.Context, spec jobqueue.IsolationSpec, job jobqueue.Job, timeout time.Duration) jobqueue.Result {
	wc, err := p.acquire(ctx, spec)
	if err != nil {
		return jobqueue.Err(fmt.Errorf("isolation: acquire context: %w", err))
	}
	p.bus.Emit(telemetry.Event{Name: telemetry.ThreadSpawn, Job: &job, Extra: map[string]any{"context_id": wc.id}})
	p.bus.Emit(telemetry.Event{Name: telemetry.JobIsolatedStart, Job: &job})

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		resp wireResponse
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		resp, err := wc.send(job)
		ch <- outcome{resp, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			p.kill(wc)
			return jobqueue.Err(fmt.Errorf("isolation: %w", o.err))
		}
		p.release(spec.WorkerPath, wc)
		p.bus.Emit(telemetry.Event{Name: telemetry.ThreadExit, Job: &job, Extra: map[string]any{"context_id": wc.id}})
		return o.resp.toResult()
	case <-runCtx.Done():
		p.kill(wc)
		p.bus.Emit(telemetry.Event{Name: telemetry.JobIsolatedTimeout, Job: &job})
		return jobqueue.Err(fmt.Errorf("timed out after %dms", timeout.Milliseconds()))
	}
}

// acquireWait bounds how long acquire retries for a context to free up
// once the pool is at MaxContexts, per spec.md §4.6's "fail the job with
// error(\"no available worker contexts\")" — the pool fails fast on its
// own schedule rather than riding the caller's context deadline.
const acquireWait = 200 * time.Millisecond

func (p *Pool) acquire(ctx context.Context, spec jobqueue.IsolationSpec) (*workerContext, error) {
	deadline := time.NewTimer(acquireWait)
	defer deadline.Stop()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if list := p.idle[spec.WorkerPath]; len(list) > 0 {
			wc := list[len(list)-1]
			p.idle[spec.WorkerPath] = list[:len(list)-1]
			p.mu.Unlock()
			return wc, nil
		}
		if p.total < p.cfg.MaxContexts {
			p.total++
			p.mu.Unlock()
			wc, err := p.spawn(spec)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, err
			}
			p.mu.Lock()
			p.all[wc] = struct{}{}
			p.mu.Unlock()
			return wc, nil
		}
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrNoAvailableContexts
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (p *Pool) spawn(spec jobqueue.IsolationSpec) (*workerContext, error) {
	cmd := exec.Command(p.binary, spec.WorkerPath)
	cmd.Env = append(os.Environ(), EnvVar+"=1")
	cmd.Stderr = os.Stderr
	applyResourceLimits(cmd, spec.ResourceLimits, p.log)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	wcID := id.NewShortID()
	p.log.Debug("isolation context spawned", "context_id", wcID, "worker_path", spec.WorkerPath, "pid", cmd.Process.Pid)
	return &workerContext{
		cmd:        cmd,
		stdin:      stdin,
		stdout:     bufio.NewScanner(stdout),
		workerPath: spec.WorkerPath,
		lastUsed:   time.Now(),
		id:         wcID,
	}, nil
}

func (p *Pool) release(workerPath string, wc *workerContext) {
	wc.lastUsed = time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.killLocked(wc)
		return
	}
	p.idle[workerPath] = append(p.idle[workerPath], wc)
}

func (p *Pool) kill(wc *workerContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killLocked(wc)
}

// killLocked must be called with p.mu held.
func (p *Pool) killLocked(wc *workerContext) {
	p.log.Debug("isolation context killed", "context_id", wc.id, "worker_path", wc.workerPath)
	_ = wc.cmd.Process.Kill()
	go func() { _ = wc.cmd.Wait() }()
	delete(p.all, wc)
	p.total--
	list := p.idle[wc.workerPath]
	for i, c := range list {
		if c == wc {
			p.idle[wc.workerPath] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func (p *Pool) reapLoop() {
	defer close(p.reapDone)
	ticker := time.NewTicker(p.cfg.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.reapStop:
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

func (p *Pool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)
	for path, list := range p.idle {
		var keep []*workerContext
		for _, wc := range list {
			if p.total <= p.cfg.MinContexts {
				keep = append(keep, wc)
				continue
			}
			if wc.lastUsed.Before(cutoff) {
				p.killLocked(wc)
				continue
			}
			keep = append(keep, wc)
		}
		p.idle[path] = keep
	}
}

// Shutdown kills every subprocess context, idle or in-flight, and stops
// the idle reaper. In-flight Execute calls observe their subprocess die
// and return an error outcome for that job; no new jobs are accepted.
func (p *Pool) Shutdown(_ context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for wc := range p.all {
		p.killLocked(wc)
	}
	p.mu.Unlock()

	close(p.reapStop)
	<-p.reapDone
	return nil
}
