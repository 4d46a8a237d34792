// Package memadapter is an in-memory Adapter implementation used by the
// dispatcher, executor, and plugin test suites in place of a live
// database. It is not a fourth shipped storage engine: it exists purely
// so those packages can exercise the same fetch-and-claim, staging,
// rescue, prune, and uniqueness semantics as the SQL adapters without a
// database connection. Its FetchJobs algorithm mirrors the
// select-then-update-under-lock shape used by the SQL adapters'
// transactional claim, translated from a SQL WHERE/ORDER BY/LIMIT
// clause to an equivalent scan over an in-memory map guarded by a mutex.
package memadapter

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// Adapter is a mutex-guarded map of jobqueue.Job keyed by id, plus a
// registered set of Listen callbacks invoked synchronously by Notify.
type Adapter struct {
	mu       sync.Mutex
	jobs     map[int64]jobqueue.Job
	nextID   int64
	closed   bool
	watchers []func(queue string)
	now      func() time.Time
}

// New creates an empty in-memory adapter. nowFn defaults to time.Now if
// nil; tests that need deterministic timestamps can override it.
func New(nowFn func() time.Time) *Adapter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Adapter{jobs: make(map[int64]jobqueue.Job), now: nowFn}
}

var _ adapter.Adapter = (*Adapter)(nil)

// Migrate is a no-op: there is no schema to version in memory.
func (a *Adapter) Migrate(_ context.Context) error { return nil }

// Rollback is a no-op for the same reason as Migrate.
func (a *Adapter) Rollback(_ context.Context, _ int64) error { return nil }

func (a *Adapter) InsertJob(_ context.Context, j jobqueue.Job) (jobqueue.Job, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return jobqueue.Job{}, adapter.ErrClosed
	}
	a.nextID++
	j.ID = a.nextID
	j.InsertedAt = a.now()
	if j.State == "" {
		j.State = jobqueue.InitialState(j.ScheduledAt, j.InsertedAt)
	}
	a.jobs[j.ID] = j
	return j, nil
}

func (a *Adapter) GetJob(_ context.Context, id int64) (*jobqueue.Job, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := j
	return &cp, nil
}

func (a *Adapter) UpdateJob(_ context.Context, id int64, partial adapter.JobUpdate) (*jobqueue.Job, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[id]
	if !ok {
		return nil, nil
	}
	applyUpdate(&j, partial)
	a.jobs[id] = j
	cp := j
	return &cp, nil
}

func applyUpdate(j *jobqueue.Job, partial adapter.JobUpdate) {
	if partial.State != nil {
		j.State = *partial.State
	}
	if partial.ScheduledAt != nil {
		j.ScheduledAt = *partial.ScheduledAt
	}
	if partial.AttemptedAt != nil {
		j.AttemptedAt = partial.AttemptedAt
	}
	if partial.CompletedAt != nil {
		j.CompletedAt = partial.CompletedAt
	}
	if partial.DiscardedAt != nil {
		j.DiscardedAt = partial.DiscardedAt
	}
	if partial.CancelledAt != nil {
		j.CancelledAt = partial.CancelledAt
	}
	if partial.Attempt != nil {
		j.Attempt = *partial.Attempt
	}
	if partial.AppendError != nil {
		j.Errors = append(j.Errors, *partial.AppendError)
	}
	if partial.Meta != nil {
		j.Meta = partial.Meta
	}
}

// FetchJobs claims up to limit available, due rows from queue in
// priority ASC, scheduled_at ASC, id ASC order, exactly as spec.md §4.1
// requires of the SQL adapters. The whole scan-and-mutate runs under a.mu,
// which plays the role of the claiming transaction's row locks.
func (a *Adapter) FetchJobs(_ context.Context, queue string, limit int) ([]jobqueue.Job, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, adapter.ErrClosed
	}
	now := a.now()
	var candidates []jobqueue.Job
	for _, j := range a.jobs {
		if j.Queue == queue && j.State == jobqueue.StateAvailable && !j.ScheduledAt.After(now) {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority < candidates[k].Priority
		}
		if !candidates[i].ScheduledAt.Equal(candidates[k].ScheduledAt) {
			return candidates[i].ScheduledAt.Before(candidates[k].ScheduledAt)
		}
		return candidates[i].ID < candidates[k].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	claimed := make([]jobqueue.Job, 0, len(candidates))
	for _, j := range candidates {
		j.State = jobqueue.StateExecuting
		attemptedAt := now
		j.AttemptedAt = &attemptedAt
		j.Attempt++
		a.jobs[j.ID] = j
		claimed = append(claimed, j)
	}
	return claimed, nil
}

func (a *Adapter) StageJobs(_ context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	count := 0
	for id, j := range a.jobs {
		if (j.State == jobqueue.StateScheduled || j.State == jobqueue.StateRetryable) && !j.ScheduledAt.After(now) {
			j.State = jobqueue.StateAvailable
			a.jobs[id] = j
			count++
		}
	}
	return count, nil
}

func (a *Adapter) CancelJobs(_ context.Context, filter adapter.CancelFilter) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	count := 0
	for id, j := range a.jobs {
		if j.State.Terminal() {
			continue
		}
		if filter.Queue != "" && j.Queue != filter.Queue {
			continue
		}
		if filter.Worker != "" && j.Worker != filter.Worker {
			continue
		}
		if filter.State != "" && j.State != filter.State {
			continue
		}
		j.State = jobqueue.StateCancelled
		cancelledAt := now
		j.CancelledAt = &cancelledAt
		a.jobs[id] = j
		count++
	}
	return count, nil
}

func (a *Adapter) RescueStuckJobs(_ context.Context, after time.Duration) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	cutoff := now.Add(-after)
	count := 0
	for id, j := range a.jobs {
		if j.State != jobqueue.StateExecuting {
			continue
		}
		if j.AttemptedAt == nil || !j.AttemptedAt.Before(cutoff) {
			continue
		}
		j.State = jobqueue.StateAvailable
		j.ScheduledAt = now
		a.jobs[id] = j
		count++
	}
	return count, nil
}

func (a *Adapter) PruneJobs(_ context.Context, maxAge time.Duration) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	cutoff := now.Add(-maxAge)
	count := 0
	for id, j := range a.jobs {
		if !j.State.Terminal() {
			continue
		}
		ts := terminalTimestamp(j)
		if ts == nil || ts.Before(cutoff) {
			delete(a.jobs, id)
			count++
		}
	}
	return count, nil
}

func terminalTimestamp(j jobqueue.Job) *time.Time {
	switch {
	case j.CompletedAt != nil:
		return j.CompletedAt
	case j.DiscardedAt != nil:
		return j.DiscardedAt
	case j.CancelledAt != nil:
		return j.CancelledAt
	default:
		return nil
	}
}

func (a *Adapter) CheckUnique(_ context.Context, opts adapter.UniqueOptions, job jobqueue.Job) (*jobqueue.Job, error) {
	opts = opts.Defaults()
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for _, j := range a.jobs {
		if !stateIn(j.State, opts.States) {
			continue
		}
		if !opts.Infinite && !j.InsertedAt.After(now.Add(-opts.Period)) {
			continue
		}
		if opts.HasField("worker") && j.Worker != job.Worker {
			continue
		}
		if opts.HasField("queue") && j.Queue != job.Queue {
			continue
		}
		if opts.HasField("args") && !argsMatch(opts.Keys, j.Args, job.Args) {
			continue
		}
		cp := j
		return &cp, nil
	}
	return nil, nil
}

func stateIn(s jobqueue.State, states []jobqueue.State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func argsMatch(keys []string, a, b json.RawMessage) bool {
	if len(keys) == 0 {
		return canonicalEqual(a, b)
	}
	var ma, mb map[string]any
	_ = json.Unmarshal(a, &ma)
	_ = json.Unmarshal(b, &mb)
	for _, k := range keys {
		va, oka := ma[k]
		vb, okb := mb[k]
		if oka != okb {
			return false
		}
		if !oka {
			continue
		}
		aj, _ := json.Marshal(va)
		bj, _ := json.Marshal(vb)
		if string(aj) != string(bj) {
			return false
		}
	}
	return true
}

func canonicalEqual(a, b json.RawMessage) bool {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return string(a) == string(b)
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return string(a) == string(b)
	}
	ca, _ := json.Marshal(va)
	cb, _ := json.Marshal(vb)
	return string(ca) == string(cb)
}

// Listen registers callback to be invoked, synchronously and
// in-process, on every subsequent Notify call. There is no reconnect
// logic to model here: the in-memory fixture never disconnects.
func (a *Adapter) Listen(_ context.Context, callback func(queue string)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watchers = append(a.watchers, callback)
	return nil
}

// Notify invokes every registered watcher with queue.
func (a *Adapter) Notify(_ context.Context, queue string) error {
	a.mu.Lock()
	watchers := append([]func(string){}, a.watchers...)
	a.mu.Unlock()
	for _, w := range watchers {
		w(queue)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
