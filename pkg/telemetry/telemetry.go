// Package telemetry is the orchestrator's in-process event bus: job
// lifecycle, queue lifecycle, and plugin lifecycle events, each
// delivered to both exact-name and wildcard subscribers.
package telemetry

import (
	"sync"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// Event names, matching spec.md §4.8 exactly.
const (
	JobStart           = "job:start"
	JobComplete        = "job:complete"
	JobError           = "job:error"
	JobCancel          = "job:cancel"
	JobSnooze          = "job:snooze"
	JobRescue          = "job:rescue"
	JobUniqueConflict  = "job:unique_conflict"
	JobIsolatedStart   = "job:isolated:start"
	JobIsolatedTimeout = "job:isolated:timeout"
	QueueStart         = "queue:start"
	QueueStop          = "queue:stop"
	QueuePause         = "queue:pause"
	QueueResume        = "queue:resume"
	ThreadSpawn        = "thread:spawn"
	ThreadExit         = "thread:exit"
	PluginStart        = "plugin:start"
	PluginStop         = "plugin:stop"
	PluginError        = "plugin:error"

	// Wildcard matches every event name.
	Wildcard = "*"
)

// Event is the payload delivered to a Handler. Name and Timestamp are
// always set; the remaining fields are populated only when relevant to
// the event, per spec.md §4.8.
type Event struct {
	Timestamp time.Time
	Name      string
	Queue     string
	Job       *jobqueue.Job
	Err       error
	Result    string
	Duration  time.Duration
	Count     int
	Extra     map[string]any
}

// Handler receives emitted events. A Handler must not panic; if it
// does, Bus recovers and drops the panic rather than letting it
// propagate to the emitter, per spec.md §4.8's "handler exceptions MUST
// be swallowed."
type Handler func(Event)

type subscription struct {
	fn   Handler
	once bool
	id   uint64
}

// Bus is a process-local, synchronous pub/sub. Emit calls every matching
// handler on the calling goroutine; a slow handler delays emission.
// Handlers that need to do blocking work should hand off to their own
// goroutine.
type Bus struct {
	mu      sync.Mutex
	subs    map[string][]*subscription
	nextID  uint64
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

// On subscribes fn to event (an exact name or Wildcard), returning an
// unsubscribe function.
func (b *Bus) On(event string, fn Handler) (unsubscribe func()) {
	return b.subscribe(event, fn, false)
}

// Once subscribes fn to event; fn is automatically unsubscribed after
// its first invocation.
func (b *Bus) Once(event string, fn Handler) (unsubscribe func()) {
	return b.subscribe(event, fn, true)
}

func (b *Bus) subscribe(event string, fn Handler, once bool) func() {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{fn: fn, once: once, id: b.nextID}
	b.subs[event] = append(b.subs[event], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[event]
		for i, s := range list {
			if s.id == sub.id {
				b.subs[event] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// Emit delivers ev to every subscriber of ev.Name and every wildcard
// subscriber. ev.Timestamp is stamped with time.Now if unset.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.Lock()
	matched := append(append([]*subscription{}, b.subs[ev.Name]...), b.subs[Wildcard]...)
	var onceIDs map[uint64]bool
	for _, s := range matched {
		if s.once {
			if onceIDs == nil {
				onceIDs = make(map[uint64]bool)
			}
			onceIDs[s.id] = true
		}
	}
	if len(onceIDs) > 0 {
		b.subs[ev.Name] = removeIDs(b.subs[ev.Name], onceIDs)
		b.subs[Wildcard] = removeIDs(b.subs[Wildcard], onceIDs)
	}
	b.mu.Unlock()

	for _, s := range matched {
		invoke(s.fn, ev)
	}
}

func removeIDs(list []*subscription, ids map[uint64]bool) []*subscription {
	out := list[:0:0]
	for _, s := range list {
		if !ids[s.id] {
			out = append(out, s)
		}
	}
	return out
}

func invoke(fn Handler, ev Event) {
	defer func() { _ = recover() }()
	fn(ev)
}
