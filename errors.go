package iziqueue

import "errors"

// Sentinel errors returned by Orchestrator methods.
var (
	// ErrAlreadyStarted is returned by Start on an Orchestrator already running.
	ErrAlreadyStarted = errors.New("iziqueue: already started")
	// ErrNotStarted is returned by Stop on an Orchestrator that is not
	// running. Shutdown ignores it.
	ErrNotStarted = errors.New("iziqueue: not started")
	// ErrUnknownQueue is returned by PauseQueue/ResumeQueue/ScaleQueue/GetQueueStatus
	// for a queue name that was never configured.
	ErrUnknownQueue = errors.New("iziqueue: unknown queue")
)
