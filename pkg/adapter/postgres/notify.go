package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	notifyChannel       = "izi_jobs_insert"
	listenMaxReconnects = 10
	listenMaxBackoff    = 30 * time.Second
)

type notifyPayload struct {
	Queue string `json:"queue"`
}

// Notify broadcasts queue to every Listen subscriber, in this process or
// another, via pg_notify. The payload is JSON {"queue": "<name>"} per the
// izi_jobs_insert channel contract, not a bare string.
func (a *Adapter) Notify(ctx context.Context, queue string) error {
	payload, err := json.Marshal(notifyPayload{Queue: queue})
	if err != nil {
		return fmt.Errorf("postgres: notify: marshal payload: %w", err)
	}
	if _, err := a.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("postgres: notify: %w", err)
	}
	return nil
}

// Listen acquires a dedicated connection, issues LISTEN, and invokes
// callback with the queue name for every notification received, for as
// long as ctx is live. If the connection drops it reconnects with
// exponential backoff, up to listenMaxReconnects attempts, before giving
// up and returning an error; callers that want listening to survive
// indefinitely should re-call Listen from their own retry loop.
func (a *Adapter) Listen(ctx context.Context, callback func(queue string)) error {
	attempt := 0
	for {
		conn, err := a.pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("postgres: listen: acquire: %w", err)
		}
		if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
			conn.Release()
			return fmt.Errorf("postgres: listen: %w", err)
		}

		lost := make(chan struct{})
		go func() {
			defer close(lost)
			defer conn.Release()
			for {
				n, err := conn.Conn().WaitForNotification(ctx)
				if err != nil {
					return
				}
				attempt = 0
				var p notifyPayload
				if err := json.Unmarshal([]byte(n.Payload), &p); err != nil {
					continue
				}
				callback(p.Queue)
			}
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-lost:
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempt++
		if attempt > listenMaxReconnects {
			return fmt.Errorf("postgres: listen: exceeded %d reconnect attempts", listenMaxReconnects)
		}
		backoff := time.Second << (attempt - 1)
		if backoff > listenMaxBackoff {
			backoff = listenMaxBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
