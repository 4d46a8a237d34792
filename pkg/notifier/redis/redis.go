// Package redis implements adapter.Notifier on top of Redis pub/sub, for
// pairing with storage backends that have no native LISTEN/NOTIFY
// equivalent (MySQL, SQLite). Queue wakeup becomes cross-process the same
// way Postgres's LISTEN/NOTIFY makes it cross-process: a dispatcher still
// polls on its own interval as a fallback, but a Notify call elsewhere
// wakes every subscribed dispatcher immediately instead of waiting out
// the poll interval.
package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
)

const channelPrefix = "izi-queue:notify:"

var _ adapter.Notifier = (*Notifier)(nil)

// Notifier implements adapter.Notifier using a Redis pub/sub channel per
// queue name.
type Notifier struct {
	client goredis.UniversalClient
	log    *slog.Logger
}

// New wraps an already-connected client (see pkg/redis.Open) as a
// Notifier.
func New(client goredis.UniversalClient, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{client: client, log: log}
}

// Notify publishes a wakeup message for queue. Subscribers still re-check
// the database themselves on receipt: the message carries no payload
// beyond "something changed," mirroring Postgres's pg_notify semantics.
func (n *Notifier) Notify(ctx context.Context, queue string) error {
	return n.client.Publish(ctx, channelPrefix+queue, "1").Err()
}

// Listen subscribes to every queue's channel via a single pattern
// subscription and invokes callback with the queue name on each message,
// until ctx is cancelled. Listen blocks; call it from its own goroutine.
func (n *Notifier) Listen(ctx context.Context, callback func(queue string)) error {
	sub := n.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			queue := msg.Channel[len(channelPrefix):]
			callback(queue)
		}
	}
}

// ListenQueue subscribes to a single queue's channel, for callers that
// already know which queue they care about and want to avoid the
// pattern-subscription overhead of Listen.
func (n *Notifier) ListenQueue(ctx context.Context, queue string, callback func()) error {
	sub := n.client.Subscribe(ctx, channelPrefix+queue)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			callback()
		}
	}
}

// ListenWithReconnect wraps Listen in a reconnect loop: Redis
// subscriptions drop on connection loss, and go-redis does not
// resubscribe automatically, so this retries Listen with linear backoff
// (attempt * baseDelay) up to maxAttempts before giving up.
func (n *Notifier) ListenWithReconnect(ctx context.Context, callback func(queue string), maxAttempts int, baseDelay time.Duration) error {
	attempt := 0
	for {
		err := n.Listen(ctx, callback)
		if err == nil || ctx.Err() != nil {
			return err
		}
		attempt++
		if attempt >= maxAttempts {
			return err
		}
		n.log.Warn("notifier/redis: listen disconnected, retrying", "attempt", attempt, "error", err)
		delay := time.Duration(attempt) * baseDelay
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
