package iziqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/cache"
	"github.com/iagocavalcante/izi-queue/pkg/health"
	notifierredis "github.com/iagocavalcante/izi-queue/pkg/notifier/redis"
	"github.com/iagocavalcante/izi-queue/pkg/redis"
)

// WithRedis opens a Redis connection via pkg/redis.Open and wires it as
// both the cross-process insert notifier (pkg/notifier/redis, for MySQL
// and SQLite adapters with no native LISTEN/NOTIFY) and the backing
// store for the unique-insert fast-path cache, per spec.md §6.2 and
// §4.7a. A shutdown hook closes the connection during Orchestrator
// Shutdown.
//
// Returns the Option plus any connection error, since Open itself can
// fail (bad URL, unreachable server) and that failure must reach the
// caller rather than surface later as a silently disabled notifier.
//
// WithRedis captures the Orchestrator's logger at apply time, so pass
// WithLogger before WithRedis in New's option list if both are used.
func WithRedis(ctx context.Context, url string, opts ...redis.Option) (Option, error) {
	client, err := redis.Open(ctx, url, opts...)
	if err != nil {
		return nil, fmt.Errorf("iziqueue: open redis: %w", err)
	}

	uniqueCache := cache.NewRedis[int64](client, nil, cache.WithPrefix("iziqueue:unique"), cache.WithRedisDefaultTTL(time.Minute))

	return func(o *Orchestrator) {
		WithNotifier(notifierredis.New(client, o.log))(o)
		WithUniqueCache(uniqueCache)(o)
		WithHealthChecks(health.Checks{"redis": redis.Healthcheck(client)})(o)
		WithShutdownHook(redis.Shutdown(client))(o)
	}, nil
}
