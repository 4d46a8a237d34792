package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T) (*Notifier, *goredis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, nil), client
}

func TestNotifier_ListenReceivesNotify(t *testing.T) {
	n, _ := newTestNotifier(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan string, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = n.Listen(ctx, func(queue string) {
			select {
			case received <- queue:
			default:
			}
		})
	}()

	// Give PSubscribe time to register before publishing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, n.Notify(context.Background(), "emails"))

	select {
	case queue := <-received:
		require.Equal(t, "emails", queue)
	case <-ctx.Done():
		t.Fatal("timed out waiting for notification")
	}

	cancel()
	wg.Wait()
}

func TestNotifier_ListenQueueIgnoresOtherQueues(t *testing.T) {
	n, _ := newTestNotifier(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	calls := make(chan struct{}, 1)
	go func() {
		_ = n.ListenQueue(ctx, "emails", func() {
			calls <- struct{}{}
		})
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, n.Notify(context.Background(), "other"))
	require.NoError(t, n.Notify(context.Background(), "emails"))

	select {
	case <-calls:
	case <-ctx.Done():
		t.Fatal("timed out waiting for the matching queue's notification")
	}
}

func TestNotifier_ListenStopsOnContextCancel(t *testing.T) {
	n, _ := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- n.Listen(ctx, func(string) {}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after context cancellation")
	}
}
