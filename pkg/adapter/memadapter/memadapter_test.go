package memadapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

func TestFetchJobs_OrderingAndClaim(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := New(func() time.Time { return now })

	low, _ := a.InsertJob(ctx, jobqueue.Job{Queue: "default", Worker: "w", State: jobqueue.StateAvailable, Priority: 5, ScheduledAt: now})
	high, _ := a.InsertJob(ctx, jobqueue.Job{Queue: "default", Worker: "w", State: jobqueue.StateAvailable, Priority: 1, ScheduledAt: now})
	future, _ := a.InsertJob(ctx, jobqueue.Job{Queue: "default", Worker: "w", State: jobqueue.StateAvailable, Priority: 0, ScheduledAt: now.Add(time.Hour)})

	claimed, err := a.FetchJobs(ctx, "default", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, high.ID, claimed[0].ID)
	assert.Equal(t, low.ID, claimed[1].ID)
	for _, j := range claimed {
		assert.Equal(t, jobqueue.StateExecuting, j.State)
		assert.Equal(t, 1, j.Attempt)
		require.NotNil(t, j.AttemptedAt)
	}

	stored, _ := a.GetJob(ctx, future.ID)
	assert.Equal(t, jobqueue.StateAvailable, stored.State)
}

func TestFetchJobs_NoOverlapUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	a := New(nil)
	for i := 0; i < 50; i++ {
		_, _ = a.InsertJob(ctx, jobqueue.Job{Queue: "q", Worker: "w", State: jobqueue.StateAvailable, ScheduledAt: time.Now().Add(-time.Minute)})
	}

	seen := make(map[int64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := a.FetchJobs(ctx, "q", 10)
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, j := range claimed {
				assert.False(t, seen[j.ID], "job %d claimed twice", j.ID)
				seen[j.ID] = true
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestCheckUnique_DefaultsMatchOnWorkerQueueArgs(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := New(func() time.Time { return now })

	existing, err := a.InsertJob(ctx, jobqueue.Job{
		Worker: "send_email", Queue: "default", State: jobqueue.StateAvailable,
		ScheduledAt: now, Args: []byte(`{"to":"a@example.com"}`),
	})
	require.NoError(t, err)

	hit, err := a.CheckUnique(ctx, adapter.UniqueOptions{}, jobqueue.Job{
		Worker: "send_email", Queue: "default", Args: []byte(`{"to":"a@example.com"}`),
	})
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, existing.ID, hit.ID)

	miss, err := a.CheckUnique(ctx, adapter.UniqueOptions{}, jobqueue.Job{
		Worker: "send_email", Queue: "default", Args: []byte(`{"to":"b@example.com"}`),
	})
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestCheckUnique_PeriodExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := New(func() time.Time { return now })
	_, err := a.InsertJob(ctx, jobqueue.Job{Worker: "w", Queue: "default", State: jobqueue.StateAvailable, ScheduledAt: now, Args: []byte(`{}`)})
	require.NoError(t, err)

	a.now = func() time.Time { return now.Add(2 * time.Minute) }
	hit, err := a.CheckUnique(ctx, adapter.UniqueOptions{Period: time.Minute}, jobqueue.Job{Worker: "w", Queue: "default", Args: []byte(`{}`)})
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestPruneJobs_DeletesOldTerminalOnly(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := New(func() time.Time { return now })

	old := now.Add(-48 * time.Hour)
	oldCompleted, _ := a.InsertJob(ctx, jobqueue.Job{Queue: "q", State: jobqueue.StateCompleted, ScheduledAt: now, CompletedAt: &old})
	recentCompleted, _ := a.InsertJob(ctx, jobqueue.Job{Queue: "q", State: jobqueue.StateCompleted, ScheduledAt: now, CompletedAt: &now})
	stillRunning, _ := a.InsertJob(ctx, jobqueue.Job{Queue: "q", State: jobqueue.StateExecuting, ScheduledAt: now})

	count, err := a.PruneJobs(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = a.GetJob(ctx, oldCompleted.ID)
	require.NoError(t, err)
	j, _ := a.GetJob(ctx, oldCompleted.ID)
	assert.Nil(t, j)

	j2, _ := a.GetJob(ctx, recentCompleted.ID)
	assert.NotNil(t, j2)
	j3, _ := a.GetJob(ctx, stillRunning.ID)
	assert.NotNil(t, j3)
}

func TestRescueStuckJobs(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := New(func() time.Time { return now })

	stuckAt := now.Add(-10 * time.Minute)
	stuck, _ := a.InsertJob(ctx, jobqueue.Job{Queue: "q", State: jobqueue.StateExecuting, ScheduledAt: now, AttemptedAt: &stuckAt})

	count, err := a.RescueStuckJobs(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	j, _ := a.GetJob(ctx, stuck.ID)
	assert.Equal(t, jobqueue.StateAvailable, j.State)
}

func TestNotify_InvokesListeners(t *testing.T) {
	ctx := context.Background()
	a := New(nil)
	var got string
	require.NoError(t, a.Listen(ctx, func(q string) { got = q }))
	require.NoError(t, a.Notify(ctx, "reports"))
	assert.Equal(t, "reports", got)
}
