package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// StageJobs promotes every scheduled or retryable row whose scheduled_at
// has arrived to available.
func (a *Adapter) StageJobs(ctx context.Context) (int, error) {
	tag, err := a.pool.Exec(ctx, `
		UPDATE izi_jobs SET state = 'available'
		WHERE state IN ('scheduled', 'retryable') AND scheduled_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("postgres: stage jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CancelJobs marks every non-terminal row matching filter as cancelled.
func (a *Adapter) CancelJobs(ctx context.Context, filter adapter.CancelFilter) (int, error) {
	var conds []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	conds = append(conds, "state NOT IN ('completed', 'discarded', 'cancelled')")
	if filter.Queue != "" {
		conds = append(conds, "queue = "+next(filter.Queue))
	}
	if filter.Worker != "" {
		conds = append(conds, "worker = "+next(filter.Worker))
	}
	if filter.State != "" {
		conds = append(conds, "state = "+next(filter.State))
	}

	query := fmt.Sprintf(`UPDATE izi_jobs SET state = 'cancelled', cancelled_at = now() WHERE %s`,
		strings.Join(conds, " AND "))
	tag, err := a.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: cancel jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RescueStuckJobs returns every executing row whose attempted_at is
// older than after back to available, rescheduled to run immediately.
// This recovers jobs orphaned by a dispatcher crash mid-execution.
func (a *Adapter) RescueStuckJobs(ctx context.Context, after time.Duration) (int, error) {
	tag, err := a.pool.Exec(ctx, `
		UPDATE izi_jobs SET state = 'available', scheduled_at = now()
		WHERE state = 'executing' AND attempted_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(after.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("postgres: rescue stuck jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PruneJobs deletes terminal rows whose terminal timestamp is older than
// maxAge.
func (a *Adapter) PruneJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	tag, err := a.pool.Exec(ctx, `
		DELETE FROM izi_jobs
		WHERE (state = 'completed' AND completed_at < now() - $1::interval)
		   OR (state = 'discarded' AND discarded_at < now() - $1::interval)
		   OR (state = 'cancelled' AND cancelled_at < now() - $1::interval)`,
		fmt.Sprintf("%d seconds", int(maxAge.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("postgres: prune jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CheckUnique looks for a live row matching job under opts, returning the
// first conflict found or (nil, nil) if none exists. Keys-scoped args
// comparison is done in Go after fetching state/args candidates, since
// per-key JSON comparison is awkward to express portably in SQL and the
// result set is already bounded by state, worker, and queue filters.
func (a *Adapter) CheckUnique(ctx context.Context, opts adapter.UniqueOptions, job jobqueue.Job) (*jobqueue.Job, error) {
	opts = opts.Defaults()

	var conds []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	states := make([]string, len(opts.States))
	for i, s := range opts.States {
		states[i] = string(s)
	}
	conds = append(conds, "state = ANY("+next(states)+")")
	if !opts.Infinite {
		conds = append(conds, "inserted_at > now() - "+next(fmt.Sprintf("%d seconds", int(opts.Period.Seconds())))+"::interval")
	}
	if opts.HasField("worker") {
		conds = append(conds, "worker = "+next(job.Worker))
	}
	if opts.HasField("queue") {
		conds = append(conds, "queue = "+next(job.Queue))
	}

	query := fmt.Sprintf(`SELECT %s FROM izi_jobs WHERE %s ORDER BY id ASC`, jobColumns, strings.Join(conds, " AND "))
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: check unique: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: check unique: scan: %w", err)
		}
		if opts.HasField("args") && !argsMatch(opts.Keys, j.Args, job.Args) {
			continue
		}
		return &j, nil
	}
	return nil, rows.Err()
}
