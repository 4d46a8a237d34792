package mysql

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
	result, err := a.db.ExecContext(ctx, `
		UPDATE izi_jobs SET state = 'available'
		WHERE state IN ('scheduled', 'retryable') AND scheduled_at <= NOW(6)`)
	if err != nil {
		return 0, wrapErr("stage jobs", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// CancelJobs marks every non-terminal row matching filter as cancelled.
func (a *Adapter) CancelJobs(ctx context.Context, filter adapter.CancelFilter) (int, error) {
	conds := []string{"state NOT IN ('completed', 'discarded', 'cancelled')"}
	var args []any
	if filter.Queue != "" {
		conds = append(conds, "queue = ?")
		args = append(args, filter.Queue)
	}
	if filter.Worker != "" {
		conds = append(conds, "worker = ?")
		args = append(args, filter.Worker)
	}
	if filter.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(filter.State))
	}

	query := fmt.Sprintf(`UPDATE izi_jobs SET state = 'cancelled', cancelled_at = NOW(6) WHERE %s`, strings.Join(conds, " AND "))
	result, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapErr("cancel jobs", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// RescueStuckJobs returns every executing row whose attempted_at is
// older than after back to available.
func (a *Adapter) RescueStuckJobs(ctx context.Context, after time.Duration) (int, error) {
	result, err := a.db.ExecContext(ctx, `
		UPDATE izi_jobs SET state = 'available', scheduled_at = NOW(6)
		WHERE state = 'executing' AND attempted_at < NOW(6) - INTERVAL ? SECOND`,
		int(after.Seconds()))
	if err != nil {
		return 0, wrapErr("rescue stuck jobs", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// PruneJobs deletes terminal rows whose terminal timestamp is older than
// maxAge.
func (a *Adapter) PruneJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	secs := int(maxAge.Seconds())
	result, err := a.db.ExecContext(ctx, `
		DELETE FROM izi_jobs
		WHERE (state = 'completed' AND completed_at < NOW(6) - INTERVAL ? SECOND)
		   OR (state = 'discarded' AND discarded_at < NOW(6) - INTERVAL ? SECOND)
		   OR (state = 'cancelled' AND cancelled_at < NOW(6) - INTERVAL ? SECOND)`,
		secs, secs, secs)
	if err != nil {
		return 0, wrapErr("prune jobs", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// CheckUnique looks for a live row matching job under opts.
func (a *Adapter) CheckUnique(ctx context.Context, opts adapter.UniqueOptions, job jobqueue.Job) (*jobqueue.Job, error) {
	opts = opts.Defaults()

	states := make([]string, len(opts.States))
	for i, s := range opts.States {
		states[i] = string(s)
	}
	placeholders := make([]string, len(states))
	var args []any
	for i, s := range states {
		placeholders[i] = "?"
		args = append(args, s)
	}
	conds := []string{"state IN (" + strings.Join(placeholders, ",") + ")"}
	if !opts.Infinite {
		conds = append(conds, "inserted_at > NOW(6) - INTERVAL ? SECOND")
		args = append(args, int(opts.Period.Seconds()))
	}
	if opts.HasField("worker") {
		conds = append(conds, "worker = ?")
		args = append(args, job.Worker)
	}
	if opts.HasField("queue") {
		conds = append(conds, "queue = ?")
		args = append(args, job.Queue)
	}

	query := `SELECT ` + jobColumns + ` FROM izi_jobs WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY id ASC`
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("check unique", err)
	}
	defer rows.Close()

	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, wrapErr("check unique: scan", err)
		}
		if opts.HasField("args") && !argsMatch(opts.Keys, j.Args, job.Args) {
			continue
		}
		return &j, nil
	}
	return nil, rows.Err()
}
