package sqlite

import (
	"context"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// FetchJobs claims up to limit available, due rows from queue. SQLite
// has no row-level locking and no SKIP LOCKED: the claim instead runs
// inside a BEGIN IMMEDIATE transaction, which acquires the database's
// single reserved write lock before reading anything. Any other writer
// trying to claim concurrently blocks (or returns SQLITE_BUSY once
// busy_timeout elapses) until this transaction commits, so two callers
// never observe overlapping candidate sets even without per-row locks.
func (a *Adapter) FetchJobs(ctx context.Context, queue string, limit int) ([]jobqueue.Job, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, wrapErr("fetch jobs: conn", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, wrapErr("fetch jobs: begin immediate", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	rows, err := conn.QueryContext(ctx, `
		SELECT id FROM izi_jobs
		WHERE queue = ? AND state = 'available' AND scheduled_at <= ?
		ORDER BY priority ASC, scheduled_at ASC, id ASC
		LIMIT ?`, queue, time.Now(), limit)
	if err != nil {
		return nil, wrapErr("fetch jobs: select candidates", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapErr("fetch jobs: scan candidate", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr("fetch jobs", err)
	}
	if len(ids) == 0 {
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return nil, wrapErr("fetch jobs: commit", err)
		}
		committed = true
		return nil, nil
	}

	placeholders, args := inClause(ids)
	updateQuery := `UPDATE izi_jobs SET state = 'executing', attempted_at = ?, attempt = attempt + 1 WHERE id IN (` + placeholders + `)`
	updateArgs := append([]any{time.Now()}, args...)
	if _, err := conn.ExecContext(ctx, updateQuery, updateArgs...); err != nil {
		return nil, wrapErr("fetch jobs: claim", err)
	}

	selectQuery := `SELECT ` + jobColumns + ` FROM izi_jobs WHERE id IN (` + placeholders + `) ORDER BY priority ASC, scheduled_at ASC, id ASC`
	claimRows, err := conn.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, wrapErr("fetch jobs: reselect claimed", err)
	}
	var claimed []jobqueue.Job
	for claimRows.Next() {
		j, err := scanJob(claimRows)
		if err != nil {
			claimRows.Close()
			return nil, wrapErr("fetch jobs: scan claimed", err)
		}
		claimed = append(claimed, j)
	}
	claimRows.Close()
	if err := claimRows.Err(); err != nil {
		return nil, wrapErr("fetch jobs", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, wrapErr("fetch jobs: commit", err)
	}
	committed = true
	return claimed, nil
}

func inClause(ids []int64) (string, []any) {
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	return string(placeholders), args
}
