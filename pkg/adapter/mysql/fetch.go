package mysql

import (
	"context"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// FetchJobs claims up to limit available, due rows from queue. MySQL has
// no RETURNING clause, so the claim is three statements in one
// transaction: SELECT ... FOR UPDATE SKIP LOCKED picks candidate ids,
// UPDATE claims them, and a final SELECT reads back the claimed rows.
func (a *Adapter) FetchJobs(ctx context.Context, queue string, limit int) ([]jobqueue.Job, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("fetch jobs: begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM izi_jobs
		WHERE queue = ? AND state = 'available' AND scheduled_at <= NOW(6)
		ORDER BY priority ASC, scheduled_at ASC, id ASC
		LIMIT ?
		FOR UPDATE SKIP LOCKED`, queue, limit)
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
		return nil, tx.Commit()
	}

	placeholders, args := inClause(ids)
	updateQuery := `UPDATE izi_jobs SET state = 'executing', attempted_at = NOW(6), attempt = attempt + 1 WHERE id IN (` + placeholders + `)`
	if _, err := tx.ExecContext(ctx, updateQuery, args...); err != nil {
		return nil, wrapErr("fetch jobs: claim", err)
	}

	selectQuery := `SELECT ` + jobColumns + ` FROM izi_jobs WHERE id IN (` + placeholders + `) ORDER BY priority ASC, scheduled_at ASC, id ASC`
	claimRows, err := tx.QueryContext(ctx, selectQuery, args...)
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

	if err := tx.Commit(); err != nil {
		return nil, wrapErr("fetch jobs: commit", err)
	}
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
