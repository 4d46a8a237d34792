package postgres

import (
	"context"
	"fmt"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// FetchJobs claims up to limit available, due rows from queue within a
// single transaction: SELECT ... FOR UPDATE SKIP LOCKED picks candidates
// no other transaction currently holds, then an UPDATE moves them to
// executing before commit. Two concurrent callers never observe
// overlapping rows because SKIP LOCKED excludes whatever the other
// transaction has already locked.
func (a *Adapter) FetchJobs(ctx context.Context, queue string, limit int) ([]jobqueue.Job, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch jobs: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id FROM izi_jobs
		WHERE queue = $1 AND state = 'available' AND scheduled_at <= now()
		ORDER BY priority ASC, scheduled_at ASC, id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch jobs: select candidates: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: fetch jobs: scan candidate: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fetch jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.Commit(ctx)
	}

	claimRows, err := tx.Query(ctx, `
		WITH claimed AS (
			UPDATE izi_jobs
			SET state = 'executing', attempted_at = now(), attempt = attempt + 1
			WHERE id = ANY($1)
			RETURNING *
		)
		SELECT `+jobColumns+` FROM claimed
		ORDER BY priority ASC, scheduled_at ASC, id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch jobs: claim: %w", err)
	}
	var claimed []jobqueue.Job
	for claimRows.Next() {
		j, err := scanJob(claimRows)
		if err != nil {
			claimRows.Close()
			return nil, fmt.Errorf("postgres: fetch jobs: scan claimed: %w", err)
		}
		claimed = append(claimed, j)
	}
	claimRows.Close()
	if err := claimRows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fetch jobs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: fetch jobs: commit: %w", err)
	}
	return claimed, nil
}
