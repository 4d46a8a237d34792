package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// UpdateJob applies the non-nil fields of partial to the row identified
// by id and returns the row as persisted. SQLite's json1 extension
// (bundled into modernc.org/sqlite) has no array-concatenation operator,
// so AppendError reads the current errors column, appends in Go, and
// writes the whole array back rather than mutating it in SQL.
func (a *Adapter) UpdateJob(ctx context.Context, id int64, partial adapter.JobUpdate) (*jobqueue.Job, error) {
	var sets []string
	var args []any

	if partial.State != nil {
		sets = append(sets, "state = ?")
		args = append(args, string(*partial.State))
	}
	if partial.ScheduledAt != nil {
		sets = append(sets, "scheduled_at = ?")
		args = append(args, *partial.ScheduledAt)
	}
	if partial.AttemptedAt != nil {
		sets = append(sets, "attempted_at = ?")
		args = append(args, *partial.AttemptedAt)
	}
	if partial.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *partial.CompletedAt)
	}
	if partial.DiscardedAt != nil {
		sets = append(sets, "discarded_at = ?")
		args = append(args, *partial.DiscardedAt)
	}
	if partial.CancelledAt != nil {
		sets = append(sets, "cancelled_at = ?")
		args = append(args, *partial.CancelledAt)
	}
	if partial.Attempt != nil {
		sets = append(sets, "attempt = ?")
		args = append(args, *partial.Attempt)
	}
	if partial.Meta != nil {
		metaJSON, err := json.Marshal(partial.Meta)
		if err != nil {
			return nil, wrapErr("update job: marshal meta", err)
		}
		sets = append(sets, "meta = ?")
		args = append(args, metaJSON)
	}
	if partial.AppendError != nil {
		return a.updateWithAppendedError(ctx, id, sets, args, *partial.AppendError)
	}
	if len(sets) == 0 {
		return a.GetJob(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE izi_jobs SET %s WHERE id = ?`, strings.Join(sets, ", "))
	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return nil, wrapErr("update job", err)
	}
	j, err := a.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return j, nil
}

// updateWithAppendedError reads the current errors column and the rest
// of partial's sets inside a single transaction, so the
// read-modify-write of the errors array is never interleaved with a
// concurrent UpdateJob call on the same row.
func (a *Adapter) updateWithAppendedError(ctx context.Context, id int64, sets []string, args []any, rec jobqueue.ErrorRecord) (*jobqueue.Job, error) {
	tx, err := a.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, wrapErr("update job: begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM izi_jobs WHERE id = ?`, id)
	current, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("update job: read current", err)
	}

	errsJSON, err := json.Marshal(append(current.Errors, rec))
	if err != nil {
		return nil, wrapErr("update job: marshal errors", err)
	}
	sets = append(sets, "errors = ?")
	args = append(args, errsJSON, id)

	query := fmt.Sprintf(`UPDATE izi_jobs SET %s WHERE id = ?`, strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, wrapErr("update job", err)
	}

	row = tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM izi_jobs WHERE id = ?`, id)
	updated, err := scanJob(row)
	if err != nil {
		return nil, wrapErr("update job: read updated", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapErr("update job: commit", err)
	}
	return &updated, nil
}
