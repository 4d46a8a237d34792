package mysql

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
// by id and returns the row as persisted. MySQL's JSON type has no
// array-concatenation operator analogous to Postgres's jsonb ||, so
// AppendError is implemented with JSON_ARRAY_APPEND instead.
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
		errJSON, err := json.Marshal(*partial.AppendError)
		if err != nil {
			return nil, wrapErr("update job: marshal error", err)
		}
		sets = append(sets, "errors = JSON_ARRAY_APPEND(errors, '$', CAST(? AS JSON))")
		args = append(args, string(errJSON))
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
