package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

// UpdateJob applies the non-nil fields of partial to the row identified
// by id and returns the row as persisted. AppendError appends to the
// errors array server-side rather than requiring the caller to read the
// row first.
func (a *Adapter) UpdateJob(ctx context.Context, id int64, partial adapter.JobUpdate) (*jobqueue.Job, error) {
	var sets []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if partial.State != nil {
		sets = append(sets, "state = "+next(*partial.State))
	}
	if partial.ScheduledAt != nil {
		sets = append(sets, "scheduled_at = "+next(*partial.ScheduledAt))
	}
	if partial.AttemptedAt != nil {
		sets = append(sets, "attempted_at = "+next(*partial.AttemptedAt))
	}
	if partial.CompletedAt != nil {
		sets = append(sets, "completed_at = "+next(*partial.CompletedAt))
	}
	if partial.DiscardedAt != nil {
		sets = append(sets, "discarded_at = "+next(*partial.DiscardedAt))
	}
	if partial.CancelledAt != nil {
		sets = append(sets, "cancelled_at = "+next(*partial.CancelledAt))
	}
	if partial.Attempt != nil {
		sets = append(sets, "attempt = "+next(*partial.Attempt))
	}
	if partial.Meta != nil {
		sets = append(sets, "meta = "+next(partial.Meta))
	}
	if partial.AppendError != nil {
		sets = append(sets, "errors = errors || "+next([]jobqueue.ErrorRecord{*partial.AppendError})+"::jsonb")
	}
	if len(sets) == 0 {
		return a.GetJob(ctx, id)
	}

	idParam := next(id)
	query := fmt.Sprintf(`UPDATE izi_jobs SET %s WHERE id = %s RETURNING %s`,
		strings.Join(sets, ", "), idParam, jobColumns)

	row := a.pool.QueryRow(ctx, query, args...)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: update job: %w", err)
	}
	return &j, nil
}
