package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

const jobColumns = `id, queue, worker, state, args, meta, tags, errors,
	priority, attempt, max_attempts, inserted_at, scheduled_at,
	attempted_at, completed_at, discarded_at, cancelled_at`

func scanJob(row pgx.Row) (jobqueue.Job, error) {
	var j jobqueue.Job
	var args json.RawMessage
	meta := map[string]any{}
	err := row.Scan(
		&j.ID, &j.Queue, &j.Worker, &j.State, &args, &meta, &j.Tags, &j.Errors,
		&j.Priority, &j.Attempt, &j.MaxAttempts, &j.InsertedAt, &j.ScheduledAt,
		&j.AttemptedAt, &j.CompletedAt, &j.DiscardedAt, &j.CancelledAt,
	)
	if err != nil {
		return jobqueue.Job{}, err
	}
	j.Args = args
	if len(meta) > 0 {
		j.Meta = meta
	}
	return j, nil
}

// InsertJob inserts j and returns the row as persisted, including any
// server-computed defaults (id, inserted_at). An empty j.State is filled
// in Go from InitialState before the INSERT.
func (a *Adapter) InsertJob(ctx context.Context, j jobqueue.Job) (jobqueue.Job, error) {
	args := j.Args
	if args == nil {
		args = json.RawMessage("{}")
	}
	meta := j.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	errs := j.Errors
	if errs == nil {
		errs = []jobqueue.ErrorRecord{}
	}
	tags := j.Tags
	if tags == nil {
		tags = []string{}
	}
	state := j.State
	if state == "" {
		state = jobqueue.InitialState(j.ScheduledAt, time.Now())
	}

	row := a.pool.QueryRow(ctx, `
		INSERT INTO izi_jobs (queue, worker, state, args, meta, tags, errors,
			priority, attempt, max_attempts, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+jobColumns,
		j.Queue, j.Worker, state, args, meta, tags, errs,
		j.Priority, j.Attempt, j.MaxAttempts, j.ScheduledAt,
	)
	return scanJob(row)
}

// GetJob fetches a single row by id, returning (nil, nil) if absent.
func (a *Adapter) GetJob(ctx context.Context, id int64) (*jobqueue.Job, error) {
	row := a.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM izi_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get job: %w", err)
	}
	return &j, nil
}
