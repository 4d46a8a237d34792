package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

const jobColumns = `id, queue, worker, state, args, meta, tags, errors,
	priority, attempt, max_attempts, inserted_at, scheduled_at,
	attempted_at, completed_at, discarded_at, cancelled_at`

type jobScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one row into a Job. modernc.org/sqlite converts
// DATETIME-declared columns to and from time.Time automatically, the
// same way the mysql driver does with parseTime=true, so timestamp
// fields scan directly; args/meta/tags/errors are TEXT columns holding
// JSON and need a manual Unmarshal, since database/sql has no JSON codec.
func scanJob(row jobScanner) (jobqueue.Job, error) {
	var j jobqueue.Job
	var args, meta, tags, errs []byte
	err := row.Scan(
		&j.ID, &j.Queue, &j.Worker, &j.State, &args, &meta, &tags, &errs,
		&j.Priority, &j.Attempt, &j.MaxAttempts, &j.InsertedAt, &j.ScheduledAt,
		&j.AttemptedAt, &j.CompletedAt, &j.DiscardedAt, &j.CancelledAt,
	)
	if err != nil {
		return jobqueue.Job{}, err
	}
	j.Args = json.RawMessage(args)
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &j.Meta)
	}
	if len(tags) > 0 {
		_ = json.Unmarshal(tags, &j.Tags)
	}
	if len(errs) > 0 {
		_ = json.Unmarshal(errs, &j.Errors)
	}
	return j, nil
}

// InsertJob inserts j and returns the row as persisted.
func (a *Adapter) InsertJob(ctx context.Context, j jobqueue.Job) (jobqueue.Job, error) {
	args := j.Args
	if args == nil {
		args = json.RawMessage("{}")
	}
	meta, err := json.Marshal(nonNilMap(j.Meta))
	if err != nil {
		return jobqueue.Job{}, wrapErr("insert job: marshal meta", err)
	}
	tags, err := json.Marshal(nonNilSlice(j.Tags))
	if err != nil {
		return jobqueue.Job{}, wrapErr("insert job: marshal tags", err)
	}
	errs, err := json.Marshal(nonNilErrors(j.Errors))
	if err != nil {
		return jobqueue.Job{}, wrapErr("insert job: marshal errors", err)
	}
	state := j.State
	if state == "" {
		state = jobqueue.InitialState(j.ScheduledAt, time.Now())
	}
	insertedAt := j.InsertedAt
	if insertedAt.IsZero() {
		insertedAt = time.Now()
	}

	result, err := a.db.ExecContext(ctx, `
		INSERT INTO izi_jobs (queue, worker, state, args, meta, tags, errors,
			priority, attempt, max_attempts, inserted_at, scheduled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Queue, j.Worker, string(state), args, meta, tags, errs,
		j.Priority, j.Attempt, j.MaxAttempts, insertedAt, j.ScheduledAt,
	)
	if err != nil {
		return jobqueue.Job{}, wrapErr("insert job", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return jobqueue.Job{}, wrapErr("insert job: last insert id", err)
	}
	got, err := a.GetJob(ctx, id)
	if err != nil {
		return jobqueue.Job{}, err
	}
	return *got, nil
}

// GetJob fetches a single row by id, returning (nil, nil) if absent.
func (a *Adapter) GetJob(ctx context.Context, id int64) (*jobqueue.Job, error) {
	row := a.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM izi_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("get job", err)
	}
	return &j, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilErrors(e []jobqueue.ErrorRecord) []jobqueue.ErrorRecord {
	if e == nil {
		return []jobqueue.ErrorRecord{}
	}
	return e
}
