package mysql

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
	"github.com/iagocavalcante/izi-queue/pkg/jobqueue"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewFromDB(db, nil), mock
}

func jobColumnNames() []string {
	names := strings.Split(jobColumns, ",")
	for i, n := range names {
		names[i] = strings.TrimSpace(n)
	}
	return names
}

func jobRow(id int64, queue, worker, state string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(jobColumnNames()).
		AddRow(id, queue, worker, state, []byte(`{}`), []byte(`{}`), []byte(`[]`), []byte(`[]`),
			0, 0, 25, now, now, nil, nil, nil, nil)
}

func TestInsertJob_ReturnsPersistedRow(t *testing.T) {
	a, mock := newMockAdapter(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO izi_jobs")).
		WithArgs("default", "send_email", "available", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 0, 25, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + jobColumns + " FROM izi_jobs WHERE id = ?")).
		WithArgs(int64(42)).
		WillReturnRows(jobRow(42, "default", "send_email", "available"))

	got, err := a.InsertJob(ctx, jobqueue.Job{
		Queue: "default", Worker: "send_email", ScheduledAt: time.Now(), MaxAttempts: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob_NotFoundReturnsNil(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + jobColumns + " FROM izi_jobs WHERE id = ?")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	got, err := a.GetJob(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateJob_AppendsErrorViaJSONArrayAppend(t *testing.T) {
	a, mock := newMockAdapter(t)
	rec := jobqueue.ErrorRecord{At: time.Now(), Error: "boom", Attempt: 1}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE izi_jobs SET errors = JSON_ARRAY_APPEND(errors, '$', CAST(? AS JSON)) WHERE id = ?")).
		WithArgs(sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + jobColumns + " FROM izi_jobs WHERE id = ?")).
		WithArgs(int64(7)).
		WillReturnRows(jobRow(7, "default", "noop", "retryable"))

	got, err := a.UpdateJob(context.Background(), 7, adapter.JobUpdate{AppendError: &rec})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelJobs_BuildsFilterConditions(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE izi_jobs SET state = 'cancelled', cancelled_at = NOW(6) WHERE state NOT IN ('completed', 'discarded', 'cancelled') AND queue = ?")).
		WithArgs("default").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := a.CancelJobs(context.Background(), adapter.CancelFilter{Queue: "default"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFetchJobs_NoCandidatesCommitsEmpty(t *testing.T) {
	a, mock := newMockAdapter(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM izi_jobs")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	jobs, err := a.FetchJobs(context.Background(), "default", 5)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListenNotify_ReturnUnsupported(t *testing.T) {
	a, _ := newMockAdapter(t)
	assert.ErrorIs(t, a.Notify(context.Background(), "default"), adapter.ErrNotifyUnsupported)
	assert.ErrorIs(t, a.Listen(context.Background(), func(string) {}), adapter.ErrNotifyUnsupported)
}
