// Package sqlite implements the pkg/adapter.Adapter contract on top of
// modernc.org/sqlite, a pure-Go SQLite driver that needs no cgo toolchain.
//
// SQLite has no row-level locking: there is exactly one writer at a time
// regardless of SELECT ... FOR UPDATE syntax, which SQLite doesn't even
// parse. FetchJobs claims rows inside a BEGIN IMMEDIATE transaction
// instead, which takes the database's single write lock up front and
// serializes concurrent claimers the same way SKIP LOCKED does for
// Postgres and MySQL, just without any cross-row parallelism. SQLite also
// has no LISTEN/NOTIFY equivalent, so Listen/Notify return
// adapter.ErrNotifyUnsupported exactly as the MySQL adapter does; pair
// this adapter with pkg/notifier/redis for cross-process wakeup, or rely
// on the dispatcher's poll interval alone for a single-process deployment.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	ErrFailedToOpenDBConnection = errors.New("sqlite: failed to open connection")
	ErrSetDialect               = errors.New("sqlite: failed to set migration dialect")
	ErrApplyMigrations          = errors.New("sqlite: failed to apply migrations")
	ErrRollbackMigration        = errors.New("sqlite: failed to roll back migration")
)

var _ adapter.Adapter = (*Adapter)(nil)

// Adapter satisfies adapter.Adapter against a SQLite database file (or
// ":memory:" for tests).
type Adapter struct {
	db  *sql.DB
	log *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	log          *slog.Logger
	maxOpenConns int
	busyTimeout  time.Duration
}

func defaultOptions() *options {
	return &options{
		maxOpenConns: 1,
		busyTimeout:  5 * time.Second,
	}
}

// WithLogger sets the logger used for migration output.
func WithLogger(log *slog.Logger) Option { return func(o *options) { o.log = log } }

// WithMaxOpenConns caps the pool. SQLite tolerates only one writer at a
// time, so a value above 1 only helps read-heavy workloads; defaults to 1.
func WithMaxOpenConns(n int) Option { return func(o *options) { o.maxOpenConns = n } }

// WithBusyTimeout sets how long a connection waits on SQLITE_BUSY before
// giving up, via the busy_timeout pragma. Defaults to 5s.
func WithBusyTimeout(d time.Duration) Option { return func(o *options) { o.busyTimeout = d } }

// Open connects to the database at dsn (a file path or ":memory:") and
// configures pragmas for job-queue workloads: WAL journaling so readers
// don't block the single writer, and a busy_timeout so concurrent
// transactions wait rather than fail immediately with SQLITE_BUSY.
func Open(ctx context.Context, dsn string, opts ...Option) (*Adapter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", o.busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, errors.Join(ErrFailedToOpenDBConnection, fmt.Errorf("pragma %q: %w", p, err))
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}

	return &Adapter{db: db, log: o.log}, nil
}

// NewFromDB wraps an already-open *sql.DB, mirroring the other adapters'
// escape hatch for callers managing their own pool (tests, shared pools).
func NewFromDB(db *sql.DB, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{db: db, log: log}
}

// Close releases the underlying connection pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Listen is unsupported: SQLite has no server-side pub/sub primitive.
func (a *Adapter) Listen(_ context.Context, _ func(queue string)) error {
	return adapter.ErrNotifyUnsupported
}

// Notify is unsupported for the same reason as Listen.
func (a *Adapter) Notify(_ context.Context, _ string) error {
	return adapter.ErrNotifyUnsupported
}

func wrapErr(op string, err error) error {
	return fmt.Errorf("sqlite: %s: %w", op, err)
}
