// Package mysql implements pkg/adapter.Adapter on top of MySQL 8.0+,
// using database/sql with go-sql-driver/mysql and SELECT ... FOR UPDATE
// SKIP LOCKED for the claim transaction. MySQL has no LISTEN/NOTIFY
// equivalent, so Listen and Notify both return
// adapter.ErrNotifyUnsupported: callers needing cross-process wakeup
// pair this adapter with pkg/notifier/redis instead.
package mysql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	ErrFailedToOpenDBConnection = errors.New("mysql: failed to open connection")
	ErrSetDialect               = errors.New("mysql: failed to set migration dialect")
	ErrApplyMigrations          = errors.New("mysql: failed to apply migrations")
	ErrRollbackMigration        = errors.New("mysql: failed to roll back migration")
)

var _ adapter.Adapter = (*Adapter)(nil)

// Adapter satisfies adapter.Adapter against MySQL.
type Adapter struct {
	db  *sql.DB
	log *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	log           *slog.Logger
	maxOpenConns  int
	maxIdleConns  int
	connMaxIdle   time.Duration
	retryAttempts int
	retryInterval time.Duration
}

func defaultOptions() *options {
	return &options{
		maxOpenConns:  10,
		maxIdleConns:  2,
		connMaxIdle:   10 * time.Minute,
		retryAttempts: 3,
		retryInterval: 5 * time.Second,
	}
}

// WithLogger sets the logger used for migration output.
func WithLogger(log *slog.Logger) Option { return func(o *options) { o.log = log } }

// WithMaxOpenConns sets the pool's maximum open connection count.
func WithMaxOpenConns(n int) Option { return func(o *options) { o.maxOpenConns = n } }

// WithRetry configures connection-establishment retry.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(o *options) {
		o.retryAttempts = attempts
		o.retryInterval = interval
	}
}

// Open establishes a connection pool to dsn (a go-sql-driver/mysql data
// source name, e.g. "user:pass@tcp(host:3306)/dbname?parseTime=true").
// parseTime=true is required: without it DATETIME columns scan as
// []byte rather than time.Time.
func Open(ctx context.Context, dsn string, opts ...Option) (*Adapter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Join(ErrFailedToOpenDBConnection, err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)
	db.SetConnMaxIdleTime(o.connMaxIdle)

	var lastErr error
	attempts := max(o.retryAttempts, 1)
	for i := range attempts {
		if lastErr = db.PingContext(ctx); lastErr == nil {
			return &Adapter{db: db, log: o.log}, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToOpenDBConnection, ctx.Err())
		case <-time.After(time.Duration(i+1) * o.retryInterval):
		}
	}
	db.Close()
	return nil, errors.Join(ErrFailedToOpenDBConnection, lastErr)
}

// NewFromDB wraps an already-open *sql.DB.
func NewFromDB(db *sql.DB, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{db: db, log: log}
}

// Close releases the pool.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Listen is unsupported: MySQL has no server-side pub/sub primitive.
func (a *Adapter) Listen(_ context.Context, _ func(queue string)) error {
	return adapter.ErrNotifyUnsupported
}

// Notify is unsupported for the same reason as Listen.
func (a *Adapter) Notify(_ context.Context, _ string) error {
	return adapter.ErrNotifyUnsupported
}

func wrapErr(op string, err error) error {
	return fmt.Errorf("mysql: %s: %w", op, err)
}
