// Package postgres implements pkg/adapter.Adapter on top of PostgreSQL,
// using pgx's native pool for the SKIP LOCKED claim transaction and
// LISTEN/NOTIFY, and goose for schema migrations. Pool tuning follows
// the same functional-option shape as the connection layer this is
// adapted from.
package postgres

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iagocavalcante/izi-queue/pkg/adapter"
)

var _ adapter.Adapter = (*Adapter)(nil)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	ErrFailedToParseDBConfig   = errors.New("postgres: failed to parse connection string")
	ErrFailedToOpenDBConnection = errors.New("postgres: failed to open connection pool")
	ErrSetDialect              = errors.New("postgres: failed to set migration dialect")
	ErrApplyMigrations         = errors.New("postgres: failed to apply migrations")
	ErrRollbackMigration       = errors.New("postgres: failed to roll back migration")
)

// Option configures Open.
type Option func(*options)

type options struct {
	log               *slog.Logger
	maxConns          int32
	minConns          int32
	healthCheckPeriod time.Duration
	maxConnIdleTime   time.Duration
	maxConnLifetime   time.Duration
	retryAttempts     int
	retryInterval     time.Duration
}

func defaultOptions() *options {
	return &options{
		maxConns:          10,
		minConns:          2,
		healthCheckPeriod: time.Minute,
		maxConnIdleTime:   10 * time.Minute,
		maxConnLifetime:   30 * time.Minute,
		retryAttempts:     3,
		retryInterval:     5 * time.Second,
	}
}

// WithLogger sets the logger used for migration output and notify
// reconnect diagnostics. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMaxConns sets the pool's maximum connection count. Default 10.
func WithMaxConns(n int32) Option {
	return func(o *options) { o.maxConns = n }
}

// WithMinConns sets the pool's minimum idle connection count. Default 2.
func WithMinConns(n int32) Option {
	return func(o *options) { o.minConns = n }
}

// WithRetry configures connection-establishment retry. Default 3
// attempts, 5s base interval, linearly scaled per attempt.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(o *options) {
		o.retryAttempts = attempts
		o.retryInterval = interval
	}
}

// Adapter satisfies adapter.Adapter against a PostgreSQL pool.
type Adapter struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open establishes a pooled connection to connString, retrying transient
// failures, but does not run migrations: call Migrate explicitly so
// callers control when schema changes apply.
func Open(ctx context.Context, connString string, opts ...Option) (*Adapter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}
	cfg.MaxConns = o.maxConns
	cfg.MinConns = o.minConns
	cfg.HealthCheckPeriod = o.healthCheckPeriod
	cfg.MaxConnIdleTime = o.maxConnIdleTime
	cfg.MaxConnLifetime = o.maxConnLifetime

	pool, err := connect(ctx, cfg, o.retryAttempts, o.retryInterval)
	if err != nil {
		return nil, err
	}
	return &Adapter{pool: pool, log: o.log}, nil
}

// NewFromPool wraps an already-open pool, for callers (tests, or hosts
// sharing one pool across several concerns) that manage pool lifecycle
// themselves.
func NewFromPool(pool *pgxpool.Pool, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{pool: pool, log: log}
}

func connect(ctx context.Context, cfg *pgxpool.Config, attempts int, interval time.Duration) (*pgxpool.Pool, error) {
	attempts = max(attempts, 1)
	var lastErr error
	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToOpenDBConnection, ctx.Err())
		case <-time.After(time.Duration(i+1) * interval):
		}
	}
	return nil, errors.Join(ErrFailedToOpenDBConnection, lastErr)
}

// Close releases the pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}
