package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	migrationsDir   = "migrations"
	migrationsTable = "izi_migrations"
)

// Migrate applies every pending migration embedded in migrationFS. The
// pgx pool is bridged to database/sql via stdlib.OpenDBFromPool, which
// shares the pool's underlying connections rather than opening a
// separate one; the returned *sql.DB is not closed here for that reason.
func (a *Adapter) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(a.pool)

	goose.SetBaseFS(migrationFS)
	goose.SetTableName(migrationsTable)
	goose.SetLogger(&gooseLogAdapter{a.log})

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrSetDialect, err)
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}
	return nil
}

// Rollback reverts migrations down to (and including) targetVersion+1,
// i.e. down to targetVersion.
func (a *Adapter) Rollback(ctx context.Context, targetVersion int64) error {
	db := stdlib.OpenDBFromPool(a.pool)

	goose.SetBaseFS(migrationFS)
	goose.SetTableName(migrationsTable)
	goose.SetLogger(&gooseLogAdapter{a.log})

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrSetDialect, err)
	}
	if err := goose.DownToContext(ctx, db, migrationsDir, targetVersion); err != nil {
		return errors.Join(ErrRollbackMigration, err)
	}
	return nil
}

type gooseLogAdapter struct {
	log interface {
		Info(msg string, args ...any)
		Error(msg string, args ...any)
	}
}

func (g *gooseLogAdapter) Printf(format string, args ...any) {
	g.log.Info(fmt.Sprintf(format, args...))
}

func (g *gooseLogAdapter) Fatalf(format string, args ...any) {
	g.log.Error(fmt.Sprintf(format, args...))
}
