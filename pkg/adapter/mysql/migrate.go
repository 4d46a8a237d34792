package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
)

const (
	migrationsDir   = "migrations"
	migrationsTable = "izi_migrations"
)

// Migrate applies every pending migration embedded in migrationFS.
func (a *Adapter) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationFS)
	goose.SetTableName(migrationsTable)
	goose.SetLogger(&gooseLogAdapter{a.log})

	if err := goose.SetDialect("mysql"); err != nil {
		return errors.Join(ErrSetDialect, err)
	}
	if err := goose.UpContext(ctx, a.db, migrationsDir); err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}
	return nil
}

// Rollback reverts migrations down to targetVersion.
func (a *Adapter) Rollback(ctx context.Context, targetVersion int64) error {
	goose.SetBaseFS(migrationFS)
	goose.SetTableName(migrationsTable)
	goose.SetLogger(&gooseLogAdapter{a.log})

	if err := goose.SetDialect("mysql"); err != nil {
		return errors.Join(ErrSetDialect, err)
	}
	if err := goose.DownToContext(ctx, a.db, migrationsDir, targetVersion); err != nil {
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
