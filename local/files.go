package local

import (
	"context"
	"embed"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the SQL migrations of the local backend.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// Migrate applies pending migrations.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(migrationsFS); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init migrations")
	}

	if err := migrator.Lock(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to lock migrations")
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	if _, err := migrator.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to run migrations")
	}
	return nil
}
