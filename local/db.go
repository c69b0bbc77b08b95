package local

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to dsn with driver, waits for the database to answer and
// applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*bun.DB, error) {
	driverName := driver
	if driver == DriverSQLite || driver == "" {
		driver = DriverSQLite
		driverName = sqliteshim.ShimName
	}

	sqldb, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to open database").
			WithMetadata(map[string]any{"driver": driver})
	}

	if driver == DriverSQLite {
		// in memory databases vanish with their last connection
		sqldb.SetMaxOpenConns(1)
	}

	db, err := NewDB(sqldb, driver)
	if err != nil {
		sqldb.Close()
		return nil, err
	}

	if err := ping(ctx, sqldb); err != nil {
		db.Close()
		return nil, err
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewDB wraps sqldb with the bun dialect matching driver.
func NewDB(sqldb *sql.DB, driver string) (*bun.DB, error) {
	switch driver {
	case DriverSQLite, "":
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, goerrors.New("unsupported database driver", goerrors.CategoryBadInput).
			WithTextCode("UNSUPPORTED_DRIVER").
			WithMetadata(map[string]any{"driver": driver})
	}
}

// ping waits for the database to be ready, backing off between attempts.
func ping(ctx context.Context, db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= 10; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return goerrors.Wrap(ctx.Err(), goerrors.CategoryExternal, "database ping cancelled")
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "database ping timeout")
}
