package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// sources
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schooldesk/portal/pkg/logger"
	"go.uber.org/zap"
)

// MigrationsTable keeps the portal's schema version apart from other
// services sharing the database.
const MigrationsTable = "portal_schema_migrations"

// Migrator applies the media schema from a golang-migrate source such as
// "file://migrations".
type Migrator struct {
	m    *migrate.Migrate
	pool *pgxpool.Pool
}

// NewMigrator connects with the same TLS rules as NewPool.
func NewMigrator(ctx context.Context, databaseURL, source string, log *zap.Logger) (*Migrator, error) {
	pool, err := NewPool(ctx, PoolConfig{URL: databaseURL, MaxConns: 2})
	if err != nil {
		return nil, err
	}

	driver, err := postgres.WithInstance(OpenDB(pool), &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to open migration source %s: %w", source, err)
	}
	m.Log = migrateLogger{log: logger.OrNop(log)}

	return &Migrator{m: m, pool: pool}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (mg *Migrator) Up() error {
	return ignoreNoChange(mg.m.Up())
}

// Down rolls back steps migrations.
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	return ignoreNoChange(mg.m.Steps(-steps))
}

// Version reports the applied version. ok is false on an empty database.
func (mg *Migrator) Version() (version uint, dirty, ok bool, err error) {
	version, dirty, err = mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, err
	}
	return version, dirty, true, nil
}

// Close releases the source and the connection pool.
func (mg *Migrator) Close() error {
	srcErr, _ := mg.m.Close()
	mg.pool.Close()
	return srcErr
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// migrateLogger routes golang-migrate's progress lines to zap at debug level.
type migrateLogger struct {
	log *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...), zap.String("component", "migrate"))
}

func (l migrateLogger) Verbose() bool {
	return l.log.Core().Enabled(zap.DebugLevel)
}
