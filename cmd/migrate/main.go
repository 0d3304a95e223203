package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/schooldesk/portal/config"
	"github.com/schooldesk/portal/pkg/db"
	"github.com/schooldesk/portal/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	migrationsPath := flag.String("path", "file://migrations", "migration source URL")
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	showVersion := flag.Bool("version", false, "print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: "portal-migrate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	if cfg.Database.URL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	log.Info("Starting database migrations",
		zap.String("database", maskDatabaseURL(cfg.Database.URL)),
		zap.String("source", *migrationsPath))

	if err := migrateDatabase(context.Background(), cfg.Database.URL, *migrationsPath, *down, *showVersion, log); err != nil {
		log.Error("Migration failed", zap.Error(err))
		os.Exit(1) //nolint:gocritic // exitAfterDefer: logger flushed best-effort
	}
}

func migrateDatabase(ctx context.Context, databaseURL, source string, down int, showVersion bool, log *zap.Logger) error {
	mg, err := db.NewMigrator(ctx, databaseURL, source, log)
	if err != nil {
		return err
	}
	defer func() { _ = mg.Close() }()

	switch {
	case showVersion:
	case down > 0:
		if err := mg.Down(down); err != nil {
			return err
		}
		log.Info("Rolled back migrations", zap.Int("steps", down))
	default:
		if err := mg.Up(); err != nil {
			return err
		}
		log.Info("Database migrations completed successfully")
	}

	version, dirty, ok, err := mg.Version()
	if err != nil {
		return err
	}
	if !ok {
		log.Info("Schema is empty")
		return nil
	}
	log.Info("Schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// maskDatabaseURL hides the password in a database URL for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
