// Package migrations runs golang-migrate against the execution journal database.
// Migrations come from the SQL files embedded in the binary unless a directory
// is given.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migrations loader
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	dbmigrations "github.com/coachpo/ctpgate/db/migrations"
	"github.com/coachpo/ctpgate/internal/observability"
)

const embeddedSource = "embedded"

var (
	errNotDirectory = errors.New("migrations path must be a directory")
	errSteps        = errors.New("rollback steps must be > 0")

	migrationsCounter   metric.Int64Counter
	migrationsCounterMu sync.Once
)

// Apply brings the database reachable via dsn up to the latest migration. An
// empty dir selects the embedded migrations.
func Apply(ctx context.Context, dsn, dir string, logger observability.Logger) error {
	return run(ctx, dsn, dir, logger, "up", func(m *migrate.Migrate) error { return m.Up() })
}

// Rollback reverts the given number of migrations.
func Rollback(ctx context.Context, dsn, dir string, steps int, logger observability.Logger) error {
	if steps <= 0 {
		return errSteps
	}
	return run(ctx, dsn, dir, logger, "down", func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

func run(ctx context.Context, dsn, dir string, logger observability.Logger, direction string, step func(*migrate.Migrate) error) error {
	if logger == nil {
		logger = observability.Log()
	}
	source, err := resolveSource(dir)
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migrations connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("database migrations close", observability.Field{Key: "error", Value: cerr})
		}
	}()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migrations database: %w", err)
	}

	driver, err := pgxv5.WithInstance(db, &pgxv5.Config{})
	if err != nil {
		return fmt.Errorf("initialise pgx v5 driver: %w", err)
	}
	m, err := source.open(driver)
	if err != nil {
		return fmt.Errorf("initialise migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			logger.Error("database migrations source close", observability.Field{Key: "error", Value: sourceErr})
		}
		if dbErr != nil {
			logger.Error("database migrations db close", observability.Field{Key: "error", Value: dbErr})
		}
	}()

	logger.Info("running database migrations",
		observability.Field{Key: "direction", Value: direction},
		observability.Field{Key: "source", Value: source.name})

	if err := step(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			recordMigrationMetric(ctx, direction, "noop", source.name)
			logger.Info("database migrations up-to-date")
			return nil
		}
		recordMigrationMetric(ctx, direction, "failed", source.name)
		return fmt.Errorf("%s migrations: %w", direction, err)
	}
	recordMigrationMetric(ctx, direction, "applied", source.name)
	logger.Info("database migrations applied", observability.Field{Key: "direction", Value: direction})
	return nil
}

type migrationSource struct {
	name string
	open func(driver database.Driver) (*migrate.Migrate, error)
}

func resolveSource(dir string) (migrationSource, error) {
	if strings.TrimSpace(dir) == "" {
		return migrationSource{
			name: embeddedSource,
			open: func(driver database.Driver) (*migrate.Migrate, error) {
				src, err := iofs.New(dbmigrations.Files, ".")
				if err != nil {
					return nil, err
				}
				return migrate.NewWithInstance("iofs", src, "pgx5", driver)
			},
		}, nil
	}
	resolved, err := resolveDir(dir)
	if err != nil {
		return migrationSource{}, err
	}
	return migrationSource{
		name: resolved,
		open: func(driver database.Driver) (*migrate.Migrate, error) {
			return migrate.NewWithDatabaseInstance(fileURL(resolved), "pgx5", driver)
		},
	}, nil
}

func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(strings.TrimSpace(dir))
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("migrations directory: %w", err)
		}
		return "", fmt.Errorf("stat migrations directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("migrations directory: %w", errNotDirectory)
	}
	return abs, nil
}

func fileURL(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return u.String()
}

func recordMigrationMetric(ctx context.Context, direction, result, source string) {
	migrationsCounterMu.Do(func() {
		counter, err := otel.Meter("persistence.migrations").Int64Counter("ctpgate_journal_migrations_total",
			metric.WithDescription("Migration runs executed via golang-migrate"),
			metric.WithUnit("{run}"))
		if err == nil {
			migrationsCounter = counter
		}
	})
	if migrationsCounter == nil {
		return
	}
	migrationsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("result", result),
		attribute.String("source", source),
	))
}
