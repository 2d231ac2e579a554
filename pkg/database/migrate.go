package database

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrDirtySchema means a previous migration failed halfway and the schema needs a manual fix.
var ErrDirtySchema = errors.New("database schema is dirty")

type schemaVersioner interface {
	Version() (version uint, dirty bool, err error)
}

// RunMigrations brings the wallet schema up to the newest migration in migrationsPath. Startup stops
// on a dirty schema instead of migrating on top of it.
func RunMigrations(logger *slog.Logger, databaseURL, migrationsPath string) error {
	info, err := os.Stat(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("migrations path %s is not a directory", migrationsPath)
	}

	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(absPath), databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	from, err := checkSchema(m)
	if err != nil {
		return err
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("Database schema is up to date", "version", from)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to migrate schema from version %d: %w", from, err)
	}

	to, err := checkSchema(m)
	if err != nil {
		return err
	}

	logger.Info("Migrations applied", "from_version", from, "to_version", to)
	return nil
}

// checkSchema returns the applied schema version, 0 for an empty database.
func checkSchema(m schemaVersioner) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("%w at version %d: repair the failed migration, then run `migrate force %d`",
			ErrDirtySchema, version, version-1)
	}
	return version, nil
}
