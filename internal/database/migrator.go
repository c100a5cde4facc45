package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/helixir/publication-aggregator/internal/observability"
	"github.com/helixir/publication-aggregator/migrations"
)

// migrationsTable is the bookkeeping table golang-migrate writes to.
const migrationsTable = "schema_migrations"

// Migrator applies the batch store schema.
type Migrator struct {
	migrate *migrate.Migrate
	sqlDB   *sql.DB
	logger  zerolog.Logger
}

// NewMigrator reads migration files from dir.
func NewMigrator(db *DB, dir string, logger zerolog.Logger) (*Migrator, error) {
	if err := checkDB(db); err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, errors.New("migrations path is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations path validation failed: %w", err)
	}
	return openMigrator(db, os.DirFS(dir), logger)
}

// NewEmbeddedMigrator uses the migrations compiled into the binary.
func NewEmbeddedMigrator(db *DB, logger zerolog.Logger) (*Migrator, error) {
	if err := checkDB(db); err != nil {
		return nil, err
	}
	return openMigrator(db, migrations.FS, logger)
}

func checkDB(db *DB) error {
	if db == nil {
		return errors.New("database is required")
	}
	if db.pool == nil {
		return errors.New("database pool not initialized")
	}
	return nil
}

func openMigrator(db *DB, fsys fs.FS, logger zerolog.Logger) (*Migrator, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}

	// golang-migrate speaks database/sql; borrow connections from the pool.
	sqlDB := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = src.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = observability.NewPrintfLogger(logger, "migrate", zerolog.DebugLevel)

	return &Migrator{migrate: m, sqlDB: sqlDB, logger: logger}, nil
}

// apply runs one migrate operation. Having nothing to do is not an error.
func (m *Migrator) apply(op string, fn func() error) error {
	log := m.logger.With().Str("operation", op).Logger()
	log.Info().Msg("migrating batch store schema")

	err := fn()
	switch {
	case err == nil:
		version, dirty, _ := m.migrate.Version()
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("migration finished")
		return nil
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, fs.ErrNotExist):
		log.Info().Msg("schema already at target version")
		return nil
	default:
		return fmt.Errorf("migrate %s: %w", op, err)
	}
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	return m.apply("up", m.migrate.Up)
}

// Down rolls back every migration.
func (m *Migrator) Down() error {
	return m.apply("down", m.migrate.Down)
}

// Steps moves n migrations forward, or back when n is negative.
func (m *Migrator) Steps(n int) error {
	return m.apply(fmt.Sprintf("steps %+d", n), func() error { return m.migrate.Steps(n) })
}

// Version reports the applied version and whether the last run left it dirty.
func (m *Migrator) Version() (uint, bool, error) {
	return m.migrate.Version()
}

// Force records version as applied without running anything, clearing a
// dirty state left by a failed migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing migration version")
	return m.migrate.Force(version)
}

// Close releases the migration source and the borrowed connections.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	var sqlErr error
	if m.sqlDB != nil {
		sqlErr = m.sqlDB.Close()
	}
	if err := errors.Join(srcErr, dbErr, sqlErr); err != nil {
		return fmt.Errorf("failed to close migrator: %w", err)
	}
	return nil
}
