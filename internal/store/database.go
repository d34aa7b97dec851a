package store

import (
	"context"
	"embed"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/fortuna/pennant/internal/platform/logging"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Database wraps the PostgreSQL connection pool.
type Database struct {
	conn   *sqlx.DB
	logger *logging.Logger
}

// NewDatabase opens the pool and verifies connectivity.
func NewDatabase(ctx context.Context, dsn string, logger *logging.Logger) (*Database, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	d := &Database{conn: db, logger: logger.Named("store")}
	d.logger.Info("database connected", "max_open_conns", 20)
	return d, nil
}

// Close closes the pool.
func (db *Database) Close() error {
	if db.conn == nil {
		return nil
	}
	db.logger.Info("database closing")
	return db.conn.Close()
}

// DB returns the sqlx handle for queries.
func (db *Database) DB() *sqlx.DB {
	return db.conn
}

// HealthCheck pings the database.
func (db *Database) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// newMigrator opens a migrator over the embedded SQL files. It uses its own
// connection so closing it leaves the pool alone.
func newMigrator(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "create migrator")
	}
	return m, nil
}

// Migrate applies pending migrations against dsn.
func Migrate(dsn string, logger *logging.Logger) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migration changes")
			return nil
		}
		return errors.Wrap(err, "apply migrations")
	}

	version, _, _ := m.Version()
	logger.Info("migrations applied", "version", version)
	return nil
}

// MigrateDown rolls back steps migrations.
func MigrateDown(dsn string, steps int, logger *logging.Logger) error {
	if steps <= 0 {
		return errors.Newf("down steps must be > 0, got %d", steps)
	}
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrapf(err, "roll back %d migration(s)", steps)
	}
	return nil
}

// MigrationVersion reports the applied version. ok is false before the first migration.
func MigrationVersion(dsn string, logger *logging.Logger) (version uint, dirty bool, ok bool, err error) {
	m, err := newMigrator(dsn)
	if err != nil {
		return 0, false, false, err
	}
	defer closeMigrator(m, logger)

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, errors.Wrap(err, "read migration version")
	}
	return version, dirty, true, nil
}

func closeMigrator(m *migrate.Migrate, logger *logging.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("close migration source", "error", srcErr)
	}
	if dbErr != nil {
		logger.Warn("close migration db", "error", dbErr)
	}
}
