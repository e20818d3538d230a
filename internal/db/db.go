// Package db provides database initialization and access for the visit scheduler.
// SQLite is the default store; a postgres:// DSN selects PostgreSQL instead.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour behind a connection. The value is the
// database/sql driver name, so sqlx picks the matching bind style.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
)

// sqliteParams are applied to every pooled SQLite connection.
// _txlock=immediate takes the write lock at BEGIN so a conflict check and the
// write that follows it cannot interleave with another writer.
const sqliteParams = "_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"

// DefaultPath returns the default database path: ~/.config/vsched/visits.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vsched", "visits.db"), nil
}

// DialectFor reports which dialect a DSN selects.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// DialectOf returns the dialect of an open connection.
func DialectOf(d *sqlx.DB) Dialect {
	return Dialect(d.DriverName())
}

// Open opens (or creates) the database named by dsn and runs migrations.
// A postgres:// or postgresql:// DSN opens PostgreSQL; anything else is a
// SQLite file path whose directory is created if needed.
func Open(dsn string) (*sqlx.DB, error) {
	dialect := DialectFor(dsn)

	source := dsn
	if dialect == SQLite {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
		source = dsn + "?" + sqliteParams
	}

	db, err := sqlx.Open(string(dialect), source)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := configure(db, dialect); err != nil {
		return nil, closeWith(db, err)
	}

	if err := migrate(db, dialect); err != nil {
		return nil, closeWith(db, fmt.Errorf("running migrations: %w", err))
	}

	return db, nil
}

// configure verifies the connection and sets SQLite's journal mode.
func configure(db *sqlx.DB, dialect Dialect) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	if dialect != SQLite {
		return nil
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("executing PRAGMA journal_mode=WAL: %w", err)
	}

	return nil
}

func closeWith(db *sqlx.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return fmt.Errorf("%w (also failed to close: %v)", err, closeErr)
	}
	return err
}
