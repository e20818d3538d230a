package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// sqliteMigrations is the ordered schema for SQLite. Every statement is
// idempotent so migrate can run on each start.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT    NOT NULL,
		email      TEXT    NOT NULL DEFAULT '',
		active     INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		code       TEXT    NOT NULL UNIQUE,
		address    TEXT    NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS visits (
		id                  TEXT     PRIMARY KEY,
		property_id         INTEGER  NOT NULL,
		agent_id            INTEGER  NOT NULL,
		client_name         TEXT     NOT NULL,
		client_phone        TEXT     NOT NULL DEFAULT '',
		client_email        TEXT     NOT NULL DEFAULT '',
		start_at            DATETIME NOT NULL,
		end_at              DATETIME NOT NULL,
		duration_minutes    INTEGER  NOT NULL CHECK (duration_minutes BETWEEN 30 AND 480),
		status              TEXT     NOT NULL CHECK (status IN ('pending', 'confirmed', 'done', 'cancelled')),
		notes               TEXT     NOT NULL DEFAULT '',
		cancellation_reason TEXT     NOT NULL DEFAULT '',
		created_at          DATETIME NOT NULL,
		updated_at          DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS visits_agent_start ON visits (agent_id, start_at)`,
	`CREATE INDEX IF NOT EXISTS visits_range ON visits (start_at, end_at)`,
	`CREATE TABLE IF NOT EXISTS visit_events (
		id          INTEGER  PRIMARY KEY AUTOINCREMENT,
		visit_id    TEXT     NOT NULL REFERENCES visits(id),
		event       TEXT     NOT NULL,
		from_status TEXT     NOT NULL DEFAULT '',
		to_status   TEXT     NOT NULL,
		details     TEXT     NOT NULL DEFAULT '{}',
		created_at  DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS visit_events_visit ON visit_events (visit_id, id)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           INTEGER  PRIMARY KEY AUTOINCREMENT,
		name         TEXT     NOT NULL,
		owner        TEXT     NOT NULL DEFAULT '',
		key_prefix   TEXT     NOT NULL,
		key_hash     TEXT     NOT NULL UNIQUE,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME
	)`,
}

// postgresMigrations mirrors sqliteMigrations for PostgreSQL.
var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS agents (
		id         BIGSERIAL   PRIMARY KEY,
		name       TEXT        NOT NULL,
		email      TEXT        NOT NULL DEFAULT '',
		active     BOOLEAN     NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS properties (
		id         BIGSERIAL   PRIMARY KEY,
		code       TEXT        NOT NULL UNIQUE,
		address    TEXT        NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS visits (
		id                  TEXT        PRIMARY KEY,
		property_id         BIGINT      NOT NULL,
		agent_id            BIGINT      NOT NULL,
		client_name         TEXT        NOT NULL,
		client_phone        TEXT        NOT NULL DEFAULT '',
		client_email        TEXT        NOT NULL DEFAULT '',
		start_at            TIMESTAMPTZ NOT NULL,
		end_at              TIMESTAMPTZ NOT NULL,
		duration_minutes    INTEGER     NOT NULL CHECK (duration_minutes BETWEEN 30 AND 480),
		status              TEXT        NOT NULL CHECK (status IN ('pending', 'confirmed', 'done', 'cancelled')),
		notes               TEXT        NOT NULL DEFAULT '',
		cancellation_reason TEXT        NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS visits_agent_start ON visits (agent_id, start_at)`,
	`CREATE INDEX IF NOT EXISTS visits_range ON visits (start_at, end_at)`,
	`CREATE TABLE IF NOT EXISTS visit_events (
		id          BIGSERIAL   PRIMARY KEY,
		visit_id    TEXT        NOT NULL REFERENCES visits(id),
		event       TEXT        NOT NULL,
		from_status TEXT        NOT NULL DEFAULT '',
		to_status   TEXT        NOT NULL,
		details     TEXT        NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS visit_events_visit ON visit_events (visit_id, id)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           BIGSERIAL   PRIMARY KEY,
		name         TEXT        NOT NULL,
		owner        TEXT        NOT NULL DEFAULT '',
		key_prefix   TEXT        NOT NULL,
		key_hash     TEXT        NOT NULL UNIQUE,
		created_at   TIMESTAMPTZ DEFAULT now(),
		last_used_at TIMESTAMPTZ
	)`,
}

// migrate runs the dialect's migrations in order.
func migrate(db *sqlx.DB, dialect Dialect) error {
	migrations := sqliteMigrations
	if dialect == Postgres {
		migrations = postgresMigrations
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	return nil
}
