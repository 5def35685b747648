// Package sqldb opens the SQL databases shared by the SQL rate source and
// the SQL run repository, and owns their schema.
package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"   // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() { //nolint:gochecknoinits // sqlx has no default bind type for modernc's driver name
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at_ns BIGINT NOT NULL,
		finished_at_ns BIGINT NOT NULL,
		params TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		run_id TEXT NOT NULL,
		session TEXT NOT NULL,
		epoch TEXT NOT NULL,
		trial_type TEXT NOT NULL,
		job_index INTEGER NOT NULL,
		record TEXT NOT NULL,
		PRIMARY KEY (run_id, session, epoch, trial_type, job_index)
	)`,
	`CREATE TABLE IF NOT EXISTS run_failures (
		run_id TEXT NOT NULL,
		session TEXT NOT NULL,
		epoch TEXT NOT NULL,
		trial_type TEXT NOT NULL,
		error TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS spike_counts (
		session TEXT NOT NULL,
		epoch TEXT NOT NULL,
		trial_type TEXT NOT NULL,
		neuron INTEGER NOT NULL,
		spike_count INTEGER NOT NULL,
		duration_ns BIGINT NOT NULL,
		PRIMARY KEY (session, epoch, trial_type, neuron)
	)`,
}

// Open connects to dsn with driver and applies the schema. An in-memory
// SQLite database is pinned to one connection so every query sees it.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite && strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates any missing table.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
