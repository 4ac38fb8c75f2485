// Package sqlstore implements ports.Database over jmoiron/sqlx, supporting
// Postgres (DB_DRIVER=postgres, lib/pq) in production and modernc.org/sqlite
// (DB_DRIVER=sqlite) as the zero-dependency default and test fixture. The
// SQL schema migration runner itself is an external collaborator (spec.md
// §1); Open builds the sqlite schema in place with CREATE TABLE IF NOT
// EXISTS for that default/test path, and assumes Postgres is pre-migrated.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/pkg/metrics"
	"github.com/pkgmirror/core/internal/ports"
)

// Store implements ports.Database. Every query is written with "?"
// bindvars and rebound per-dialect via sqlx.Rebind, so the same SQL serves
// both drivers except for schema bootstrap.
type Store struct {
	db *sqlx.DB
}

// Open connects to either driver, ping-checks, and — for sqlite only —
// ensures the schema exists.
func Open(driver, dsn string) (*Store, error) {
	var driverName string
	switch driver {
	case "postgres":
		driverName = "postgres"
	case "sqlite":
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("sqlstore: unknown driver %q", driver)
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: connect: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db}
	if driver == "sqlite" {
		if _, err := db.Exec(schemaSQLite); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlstore: bootstrap schema: %w", err)
		}
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

var _ ports.Database = (*Store)(nil)

// observeQuery times one Store method, recorded under operation (select,
// insert, update, upsert, delete) on DBQueryDurationSeconds. Call with
// defer at the top of the method.
func observeQuery(operation string) func() {
	start := time.Now()
	return func() {
		metrics.DBQueryDurationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS repositories (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	source_kind TEXT NOT NULL,
	credential_kind TEXT NOT NULL DEFAULT 'none',
	credentials_ciphertext BLOB,
	filter TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT,
	last_synced_at INTEGER,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tokens (
	id TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	hash TEXT NOT NULL UNIQUE,
	permissions TEXT NOT NULL,
	rate_limit_max INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	expires_at INTEGER,
	last_used_at INTEGER
);

CREATE TABLE IF NOT EXISTS packages (
	id TEXT PRIMARY KEY,
	repo_id TEXT NOT NULL,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	proxy_dist_url TEXT NOT NULL,
	source_dist_url TEXT,
	dist_reference TEXT,
	metadata_json TEXT NOT NULL DEFAULT '{}',
	description TEXT,
	license_json TEXT,
	type TEXT,
	homepage TEXT,
	released_at INTEGER,
	created_at INTEGER NOT NULL,
	UNIQUE(name, version)
);

CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	repo_id TEXT NOT NULL,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	size_bytes INTEGER,
	download_count INTEGER NOT NULL DEFAULT 0,
	last_downloaded_at INTEGER,
	created_at INTEGER NOT NULL,
	UNIQUE(repo_id, name, version)
);
`
