// Package datastore persists the catalog: libraries, their versions and
// per-version content blobs, authors, the derived version cache, and the task
// outbox that makes child-task enqueue atomic with entity writes.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store wraps the SQLite database backing the catalog.
type Store struct {
	db *sql.DB

	// Now is the clock used for entity timestamps. Tests override it to get
	// deterministic search ranks.
	Now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS libraries (
	id TEXT PRIMARY KEY,
	scope TEXT NOT NULL,
	package TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'element',
	status TEXT NOT NULL DEFAULT 'pending',
	error TEXT,
	shallow_ingestion INTEGER NOT NULL DEFAULT 0,
	github_owner TEXT,
	github_repo TEXT,
	github_access_token TEXT,
	spdx_identifier TEXT,
	metadata TEXT,
	metadata_etag TEXT,
	metadata_updated TIMESTAMP,
	contributors TEXT,
	contributors_etag TEXT,
	contributors_updated TIMESTAMP,
	participation TEXT,
	participation_etag TEXT,
	participation_updated TIMESTAMP,
	registry_metadata TEXT,
	registry_metadata_updated TIMESTAMP,
	tags TEXT,
	tag_map TEXT,
	tags_etag TEXT,
	tags_updated TIMESTAMP,
	collection_sequence_number INTEGER NOT NULL DEFAULT 0,
	npm_package TEXT,
	migrated_from_bower INTEGER NOT NULL DEFAULT 0,
	updated TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS versions (
	library_id TEXT NOT NULL,
	tag TEXT NOT NULL,
	sha TEXT NOT NULL,
	url TEXT,
	preview INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	error TEXT,
	updated TIMESTAMP NOT NULL,
	PRIMARY KEY (library_id, tag)
);

CREATE TABLE IF NOT EXISTS contents (
	library_id TEXT NOT NULL,
	tag TEXT NOT NULL,
	role TEXT NOT NULL,
	body_text TEXT,
	body_json BLOB,
	etag TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	error TEXT,
	updated TIMESTAMP NOT NULL,
	PRIMARY KEY (library_id, tag, role)
);

CREATE TABLE IF NOT EXISTS collection_references (
	library_id TEXT NOT NULL,
	ref_id TEXT NOT NULL,
	semver TEXT,
	PRIMARY KEY (library_id, ref_id)
);

CREATE TABLE IF NOT EXISTS version_caches (
	library_id TEXT PRIMARY KEY,
	versions TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS authors (
	name TEXT PRIMARY KEY,
	metadata TEXT,
	metadata_etag TEXT,
	metadata_updated TIMESTAMP,
	status TEXT NOT NULL DEFAULT 'pending',
	error TEXT,
	updated TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sitemaps (
	kind TEXT PRIMARY KEY,
	pages TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	queue TEXT NOT NULL,
	url TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	not_before TIMESTAMP,
	created TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_queue_status ON tasks (queue, status);
`

// Open opens (creating if needed) the catalog database at path and applies
// the schema. SQLite works best with a single writer, so the connection pool
// is pinned to one connection and WAL mode is enabled.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, Now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so the search index can live in the same
// database file and inherit the single-writer connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Tx is a datastore transaction. All entity reads and writes go through one.
type Tx struct {
	tx    *sql.Tx
	ctx   context.Context
	store *Store
}

func (t *Tx) now() time.Time {
	return t.store.Now().UTC()
}

// RunInTransaction executes fn inside a transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
func (s *Store) RunInTransaction(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: tx, ctx: ctx, store: s}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed (%v) after: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullString converts "" to NULL on write.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime converts the zero time to NULL on write.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func fromNullString(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return ""
}

func fromNullTime(t sql.NullTime) time.Time {
	if t.Valid {
		return t.Time
	}
	return time.Time{}
}
