// Package index provides a SQLite-backed query mirror of the vault:
// registered artifacts, their lineage edges, and the last checksum
// observed on disk. The manifest remains the source of truth; the
// index exists so the API and watcher can query without re-reading
// JSON files.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS artifacts (
	vault_id         TEXT PRIMARY KEY,
	file_path        TEXT NOT NULL DEFAULT '',
	checksum         TEXT NOT NULL DEFAULT '',
	current_checksum TEXT NOT NULL DEFAULT '',
	registered_at    TEXT NOT NULL DEFAULT '',
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS edges (
	predecessor TEXT NOT NULL,
	successor   TEXT NOT NULL,
	UNIQUE(predecessor, successor)
);

CREATE INDEX IF NOT EXISTS idx_edges_predecessor ON edges(predecessor);
CREATE INDEX IF NOT EXISTS idx_edges_successor ON edges(successor);
CREATE INDEX IF NOT EXISTS idx_artifacts_path ON artifacts(file_path);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
