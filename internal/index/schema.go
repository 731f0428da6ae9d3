// Package index persists resolution runs in SQLite so references and
// backlinks can be served without rescanning the vault.
package index

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	started_at       DATETIME NOT NULL,
	finished_at      DATETIME NOT NULL,
	notes            INTEGER NOT NULL DEFAULT 0,
	references_count INTEGER NOT NULL DEFAULT 0,
	failures         INTEGER NOT NULL DEFAULT 0,
	case_insensitive INTEGER NOT NULL DEFAULT 0,
	link_to_self     INTEGER NOT NULL DEFAULT 0,
	vault_checksum   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS notes (
	path     TEXT PRIMARY KEY,
	run_id   TEXT NOT NULL,
	title    TEXT NOT NULL DEFAULT '',
	aliases  TEXT NOT NULL DEFAULT '[]',
	checksum TEXT NOT NULL DEFAULT '',
	status   TEXT NOT NULL DEFAULT 'ok',
	error    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS refs (
	seq          INTEGER NOT NULL,
	run_id       TEXT NOT NULL,
	source       TEXT NOT NULL,
	target       TEXT NOT NULL,
	matched_text TEXT NOT NULL,
	start_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_refs_source ON refs(source);
CREATE INDEX IF NOT EXISTS idx_refs_target ON refs(target);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB

	syncMu sync.Mutex // one Sync at a time
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
