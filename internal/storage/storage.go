// Package storage persists observation rows, team matches, trained
// encoder models and latent vectors in a single SQLite database.
package storage

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a sql.DB for the stat store.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database at the given path and applies
// the schema. Foreign keys must be enabled per connection via modernc's
// _pragma DSN syntax; without them the ON DELETE CASCADE on
// observation_values never fires and replaced observations orphan their
// old cells.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping reports whether the underlying database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
