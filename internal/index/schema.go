// Package index maintains the SQLite-backed full-text index of a
// workspace: one row per document plus an FTS5 entry (optional build
// tag) whose lifecycle is tied 1:1 to the row.
package index

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS files (
	path        TEXT PRIMARY KEY,
	filename    TEXT NOT NULL DEFAULT '',
	ext         TEXT NOT NULL DEFAULT '',
	size        INTEGER NOT NULL DEFAULT 0,
	checksum    TEXT NOT NULL DEFAULT '',
	frontmatter TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	modified_at DATETIME,
	indexed_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// optionalColumns lists columns added after the first released schema,
// with their ALTER TABLE definitions. Existing index stores are upgraded
// in place instead of being rebuilt from scratch.
var optionalColumns = map[string]string{
	"checksum":    `ALTER TABLE files ADD COLUMN checksum TEXT NOT NULL DEFAULT ''`,
	"frontmatter": `ALTER TABLE files ADD COLUMN frontmatter TEXT NOT NULL DEFAULT ''`,
	"indexed_at":  `ALTER TABLE files ADD COLUMN indexed_at DATETIME`,
}

// DB wraps a sql.DB with workspace-index operations. It is scoped to a
// single open workspace.
type DB struct {
	conn    *sql.DB
	root    string // absolute workspace root
	metaDir string
	ignore  []string
	logger  *slog.Logger
}

// Open opens (or creates) the index store at dsn, applies the schema,
// and upgrades older stores in place. Idempotent.
func Open(dsn, root, metaDir string, ignore []string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn, root: root, metaDir: metaDir, ignore: ignore, logger: logger}, nil
}

// migrate adds any optional column missing from an older files table.
func migrate(conn *sql.DB) error {
	rows, err := conn.Query(`PRAGMA table_info(files)`)
	if err != nil {
		return err
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for col, stmt := range optionalColumns {
		if existing[col] {
			continue
		}
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
