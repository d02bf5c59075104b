package index

import (
	"fmt"
	"strings"
	"time"
)

// FileRow represents one document record in the files table.
type FileRow struct {
	Path        string
	Filename    string
	Ext         string
	Size        int64
	Checksum    string
	FrontMatter string
	ModifiedAt  time.Time
	IndexedAt   time.Time
}

// SearchResult is one search hit. Rank ascends with worse relevance;
// ties break on path lexical order.
type SearchResult struct {
	Path     string  `json:"path"`
	Filename string  `json:"filename"`
	Snippet  string  `json:"snippet"`
	Rank     float64 `json:"rank"`
}

// UpsertFile inserts or replaces a document record and its full-text
// entry within one transaction. The FTS entry is deleted and re-inserted
// rather than updated; inverted indexes require it.
func (db *DB) UpsertFile(row FileRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO files (path, filename, ext, size, checksum, frontmatter, body, modified_at, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename    = excluded.filename,
			ext         = excluded.ext,
			size        = excluded.size,
			checksum    = excluded.checksum,
			frontmatter = excluded.frontmatter,
			body        = excluded.body,
			modified_at = excluded.modified_at,
			indexed_at  = excluded.indexed_at
	`, row.Path, row.Filename, row.Ext, row.Size, row.Checksum, row.FrontMatter, body, row.ModifiedAt, row.IndexedAt)
	if err != nil {
		return fmt.Errorf("index: upsert file: %w", err)
	}

	if err := ftsUpsert(tx, row.Path, row.Filename, body, row.FrontMatter); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveFile deletes a document record and its full-text entry. Removing
// a path that was never indexed is a no-op, not an error.
func (db *DB) RemoveFile(rel string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, rel)
	if _, err := tx.Exec(`DELETE FROM files WHERE path = ?`, rel); err != nil {
		return fmt.Errorf("index: delete file: %w", err)
	}
	return tx.Commit()
}

// RemovePrefix deletes every record under the given directory path,
// used when a folder is deleted or moved.
func (db *DB) RemovePrefix(rel string) error {
	prefix := strings.TrimSuffix(rel, "/") + "/"
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeletePrefix(tx, prefix)
	if _, err := tx.Exec(`DELETE FROM files WHERE substr(path, 1, ?) = ?`, len(prefix), prefix); err != nil {
		return fmt.Errorf("index: delete prefix: %w", err)
	}
	return tx.Commit()
}

// Clear removes every document record and full-text entry.
func (db *DB) Clear() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsClear(tx)
	if _, err := tx.Exec(`DELETE FROM files`); err != nil {
		return fmt.Errorf("index: clear: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a path, or empty string
// when the path is not indexed.
func (db *DB) GetChecksum(rel string) (string, error) {
	var cs string
	if err := db.conn.QueryRow(`SELECT checksum FROM files WHERE path = ?`, rel).Scan(&cs); err != nil {
		return "", nil // not indexed
	}
	return cs, nil
}

// AllChecksums returns path→checksum for every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM files`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Count returns the number of indexed documents.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// substringSearch is the degraded-but-available mode: a simple substring
// match over filename and path, used when the full-text query cannot be
// executed.
func (db *DB) substringSearch(query string, limit int) ([]SearchResult, error) {
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT path, filename, substr(body, 1, 200)
		FROM files
		WHERE filename LIKE ? OR path LIKE ?
		ORDER BY path
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: substring search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Filename, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
