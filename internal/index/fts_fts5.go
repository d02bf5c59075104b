//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

const ftsCreateSQL = `
	CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
		path UNINDEXED,
		filename,
		body,
		frontmatter,
		tokenize = 'unicode61 remove_diacritics 2'
	);
`

func initFTS(conn *sql.DB) error {
	if _, err := conn.Exec(ftsCreateSQL); err != nil {
		return err
	}
	// An older files_fts with a different column set cannot be altered
	// in place: drop and recreate it, then repopulate from the files
	// table so document records survive the upgrade.
	rows, err := conn.Query(`SELECT filename, body, frontmatter FROM files_fts LIMIT 0`)
	if err == nil {
		rows.Close()
		return nil
	}
	if _, err := conn.Exec(`DROP TABLE files_fts`); err != nil {
		return err
	}
	if _, err := conn.Exec(ftsCreateSQL); err != nil {
		return err
	}
	_, err = conn.Exec(`INSERT INTO files_fts (path, filename, body, frontmatter)
		SELECT path, filename, body, frontmatter FROM files`)
	return err
}

// ftsUpsert replaces the full-text entry for a path. FTS5 has no native
// upsert for indexed content; delete+insert is the required pattern.
func ftsUpsert(tx *sql.Tx, path, filename, body, frontmatter string) error {
	_, _ = tx.Exec(`DELETE FROM files_fts WHERE path = ?`, path)
	_, err := tx.Exec(`INSERT INTO files_fts (path, filename, body, frontmatter) VALUES (?, ?, ?, ?)`,
		path, filename, body, frontmatter)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM files_fts WHERE path = ?`, path)
}

func ftsDeletePrefix(tx *sql.Tx, prefix string) {
	_, _ = tx.Exec(`DELETE FROM files_fts WHERE substr(path, 1, ?) = ?`, len(prefix), prefix)
}

func ftsClear(tx *sql.Tx) {
	_, _ = tx.Exec(`DELETE FROM files_fts`)
}

// buildMatch turns whitespace-separated terms into an FTS5 prefix query.
// Terms are OR'd so partial matches still surface; bm25 ranking favors
// documents matching more terms.
func buildMatch(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"*`)
	}
	return strings.Join(quoted, " OR ")
}

// Search runs a ranked FTS5 prefix query with highlighted snippets.
// Rank ascends (lower is better); ties break on path lexical order so a
// fixed index state and query always yield the same ordering. Malformed
// queries fall back to a substring match instead of failing.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return []SearchResult{}, nil
	}
	rows, err := db.conn.Query(`
		SELECT path,
		       filename,
		       snippet(files_fts, 2, '<b>', '</b>', '...', 64),
		       rank
		FROM files_fts
		WHERE files_fts MATCH ?
		ORDER BY rank, path
		LIMIT ?
	`, buildMatch(terms), limit)
	if err != nil {
		return db.substringSearch(query, limit)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Filename, &r.Snippet, &r.Rank); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
