//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search degrades to LIKE over the files table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _, _ string) error {
	// Body already lives in the files table; nothing extra to maintain.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

func ftsDeletePrefix(_ *sql.Tx, _ string) {}

func ftsClear(_ *sql.Tx) {}

// Search performs a LIKE-based search when FTS5 is not compiled in.
// A row matches when any whitespace term appears in the filename, body,
// or front matter, mirroring the FTS5 OR query.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return []SearchResult{}, nil
	}

	var where []string
	var args []any
	for _, t := range terms {
		where = append(where, `(filename LIKE ? OR body LIKE ? OR frontmatter LIKE ?)`)
		like := "%" + t + "%"
		args = append(args, like, like, like)
	}
	args = append(args, limit)

	rows, err := db.conn.Query(`
		SELECT path, filename, substr(body, 1, 200)
		FROM files
		WHERE `+strings.Join(where, " OR ")+`
		ORDER BY path
		LIMIT ?
	`, args...)
	if err != nil {
		return db.substringSearch(query, limit)
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
