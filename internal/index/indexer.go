package index

import (
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/stenmark/dagaz/internal/checksum"
	"github.com/stenmark/dagaz/internal/frontmatter"
)

// textExts is the allow-list of extensions eligible for indexing.
var textExts = map[string]struct{}{
	".md": {}, ".txt": {}, ".json": {}, ".js": {}, ".py": {}, ".sql": {},
	".html": {}, ".css": {}, ".yaml": {}, ".yml": {}, ".sh": {}, ".bash": {},
	".xml": {}, ".csv": {},
}

// maxIndexableSize bounds memory and index growth per document.
const maxIndexableSize = 1 << 20 // 1 MiB

// RebuildSummary aggregates a bulk indexing pass for observability.
type RebuildSummary struct {
	Indexed int
	Skipped int
}

// IndexFile reads the file at abs and upserts its document record and
// full-text entry. Files outside the allow-list, over the size cap, or
// unreadable are skipped silently (logged); one bad file must never
// abort a batch. Returns an error only for index-store failures.
func (db *DB) IndexFile(abs string) error {
	rel, err := filepath.Rel(db.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	rel = filepath.ToSlash(rel)
	if rel == db.metaDir || strings.HasPrefix(rel, db.metaDir+"/") {
		return nil
	}

	ext := strings.ToLower(path.Ext(rel))
	if _, ok := textExts[ext]; !ok {
		return nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		db.logger.Warn("index: stat failed", slog.String("path", rel), slog.String("error", err.Error()))
		return nil
	}
	if info.Size() > maxIndexableSize {
		db.logger.Debug("index: skip oversized file", slog.String("path", rel), slog.Int64("size", info.Size()))
		return nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		db.logger.Warn("index: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		return nil
	}

	var fmText, body string
	if ext == ".md" {
		doc := frontmatter.Parse(string(data))
		fmText = doc.RawBlock
		body = doc.Body
	} else {
		body = string(data)
	}

	return db.UpsertFile(FileRow{
		Path:        rel,
		Filename:    path.Base(rel),
		Ext:         ext,
		Size:        info.Size(),
		Checksum:    checksum.Sum(data),
		FrontMatter: fmText,
		ModifiedAt:  info.ModTime(),
		IndexedAt:   time.Now(),
	}, body)
}

// Rebuild clears the index and re-walks the workspace root, indexing
// every eligible file. Hidden entries, the metadata subtree, and ignore
// globs are excluded; unreadable subtrees are skipped without aborting
// the walk.
func (db *DB) Rebuild() (RebuildSummary, error) {
	var sum RebuildSummary
	if err := db.Clear(); err != nil {
		return sum, err
	}
	db.walkEligible(func(abs string) {
		if err := db.IndexFile(abs); err != nil {
			db.logger.Warn("index: rebuild index failed", slog.String("path", abs), slog.String("error", err.Error()))
			sum.Skipped++
			return
		}
		sum.Indexed++
	})
	db.logger.Info("index: rebuild complete",
		slog.Int("indexed", sum.Indexed),
		slog.Int("skipped", sum.Skipped))
	return sum, nil
}

// Reconcile brings the index up to date without a full clear: changed
// files are re-indexed by checksum comparison and entries whose files
// vanished from disk are removed. Used after watcher-detected external
// changes. Returns the number of mutations applied.
func (db *DB) Reconcile() int {
	stored, err := db.AllChecksums()
	if err != nil {
		db.logger.Warn("index: reconcile checksums failed", slog.String("error", err.Error()))
		return 0
	}

	changes := 0
	seen := make(map[string]struct{}, len(stored))
	db.walkEligible(func(abs string) {
		rel, relErr := filepath.Rel(db.root, abs)
		if relErr != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		if _, ok := textExts[strings.ToLower(path.Ext(rel))]; !ok {
			return
		}
		seen[rel] = struct{}{}

		data, readErr := os.ReadFile(abs)
		if readErr != nil {
			return
		}
		if stored[rel] == checksum.Sum(data) {
			return
		}
		if err := db.IndexFile(abs); err != nil {
			db.logger.Warn("index: reconcile index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		changes++
	})

	for rel := range stored {
		if _, ok := seen[rel]; ok {
			continue
		}
		if err := db.RemoveFile(rel); err != nil {
			db.logger.Warn("index: reconcile remove failed", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		changes++
	}
	return changes
}

// walkEligible visits every indexable file under the root, applying the
// hidden/metadata/ignore exclusions and tolerating per-subtree errors.
func (db *DB) walkEligible(visit func(abs string)) {
	_ = filepath.WalkDir(db.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			db.logger.Warn("index: walk error", slog.String("path", p), slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p == db.root {
			return nil
		}
		name := d.Name()
		rel, relErr := filepath.Rel(db.root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if name == db.metaDir || strings.HasPrefix(name, ".") || db.ignoredRel(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			visit(p)
		}
		return nil
	})
}

func (db *DB) ignoredRel(rel string) bool {
	for _, pat := range db.ignore {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}
