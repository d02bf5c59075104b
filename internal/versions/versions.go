// Package versions stores immutable snapshots of prior document content
// under the metadata subtree, supporting single-step undo.
package versions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stenmark/dagaz/internal/apperr"
)

// Store keeps per-document snapshot directories beneath dir
// (conventionally <meta>/previous). Snapshots accumulate and are never
// pruned here; retention is an operator concern.
type Store struct {
	dir string
}

// New creates a Store rooted at dir. The directory is created lazily on
// first snapshot.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// sanitize turns a relative document path into a single filesystem-safe
// directory name.
var sanitizer = strings.NewReplacer("/", "__", "\\", "__", ":", "-")

func sanitize(rel string) string {
	return sanitizer.Replace(filepath.ToSlash(rel))
}

// stampName returns a filesystem-safe, lexicographically sortable
// snapshot filename for the given instant.
func stampName(t time.Time) string {
	s := t.UTC().Format("2006-01-02T15:04:05.000000000Z")
	s = strings.NewReplacer(":", "-", ".", "-").Replace(s)
	return s + ".md"
}

func (s *Store) docDir(rel string) string {
	return filepath.Join(s.dir, sanitize(rel))
}

// Snapshot captures the previous content of rel before an overwrite.
// Callers invoke it only when previous content existed and differs from
// the new content.
func (s *Store) Snapshot(rel string, prev []byte) error {
	dir := s.docDir(rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("versions: mkdir: %w", err)
	}
	name := filepath.Join(dir, stampName(time.Now()))
	if err := os.WriteFile(name, prev, 0o644); err != nil {
		return fmt.Errorf("versions: write snapshot: %w", err)
	}
	return nil
}

// Undo returns the most recent snapshot of rel. Before returning it, the
// document's current content is captured as a new snapshot so the undo
// itself can be undone once. The caller is responsible for writing the
// restored content back to the live document and re-indexing it.
func (s *Store) Undo(rel string, current []byte) ([]byte, error) {
	latest, err := s.latest(rel)
	if err != nil {
		return nil, err
	}
	restored, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("versions: read snapshot: %w", err)
	}
	if err := s.Snapshot(rel, current); err != nil {
		return nil, err
	}
	return restored, nil
}

// latest returns the path of the lexicographically-last snapshot, the
// most recent one since stamp names sort chronologically.
func (s *Store) latest(rel string) (string, error) {
	dir := s.docDir(rel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("versions: %s: %w", rel, apperr.ErrNoPreviousVersion)
		}
		return "", fmt.Errorf("versions: read snapshot dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("versions: %s: %w", rel, apperr.ErrNoPreviousVersion)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
