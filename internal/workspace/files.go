package workspace

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/stenmark/dagaz/internal/apperr"
	"github.com/stenmark/dagaz/internal/frontmatter"
	"github.com/stenmark/dagaz/internal/index"
	"github.com/stenmark/dagaz/internal/paths"
	"github.com/stenmark/dagaz/internal/tree"
)

// imageMIMEs maps recognized image extensions for binary reads.
var imageMIMEs = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

// BinaryFile is the payload returned by ReadBinary.
type BinaryFile struct {
	MIME    string `json:"mime"`
	Content string `json:"content"` // base64-encoded
}

func isNote(rel string) bool {
	return strings.EqualFold(path.Ext(rel), NoteExt)
}

// Read returns the text content of a workspace file. A vanished file is
// reported as apperr.ErrNotFound, distinct from other I/O failures.
func (s *Store) Read(rel string, allowMeta bool) (string, error) {
	s.mu.Lock()
	sess, err := s.currentSession()
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	abs, err := sess.resolver.Resolve(rel, allowMeta)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("workspace: read %s: %w", rel, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("workspace: read %s: %w", rel, err)
	}
	return string(data), nil
}

// ReadBinary returns a file as base64 plus a MIME type inferred from the
// extension. Unknown extensions get a generic binary type.
func (s *Store) ReadBinary(rel string) (*BinaryFile, error) {
	s.mu.Lock()
	sess, err := s.currentSession()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	abs, err := sess.resolver.Resolve(rel, false)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("workspace: read %s: %w", rel, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("workspace: read %s: %w", rel, err)
	}
	mime, ok := imageMIMEs[strings.ToLower(path.Ext(rel))]
	if !ok {
		mime = "application/octet-stream"
	}
	return &BinaryFile{MIME: mime, Content: base64.StdEncoding.EncodeToString(data)}, nil
}

// Write persists content to a workspace file: front-matter policy for
// note files, a version snapshot when existing content changes, an
// incremental index update, and a tree rebuild. It returns the final
// stored content (possibly front-matter-augmented) so the caller's
// buffer can be resynchronized.
func (s *Store) Write(rel string, content string) (final string, err error) {
	var snap *tree.Snapshot
	defer func() { s.publishTree(snap) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.currentSession()
	if err != nil {
		return "", err
	}
	abs, err := sess.resolver.Resolve(rel, false)
	if err != nil {
		return "", err
	}
	relKey, err := sess.resolver.Rel(abs)
	if err != nil {
		return "", err
	}

	var previous string
	existed := false
	if data, readErr := os.ReadFile(abs); readErr == nil {
		previous = string(data)
		existed = true
	} else if !os.IsNotExist(readErr) {
		return "", fmt.Errorf("workspace: read previous %s: %w", relKey, readErr)
	}

	final = content
	if isNote(relKey) {
		final = frontmatter.Apply(relKey, content, previous, s.opts.SystemDefaults, s.opts.UserDefaults, time.Now())
	}

	if existed && previous != final {
		if err := sess.versions.Snapshot(relKey, []byte(previous)); err != nil {
			return "", err
		}
	}
	if err := atomicWrite(abs, []byte(final)); err != nil {
		return "", err
	}
	s.indexOne(sess, abs)
	snap = s.rebuildTreeLocked(sess)
	return final, nil
}

// Create makes a new note with synthesized front matter. Names without
// the note extension are auto-suffixed with it. Returns the final
// relative path.
func (s *Store) Create(rel string) (finalRel string, err error) {
	var snap *tree.Snapshot
	defer func() { s.publishTree(snap) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.currentSession()
	if err != nil {
		return "", err
	}
	if !isNote(rel) {
		rel += NoteExt
	}
	abs, err := sess.resolver.Resolve(rel, false)
	if err != nil {
		return "", err
	}
	relKey, err := sess.resolver.Rel(abs)
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(abs); statErr == nil {
		return "", fmt.Errorf("workspace: create %s: %w", relKey, apperr.ErrAlreadyExists)
	}

	content := frontmatter.Apply(relKey, "", "", s.opts.SystemDefaults, s.opts.UserDefaults, time.Now())
	if err := atomicWrite(abs, []byte(content)); err != nil {
		return "", err
	}
	s.indexOne(sess, abs)
	snap = s.rebuildTreeLocked(sess)
	return relKey, nil
}

// CreateFolder makes a directory (recursively).
func (s *Store) CreateFolder(rel string) (err error) {
	var snap *tree.Snapshot
	defer func() { s.publishTree(snap) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.currentSession()
	if err != nil {
		return err
	}
	abs, err := sess.resolver.Resolve(rel, false)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(abs); statErr == nil {
		return fmt.Errorf("workspace: create folder %s: %w", rel, apperr.ErrAlreadyExists)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("workspace: create folder %s: %w", rel, err)
	}
	snap = s.rebuildTreeLocked(sess)
	return nil
}

// Delete removes a file or recursively removes a directory, along with
// the corresponding search-index entries.
func (s *Store) Delete(rel string) (err error) {
	var snap *tree.Snapshot
	defer func() { s.publishTree(snap) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.currentSession()
	if err != nil {
		return err
	}
	abs, err := sess.resolver.Resolve(rel, false)
	if err != nil {
		return err
	}
	relKey, err := sess.resolver.Rel(abs)
	if err != nil {
		return err
	}

	info, statErr := os.Stat(abs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return fmt.Errorf("workspace: delete %s: %w", relKey, apperr.ErrNotFound)
		}
		return fmt.Errorf("workspace: delete %s: %w", relKey, statErr)
	}

	if info.IsDir() {
		if err := os.RemoveAll(abs); err != nil {
			return fmt.Errorf("workspace: delete %s: %w", relKey, err)
		}
		if idxErr := sess.db.RemovePrefix(relKey); idxErr != nil {
			s.logger.Warn("workspace: index cleanup failed", slog.String("path", relKey), slog.String("error", idxErr.Error()))
		}
	} else {
		if err := os.Remove(abs); err != nil {
			return fmt.Errorf("workspace: delete %s: %w", relKey, err)
		}
		if idxErr := sess.db.RemoveFile(relKey); idxErr != nil {
			s.logger.Warn("workspace: index cleanup failed", slog.String("path", relKey), slog.String("error", idxErr.Error()))
		}
	}
	snap = s.rebuildTreeLocked(sess)
	return nil
}

// Move renames a file or folder within the workspace. Moving a folder
// into itself or its own descendant is rejected.
func (s *Store) Move(srcRel, dstRel string) (err error) {
	var snap *tree.Snapshot
	defer func() { s.publishTree(snap) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.currentSession()
	if err != nil {
		return err
	}
	srcAbs, err := sess.resolver.Resolve(srcRel, false)
	if err != nil {
		return err
	}
	dstAbs, err := sess.resolver.Resolve(dstRel, false)
	if err != nil {
		return err
	}
	srcKey, err := sess.resolver.Rel(srcAbs)
	if err != nil {
		return err
	}
	dstKey, err := sess.resolver.Rel(dstAbs)
	if err != nil {
		return err
	}

	info, statErr := os.Stat(srcAbs)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return fmt.Errorf("workspace: move %s: %w", srcKey, apperr.ErrNotFound)
		}
		return fmt.Errorf("workspace: move %s: %w", srcKey, statErr)
	}
	if _, statErr := os.Stat(dstAbs); statErr == nil {
		return fmt.Errorf("workspace: move to %s: %w", dstKey, apperr.ErrAlreadyExists)
	}
	if paths.IsDescendant(srcKey, dstKey) {
		return fmt.Errorf("workspace: move %s into %s is self-containing: %w", srcKey, dstKey, apperr.ErrInvalidPath)
	}

	if err := os.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
		return fmt.Errorf("workspace: move mkdir: %w", err)
	}
	if err := os.Rename(srcAbs, dstAbs); err != nil {
		return fmt.Errorf("workspace: move %s: %w", srcKey, err)
	}

	// A moved document changes identity: remove the old key, index the
	// new one. Directories reindex every file underneath.
	if info.IsDir() {
		if idxErr := sess.db.RemovePrefix(srcKey); idxErr != nil {
			s.logger.Warn("workspace: index cleanup failed", slog.String("path", srcKey), slog.String("error", idxErr.Error()))
		}
		s.indexSubtree(sess, dstAbs)
	} else {
		if idxErr := sess.db.RemoveFile(srcKey); idxErr != nil {
			s.logger.Warn("workspace: index cleanup failed", slog.String("path", srcKey), slog.String("error", idxErr.Error()))
		}
		s.indexOne(sess, dstAbs)
	}
	snap = s.rebuildTreeLocked(sess)
	return nil
}

// Undo restores the most recent version snapshot of a note, re-indexes
// the restored content, and returns it.
func (s *Store) Undo(rel string) (restored string, err error) {
	var snap *tree.Snapshot
	defer func() { s.publishTree(snap) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.currentSession()
	if err != nil {
		return "", err
	}
	abs, err := sess.resolver.Resolve(rel, false)
	if err != nil {
		return "", err
	}
	relKey, err := sess.resolver.Rel(abs)
	if err != nil {
		return "", err
	}

	current, readErr := os.ReadFile(abs)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return "", fmt.Errorf("workspace: undo %s: %w", relKey, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("workspace: undo %s: %w", relKey, readErr)
	}

	data, err := sess.versions.Undo(relKey, current)
	if err != nil {
		return "", err
	}
	if err := atomicWrite(abs, data); err != nil {
		return "", err
	}
	s.indexOne(sess, abs)
	snap = s.rebuildTreeLocked(sess)
	return string(data), nil
}

// Import copies an external file into the workspace at dstRel.
func (s *Store) Import(srcAbs, dstRel string) (err error) {
	var snap *tree.Snapshot
	defer func() { s.publishTree(snap) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.currentSession()
	if err != nil {
		return err
	}
	dstAbs, err := sess.resolver.Resolve(dstRel, false)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(dstAbs); statErr == nil {
		return fmt.Errorf("workspace: import to %s: %w", dstRel, apperr.ErrAlreadyExists)
	}

	data, err := os.ReadFile(srcAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("workspace: import %s: %w", srcAbs, apperr.ErrNotFound)
		}
		return fmt.Errorf("workspace: import %s: %w", srcAbs, err)
	}
	if err := atomicWrite(dstAbs, data); err != nil {
		return err
	}
	s.indexOne(sess, dstAbs)
	snap = s.rebuildTreeLocked(sess)
	return nil
}

// List returns the tree snapshot. The default view comes from the
// cache; inclusive views are walked on demand and never persisted.
func (s *Store) List(includeHidden, includeMeta bool) (*tree.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.currentSession()
	if err != nil {
		return nil, err
	}
	if includeHidden || includeMeta {
		return sess.tree.Walk(includeHidden, includeMeta)
	}
	if snap := sess.tree.Cached(); snap != nil {
		return snap, nil
	}
	return sess.tree.Build()
}

// Search runs a ranked full-text query. When no workspace is open it
// fails with apperr.ErrIndexUnavailable; callers that prefer a degraded
// empty result can treat that error accordingly.
func (s *Store) Search(query string, limit int) ([]index.SearchResult, error) {
	s.mu.Lock()
	sess, err := s.currentSession()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	db := sess.db
	s.mu.Unlock()
	return db.Search(query, limit)
}

// indexOne updates the search index for a single file; failures are
// logged, never surfaced, so a write cannot fail after content is
// persisted.
func (s *Store) indexOne(sess *session, abs string) {
	if err := sess.db.IndexFile(abs); err != nil {
		s.logger.Warn("workspace: index update failed", slog.String("path", abs), slog.String("error", err.Error()))
	}
}

// indexSubtree indexes every file beneath abs (after a directory move).
func (s *Store) indexSubtree(sess *session, abs string) {
	_ = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return nil
		}
		s.indexOne(sess, p)
		return nil
	})
}

// rebuildTreeLocked rebuilds the tree cache; the returned snapshot is
// published by the caller after the store mutex is released.
func (s *Store) rebuildTreeLocked(sess *session) *tree.Snapshot {
	snap, err := sess.tree.Build()
	if err != nil {
		s.logger.Warn("workspace: tree rebuild failed", slog.String("error", err.Error()))
		return nil
	}
	return snap
}

func (s *Store) publishTree(snap *tree.Snapshot) {
	if snap != nil {
		s.notifyTree(snap)
	}
}
