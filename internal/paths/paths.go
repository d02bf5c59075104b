// Package paths resolves workspace-relative names to absolute on-disk
// paths, rejecting traversal outside the workspace root and guarding the
// reserved metadata subtree.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stenmark/dagaz/internal/apperr"
)

// Resolver maps workspace-relative names onto absolute paths. It is a
// pure function of (root, metaDir, input) and performs no I/O.
type Resolver struct {
	root    string // absolute workspace root
	metaDir string // reserved metadata directory name, e.g. ".dagaz"
}

// NewResolver creates a Resolver rooted at the given directory. The root
// is resolved to an absolute path but is not required to exist yet.
func NewResolver(root, metaDir string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("paths: resolve root: %w", err)
	}
	if metaDir == "" || strings.ContainsRune(metaDir, os.PathSeparator) || metaDir == "." || metaDir == ".." {
		return nil, fmt.Errorf("paths: invalid metadata directory name: %q", metaDir)
	}
	return &Resolver{root: abs, metaDir: metaDir}, nil
}

// Root returns the absolute workspace root.
func (r *Resolver) Root() string { return r.root }

// MetaDir returns the reserved metadata directory name.
func (r *Resolver) MetaDir() string { return r.metaDir }

// MetaRoot returns the absolute path of the metadata subtree.
func (r *Resolver) MetaRoot() string { return filepath.Join(r.root, r.metaDir) }

// Resolve maps rel onto an absolute path under the workspace root.
// It fails with apperr.ErrInvalidPath when the result escapes the root
// (".." traversal or absolute-path injection), and with
// apperr.ErrRestrictedPath when the result falls inside the metadata
// subtree and allowMeta is false.
func (r *Resolver) Resolve(rel string, allowMeta bool) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("paths: absolute path %q: %w", rel, apperr.ErrInvalidPath)
	}
	abs := filepath.Join(r.root, cleaned)
	if abs != r.root && !strings.HasPrefix(abs, r.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("paths: %q escapes workspace root: %w", rel, apperr.ErrInvalidPath)
	}
	if !allowMeta && r.inMetaAbs(abs) {
		return "", fmt.Errorf("paths: %q targets metadata subtree: %w", rel, apperr.ErrRestrictedPath)
	}
	return abs, nil
}

// Rel converts an absolute path under the root back into the workspace-
// relative form with POSIX separators (the canonical document key).
func (r *Resolver) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("paths: %q outside workspace: %w", abs, apperr.ErrInvalidPath)
	}
	return filepath.ToSlash(rel), nil
}

// InMeta reports whether the relative path lies inside the metadata
// subtree.
func (r *Resolver) InMeta(rel string) bool {
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
	return cleaned == r.metaDir || strings.HasPrefix(cleaned, r.metaDir+"/")
}

func (r *Resolver) inMetaAbs(abs string) bool {
	meta := r.MetaRoot()
	return abs == meta || strings.HasPrefix(abs, meta+string(os.PathSeparator))
}

// IsDescendant reports whether candidate equals ancestor or lies beneath
// it. Both arguments are workspace-relative paths; comparison is done on
// normalized POSIX separators. Used by move to reject self-containing
// moves (a folder into itself or its own subtree).
func IsDescendant(ancestor, candidate string) bool {
	a := filepath.ToSlash(filepath.Clean(filepath.FromSlash(ancestor)))
	c := filepath.ToSlash(filepath.Clean(filepath.FromSlash(candidate)))
	return c == a || strings.HasPrefix(c, a+"/")
}
