// Package tree builds the cached directory tree index of a workspace:
// folder and file nodes in natural order, hidden entries and the
// metadata subtree excluded from the default view.
package tree

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Node types.
const (
	TypeFolder = "folder"
	TypeFile   = "file"
)

// Node is one entry in the directory tree snapshot.
type Node struct {
	Type     string  `json:"type"`
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Children []*Node `json:"children,omitempty"`
}

// Snapshot is a point-in-time view of the workspace tree plus the
// flattened depth-first file list.
type Snapshot struct {
	UpdatedAt time.Time `json:"updatedAt"`
	Tree      []*Node   `json:"tree"`
	Files     []string  `json:"files"`
}

// Indexer walks the workspace root and maintains the in-memory and
// persisted tree cache.
type Indexer struct {
	root      string
	metaDir   string
	ignore    []string // doublestar patterns matched against relative paths
	cachePath string
	logger    *slog.Logger

	mu     sync.RWMutex
	cached *Snapshot
}

// NewIndexer creates an Indexer for root. The cache file lives at
// <root>/<metaDir>/index.json.
func NewIndexer(root, metaDir string, ignore []string, logger *slog.Logger) *Indexer {
	return &Indexer{
		root:      root,
		metaDir:   metaDir,
		ignore:    ignore,
		cachePath: filepath.Join(root, metaDir, "index.json"),
		logger:    logger,
	}
}

// Build performs the default walk (hidden and metadata entries
// excluded), replaces the in-memory cache, and persists the snapshot.
// Persist failures are logged, never fatal.
func (ix *Indexer) Build() (*Snapshot, error) {
	nodes, err := ix.walk(ix.root, "", false, false)
	if err != nil {
		return nil, fmt.Errorf("tree: walk root: %w", err)
	}
	snap := &Snapshot{UpdatedAt: time.Now(), Tree: nodes, Files: Flatten(nodes)}

	ix.mu.Lock()
	ix.cached = snap
	ix.mu.Unlock()

	if err := ix.persist(snap); err != nil {
		ix.logger.Warn("tree: persist cache failed", slog.String("error", err.Error()))
	}
	return snap, nil
}

// Walk performs an on-demand walk with the requested inclusion flags.
// The result is never cached or persisted; the inclusive views are rare
// diagnostic paths.
func (ix *Indexer) Walk(includeHidden, includeMeta bool) (*Snapshot, error) {
	nodes, err := ix.walk(ix.root, "", includeHidden, includeMeta)
	if err != nil {
		return nil, fmt.Errorf("tree: walk root: %w", err)
	}
	return &Snapshot{UpdatedAt: time.Now(), Tree: nodes, Files: Flatten(nodes)}, nil
}

// Cached returns the most recent default snapshot, or nil when no build
// has happened yet.
func (ix *Indexer) Cached() *Snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.cached
}

// LoadCache restores the persisted snapshot for a fast cold start.
// Missing or corrupt cache files are not errors; the next Build
// overwrites them.
func (ix *Indexer) LoadCache() *Snapshot {
	data, err := os.ReadFile(ix.cachePath)
	if err != nil {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		ix.logger.Warn("tree: corrupt cache ignored", slog.String("path", ix.cachePath), slog.String("error", err.Error()))
		return nil
	}
	ix.mu.Lock()
	ix.cached = &snap
	ix.mu.Unlock()
	return &snap
}

func (ix *Indexer) persist(snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(ix.cachePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ix.cachePath, data, 0o644)
}

// walk recursively lists dir, applying the exclusion rules. Unreadable
// subdirectories are logged and skipped so one bad subtree cannot abort
// the whole walk.
func (ix *Indexer) walk(dir, rel string, includeHidden, includeMeta bool) ([]*Node, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var folders, files []*Node
	for _, e := range entries {
		name := e.Name()
		if name == ix.metaDir && !includeMeta {
			continue
		}
		if !includeHidden && name[0] == '.' {
			continue
		}
		childRel := path.Join(rel, name)
		if ix.ignored(childRel) {
			continue
		}
		if e.IsDir() {
			children, err := ix.walk(filepath.Join(dir, name), childRel, includeHidden, includeMeta)
			if err != nil {
				ix.logger.Warn("tree: skip unreadable dir", slog.String("path", childRel), slog.String("error", err.Error()))
				continue
			}
			folders = append(folders, &Node{Type: TypeFolder, Name: name, Path: childRel, Children: children})
		} else {
			files = append(files, &Node{Type: TypeFile, Name: name, Path: childRel})
		}
	}

	sort.Slice(folders, func(i, j int) bool { return naturalLess(folders[i].Name, folders[j].Name) })
	sort.Slice(files, func(i, j int) bool { return naturalLess(files[i].Name, files[j].Name) })
	return append(folders, files...), nil
}

func (ix *Indexer) ignored(rel string) bool {
	for _, pat := range ix.ignore {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// Flatten returns the relative paths of all file leaves, depth-first in
// tree order.
func Flatten(nodes []*Node) []string {
	var out []string
	var visit func([]*Node)
	visit = func(ns []*Node) {
		for _, n := range ns {
			if n.Type == TypeFolder {
				visit(n.Children)
			} else {
				out = append(out, n.Path)
			}
		}
	}
	visit(nodes)
	if out == nil {
		out = []string{}
	}
	return out
}

// naturalLess compares names numeric-aware, so "file2" sorts before
// "file10".
func naturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		if isDigit(a[0]) && isDigit(b[0]) {
			aNum, aRest := takeDigits(a)
			bNum, bRest := takeDigits(b)
			if c := compareNumeric(aNum, bNum); c != 0 {
				return c < 0
			}
			a, b = aRest, bRest
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func takeDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// compareNumeric compares two digit runs by value without parsing, so
// arbitrarily long runs cannot overflow.
func compareNumeric(a, b string) int {
	ta := trimLeadingZeros(a)
	tb := trimLeadingZeros(b)
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	switch {
	case ta < tb:
		return -1
	case ta > tb:
		return 1
	}
	return 0
}

func trimLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}
