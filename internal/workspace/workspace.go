// Package workspace orchestrates the note store for the single open
// workspace: path resolution, versioned writes, front-matter policy,
// tree and search indexing, and change notification.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stenmark/dagaz/internal/apperr"
	"github.com/stenmark/dagaz/internal/index"
	"github.com/stenmark/dagaz/internal/paths"
	"github.com/stenmark/dagaz/internal/tree"
	"github.com/stenmark/dagaz/internal/versions"
	"github.com/stenmark/dagaz/internal/watcher"
	pkgconfig "github.com/stenmark/dagaz/pkg/config"
)

// NoteExt is the extension that receives front-matter treatment.
const NoteExt = ".md"

// Options configures a Store.
type Options struct {
	// MetaDir is the reserved metadata directory name, e.g. ".dagaz".
	MetaDir string
	// Ignore holds doublestar patterns excluded from tree and index walks.
	Ignore []string
	// SystemDefaults and UserDefaults seed synthesized front matter;
	// user keys override system keys.
	SystemDefaults map[string]any
	UserDefaults   map[string]any
	// Debounce overrides the watcher quiet period (zero = default).
	Debounce time.Duration
	// StatePath, when non-empty, is where the last-opened workspace
	// root is persisted for the next launch.
	StatePath string
}

// session holds everything scoped to one open workspace. Switching
// workspaces replaces the session wholesale; callbacks from a previous
// session carry its generation and are discarded when stale.
type session struct {
	root     string
	gen      uint64
	resolver *paths.Resolver
	versions *versions.Store
	tree     *tree.Indexer
	db       *index.DB
	watch    *watcher.Watcher
}

// Store is the workspace orchestrator. All mutating operations are
// serialized by one mutex per process; the design assumes a single
// logical writer per workspace.
type Store struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	sess *session
	gen  atomic.Uint64

	subMu     sync.Mutex
	nextSub   int
	treeSubs  map[int]func(*tree.Snapshot)
	indexSubs map[int]func(indexed int)
}

// persistedState is the last-workspace file payload.
type persistedState struct {
	LastWorkspace string `yaml:"last_workspace"`
}

// NewStore creates a Store with no workspace open.
func NewStore(opts Options, logger *slog.Logger) *Store {
	if opts.MetaDir == "" {
		opts.MetaDir = ".dagaz"
	}
	return &Store{
		opts:      opts,
		logger:    logger,
		treeSubs:  make(map[int]func(*tree.Snapshot)),
		indexSubs: make(map[int]func(int)),
	}
}

// Open opens the workspace rooted at root, closing any previous
// workspace first. The directory and metadata subtree are created when
// missing, the tree index is built synchronously, the watcher starts,
// and a full search-index rebuild is scheduled in the background so Open
// does not block on a re-scan.
func (s *Store) Open(root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	gen := s.gen.Add(1)

	resolver, err := paths.NewResolver(root, s.opts.MetaDir)
	if err != nil {
		return err
	}
	abs := resolver.Root()
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("workspace: create root: %w", err)
	}
	if err := os.MkdirAll(resolver.MetaRoot(), 0o755); err != nil {
		return fmt.Errorf("workspace: create metadata dir: %w", err)
	}

	treeIx := tree.NewIndexer(abs, s.opts.MetaDir, s.opts.Ignore, s.logger)
	treeIx.LoadCache()

	db, err := index.Open(filepath.Join(resolver.MetaRoot(), "search.db"), abs, s.opts.MetaDir, s.opts.Ignore, s.logger)
	if err != nil {
		return err
	}

	sess := &session{
		root:     abs,
		gen:      gen,
		resolver: resolver,
		versions: versions.New(filepath.Join(resolver.MetaRoot(), "previous")),
		tree:     treeIx,
		db:       db,
		watch:    watcher.New(abs, s.opts.MetaDir, s.opts.Debounce, s.logger),
	}
	s.sess = sess

	snap, err := treeIx.Build()
	if err != nil {
		s.closeLocked()
		return err
	}

	if err := sess.watch.Start(func() { s.onExternalChange(gen) }); err != nil {
		// Degraded mode: manual refresh still rebuilds the tree.
		s.logger.Warn("workspace: watcher start failed", slog.String("root", abs), slog.String("error", err.Error()))
	}

	go s.rebuildSearchIndex(sess)

	s.persistLastWorkspace(abs)
	s.logger.Info("workspace: opened", slog.String("root", abs))

	go s.notifyTree(snap)
	return nil
}

// Close closes the current workspace, stopping the watcher and
// releasing the index store. No-op when nothing is open.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.gen.Add(1)
}

func (s *Store) closeLocked() {
	if s.sess == nil {
		return
	}
	s.sess.watch.Stop()
	if err := s.sess.db.Close(); err != nil {
		s.logger.Warn("workspace: close index failed", slog.String("error", err.Error()))
	}
	s.logger.Info("workspace: closed", slog.String("root", s.sess.root))
	s.sess = nil
}

// Root returns the absolute root of the open workspace, or "" when
// closed.
func (s *Store) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return ""
	}
	return s.sess.root
}

// DisplayName returns the base name of the open workspace root.
func (s *Store) DisplayName() string {
	root := s.Root()
	if root == "" {
		return ""
	}
	return filepath.Base(root)
}

// LastWorkspace returns the persisted last-opened root, or "".
func (s *Store) LastWorkspace() string {
	if s.opts.StatePath == "" {
		return ""
	}
	var st persistedState
	if err := pkgconfig.Load(s.opts.StatePath, &st); err != nil {
		return ""
	}
	return st.LastWorkspace
}

func (s *Store) persistLastWorkspace(root string) {
	if s.opts.StatePath == "" {
		return
	}
	if err := pkgconfig.Save(s.opts.StatePath, &persistedState{LastWorkspace: root}); err != nil {
		s.logger.Warn("workspace: persist state failed", slog.String("error", err.Error()))
	}
}

// rebuildSearchIndex runs the full background rebuild scheduled by Open.
// Results from a stale generation (the workspace was switched while the
// rebuild ran) are discarded.
func (s *Store) rebuildSearchIndex(sess *session) {
	sum, err := sess.db.Rebuild()
	if err != nil {
		s.logger.Warn("workspace: search rebuild failed", slog.String("error", err.Error()))
		return
	}
	if s.gen.Load() != sess.gen {
		return
	}
	s.notifyIndex(sum.Indexed)
}

// onExternalChange handles a debounced watcher notification: reconcile
// the search index, rebuild the tree, and notify subscribers. The
// generation check discards callbacks from a closed session, and the
// store mutex guarantees rebuilds never interleave with mutations.
func (s *Store) onExternalChange(gen uint64) {
	if s.gen.Load() != gen {
		return
	}
	s.mu.Lock()
	sess := s.sess
	if sess == nil || sess.gen != gen {
		s.mu.Unlock()
		return
	}
	changed := sess.db.Reconcile()
	snap, err := sess.tree.Build()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("workspace: tree rebuild failed", slog.String("error", err.Error()))
		return
	}
	if s.gen.Load() != gen {
		// A stale rebuild must not be published over the new workspace.
		return
	}
	s.notifyTree(snap)
	if changed > 0 {
		s.notifyIndex(changed)
	}
}

// SubscribeTree registers a callback invoked with every new tree
// snapshot. The returned function unsubscribes.
func (s *Store) SubscribeTree(fn func(*tree.Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.treeSubs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.treeSubs, id)
	}
}

// SubscribeIndex registers a callback invoked after search-index
// rebuilds with the number of documents touched.
func (s *Store) SubscribeIndex(fn func(indexed int)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.indexSubs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.indexSubs, id)
	}
}

func (s *Store) notifyTree(snap *tree.Snapshot) {
	s.subMu.Lock()
	subs := make([]func(*tree.Snapshot), 0, len(s.treeSubs))
	for _, fn := range s.treeSubs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) notifyIndex(indexed int) {
	s.subMu.Lock()
	subs := make([]func(int), 0, len(s.indexSubs))
	for _, fn := range s.indexSubs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(indexed)
	}
}

// currentSession returns the open session or an error when closed.
func (s *Store) currentSession() (*session, error) {
	if s.sess == nil {
		return nil, fmt.Errorf("workspace: no workspace open: %w", apperr.ErrIndexUnavailable)
	}
	return s.sess, nil
}
