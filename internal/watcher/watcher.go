// Package watcher observes a workspace tree for external mutations and
// collapses event bursts into single rebuild notifications.
package watcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period that must elapse after the last
// filesystem event before a rebuild is triggered.
const DefaultDebounce = 250 * time.Millisecond

// Watcher wraps a recursive fsnotify watcher with debounce. Events
// inside the metadata subtree are ignored so index caches, snapshots,
// and chat transcripts cannot trigger rebuild loops.
type Watcher struct {
	root     string
	metaAbs  string
	debounce time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// New creates a Watcher for the workspace root. Start must be called to
// begin observation.
func New(root, metaDir string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		metaAbs:  filepath.Join(root, metaDir),
		debounce: debounce,
		logger:   logger,
	}
}

// Start begins recursive observation. onChange runs on the watcher
// goroutine once per quiet period, no matter how many events arrived
// during it. A start failure leaves the workspace usable in degraded
// mode; callers log and continue.
func (w *Watcher) Start(onChange func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addDirsRecursive(fsw, w.root, w.metaAbs); err != nil {
		fsw.Close()
		return err
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	go w.run(fsw, w.done, onChange)

	w.logger.Info("watcher: started", slog.String("root", w.root))
	return nil
}

// Stop tears down observation. Safe to call when never started or
// already stopped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	close(w.done)
	_ = w.fsw.Close()
	w.fsw = nil
	w.done = nil
}

func (w *Watcher) run(fsw *fsnotify.Watcher, done chan struct{}, onChange func()) {
	// One timer per workspace, reset on each qualifying event.
	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		} else {
			timer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-done:
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return

		case <-fire:
			onChange()

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if w.inMeta(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fsw, ev.Name, w.metaAbs); addErr != nil {
						w.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				}
			}
			schedule()

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) inMeta(abs string) bool {
	return abs == w.metaAbs || strings.HasPrefix(abs, w.metaAbs+string(os.PathSeparator))
}

// addDirsRecursive adds root and all its subdirectories except the
// metadata subtree to the watch list.
func addDirsRecursive(fsw *fsnotify.Watcher, root, metaAbs string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path == metaAbs {
			return fs.SkipDir
		}
		return fsw.Add(path)
	})
}
