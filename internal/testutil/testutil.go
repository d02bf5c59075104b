// Package testutil provides shared test helpers for setting up workspaces.
package testutil

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stenmark/dagaz/internal/workspace"
)

// Logger returns a logger that only surfaces errors, keeping test output quiet.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Workspace creates a temporary workspace with an opened store that is
// automatically closed. The returned string is the workspace root.
func Workspace(t *testing.T) (*workspace.Store, string) {
	t.Helper()
	root := t.TempDir()
	store := workspace.NewStore(workspace.Options{
		MetaDir:  ".dagaz",
		Debounce: 50 * time.Millisecond,
	}, Logger())
	if err := store.Open(root); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(store.Close)
	return store, root
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
