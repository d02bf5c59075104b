package workspace

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stenmark/dagaz/internal/apperr"
	"github.com/stenmark/dagaz/internal/frontmatter"
	"github.com/stenmark/dagaz/internal/tree"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s := NewStore(Options{MetaDir: ".dagaz", Debounce: 50 * time.Millisecond}, quietLogger())
	if err := s.Open(root); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s, root
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
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

func snapshotCount(t *testing.T, root, sanitized string) int {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, ".dagaz", "previous", sanitized))
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatal(err)
	}
	return len(entries)
}

func TestOpen_CreatesRootAndMeta(t *testing.T) {
	root := filepath.Join(t.TempDir(), "brand-new")
	s := NewStore(Options{MetaDir: ".dagaz"}, quietLogger())
	if err := s.Open(root); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := os.Stat(filepath.Join(root, ".dagaz")); err != nil {
		t.Errorf("metadata dir missing: %v", err)
	}
	if s.DisplayName() != "brand-new" {
		t.Errorf("DisplayName = %q", s.DisplayName())
	}
}

func TestWrite_AddsFrontMatterAndReturnsFinal(t *testing.T) {
	s, _ := newStore(t)
	final, err := s.Write("a.md", "plain body")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	doc := frontmatter.Parse(final)
	if !doc.HasFrontMatter || doc.Meta["title"] != "a" {
		t.Errorf("final = %q", final)
	}
	got, err := s.Read("a.md", false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != final {
		t.Error("Read must return the stored final content")
	}
}

func TestWrite_SnapshotOnlyWhenContentChanges(t *testing.T) {
	s, root := newStore(t)
	if _, err := s.Write("a.md", "X"); err != nil {
		t.Fatal(err)
	}
	// New file: no previous content, no snapshot.
	if n := snapshotCount(t, root, "a.md"); n != 0 {
		t.Errorf("snapshots after first write = %d, want 0", n)
	}
	if _, err := s.Write("a.md", "Y"); err != nil {
		t.Fatal(err)
	}
	if n := snapshotCount(t, root, "a.md"); n != 1 {
		t.Errorf("snapshots after change = %d, want 1", n)
	}
	// Identical content: the carried-forward header makes the final
	// content byte-equal, so no snapshot is taken.
	if _, err := s.Write("a.md", "Y"); err != nil {
		t.Fatal(err)
	}
	if n := snapshotCount(t, root, "a.md"); n != 1 {
		t.Errorf("snapshots after identical write = %d, want still 1", n)
	}
}

func TestUndo_RestoresPreviousBody(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Write("a.md", "X"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write("a.md", "Y"); err != nil {
		t.Fatal(err)
	}
	restored, err := s.Undo("a.md")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if body := frontmatter.Parse(restored).Body; body != "X" {
		t.Errorf("restored body = %q, want X", body)
	}
	got, _ := s.Read("a.md", false)
	if got != restored {
		t.Error("live document must hold the restored content")
	}
}

func TestUndo_NoHistory(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Write("only-once.md", "X"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Undo("only-once.md"); !errors.Is(err, apperr.ErrNoPreviousVersion) {
		t.Errorf("err = %v, want ErrNoPreviousVersion", err)
	}
}

func TestRead_TraversalRejected(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Read("../../etc/passwd", false); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("err = %v, want ErrInvalidPath", err)
	}
}

func TestRead_NotFoundDistinguished(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Read("vanished.md", false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRead_MetaGuarded(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Read(".dagaz/index.json", false); !errors.Is(err, apperr.ErrRestrictedPath) {
		t.Errorf("err = %v, want ErrRestrictedPath", err)
	}
	// allowMeta opens the metadata zone for trusted callers.
	if _, err := s.Read(".dagaz/index.json", true); errors.Is(err, apperr.ErrRestrictedPath) {
		t.Error("allowMeta must bypass the restriction")
	}
}

func TestCreate_AutoSuffixAndCollision(t *testing.T) {
	s, _ := newStore(t)
	rel, err := s.Create("notes/idea")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rel != "notes/idea.md" {
		t.Errorf("rel = %q, want notes/idea.md", rel)
	}
	if _, err := s.Create("notes/idea.md"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestCreate_DefaultsPrecedence(t *testing.T) {
	root := t.TempDir()
	s := NewStore(Options{
		MetaDir:        ".dagaz",
		Debounce:       50 * time.Millisecond,
		SystemDefaults: map[string]any{"type": "note", "author": "sys"},
		UserDefaults:   map[string]any{"author": "me"},
	}, quietLogger())
	if err := s.Open(root); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)

	rel, err := s.Create("fresh")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	content, err := s.Read(rel, false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	doc := frontmatter.Parse(content)
	if doc.Meta["type"] != "note" {
		t.Errorf("type = %v, want system default note", doc.Meta["type"])
	}
	if doc.Meta["author"] != "me" {
		t.Errorf("author = %v, user default must override system", doc.Meta["author"])
	}
}

func TestCreateFolder(t *testing.T) {
	s, root := newStore(t)
	if err := s.CreateFolder("a/b/c"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if info, err := os.Stat(filepath.Join(root, "a", "b", "c")); err != nil || !info.IsDir() {
		t.Errorf("folder missing: %v", err)
	}
	if err := s.CreateFolder("a/b/c"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestSearch_ScenarioRecon(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Write("notes/recon.md", "Found open port 22 on target"); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		results, err := s.Search("port", 20)
		if err != nil || len(results) == 0 {
			return false
		}
		return results[0].Path == "notes/recon.md" && strings.Contains(results[0].Snippet, "port")
	}, "search for port should return notes/recon.md with a matching snippet")
}

func TestDelete_RemovesFromIndex(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Write("zap.md", "xylograph content"); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		r, err := s.Search("xylograph", 20)
		return err == nil && len(r) == 1
	}, "precondition: file should be searchable")

	if err := s.Delete("zap.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		r, err := s.Search("xylograph", 20)
		return err == nil && len(r) == 0
	}, "deleted file must not match searches")
}

func TestMove_IndexReturnsNewPath(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Write("old.md", "quokka habitat notes"); err != nil {
		t.Fatal(err)
	}
	if err := s.Move("old.md", "archive/new.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		r, err := s.Search("quokka", 20)
		return err == nil && len(r) == 1 && r[0].Path == "archive/new.md"
	}, "search must return the new path, never the old one")

	if _, err := s.Read("old.md", false); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("old path should be gone")
	}
}

func TestMove_SelfContainingRejected(t *testing.T) {
	s, _ := newStore(t)
	if err := s.CreateFolder("folder/sub"); err != nil {
		t.Fatal(err)
	}
	if err := s.Move("folder", "folder"); !errors.Is(err, apperr.ErrAlreadyExists) && !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("move onto itself: err = %v", err)
	}
	if err := s.Move("folder", "folder/sub/inner"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("move into own descendant: err = %v, want ErrInvalidPath", err)
	}
}

func TestMove_SourceMissing(t *testing.T) {
	s, _ := newStore(t)
	if err := s.Move("nope.md", "elsewhere.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestList_DefaultAndInclusive(t *testing.T) {
	s, root := newStore(t)
	if _, err := s.Write("visible.md", "x"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".hidden.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := s.List(false, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, f := range snap.Files {
		if strings.HasPrefix(filepath.Base(f), ".") || strings.HasPrefix(f, ".dagaz/") {
			t.Errorf("default listing leaked %q", f)
		}
	}

	inclusive, err := s.List(true, false)
	if err != nil {
		t.Fatalf("List inclusive: %v", err)
	}
	found := false
	for _, f := range inclusive.Files {
		if strings.HasPrefix(f, ".dagaz/") {
			t.Errorf("inclusive listing must still exclude metadata, leaked %q", f)
		}
		if f == ".hidden.md" {
			found = true
		}
	}
	if !found {
		t.Error("inclusive listing should include dotfiles")
	}
}

func TestSearch_ClosedWorkspace(t *testing.T) {
	s := NewStore(Options{MetaDir: ".dagaz"}, quietLogger())
	if _, err := s.Search("anything", 10); !errors.Is(err, apperr.ErrIndexUnavailable) {
		t.Errorf("err = %v, want ErrIndexUnavailable", err)
	}
}

func TestImport(t *testing.T) {
	s, _ := newStore(t)
	external := filepath.Join(t.TempDir(), "outside.md")
	if err := os.WriteFile(external, []byte("imported content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Import(external, "inbox/outside.md"); err != nil {
		t.Fatalf("Import: %v", err)
	}
	got, err := s.Read("inbox/outside.md", false)
	if err != nil || got != "imported content" {
		t.Errorf("Read imported = %q, %v", got, err)
	}
	if err := s.Import(external, "inbox/outside.md"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestReadBinary_MIME(t *testing.T) {
	s, root := newStore(t)
	if err := os.WriteFile(filepath.Join(root, "pic.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644); err != nil {
		t.Fatal(err)
	}
	bin, err := s.ReadBinary("pic.png")
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}
	if bin.MIME != "image/png" || bin.Content == "" {
		t.Errorf("bin = %+v", bin)
	}

	if err := os.WriteFile(filepath.Join(root, "data.bin"), []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	bin, err = s.ReadBinary("data.bin")
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}
	if bin.MIME != "application/octet-stream" {
		t.Errorf("MIME = %q", bin.MIME)
	}
}

func TestSwitchWorkspace_ReplacesState(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	stateFile := filepath.Join(t.TempDir(), "state.yaml")
	s := NewStore(Options{MetaDir: ".dagaz", StatePath: stateFile}, quietLogger())
	if err := s.Open(rootA); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write("a-only.md", "alpha workspace"); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(rootB); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Root() != rootB {
		t.Errorf("Root = %q, want %q", s.Root(), rootB)
	}
	if s.LastWorkspace() != rootB {
		t.Errorf("LastWorkspace = %q, want %q", s.LastWorkspace(), rootB)
	}

	// The new workspace's index knows nothing about the old one.
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		r, err := s.Search("alpha", 20)
		return err == nil && len(r) == 0
	}, "workspace B search leaked workspace A content")

	if _, err := s.Read("a-only.md", false); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("workspace B should not expose workspace A files")
	}
}

func TestExternalChange_TriggersTreeNotification(t *testing.T) {
	s, root := newStore(t)

	type update struct{ files int }
	updates := make(chan update, 16)
	unsub := s.SubscribeTree(func(snap *tree.Snapshot) {
		updates <- update{files: len(snap.Files)}
	})
	defer unsub()

	// External process drops a file into the workspace.
	if err := os.WriteFile(filepath.Join(root, "external.md"), []byte("outside edit"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.files >= 1 {
				return
			}
		case <-deadline:
			t.Fatal("no tree notification after external change")
		}
	}
}
