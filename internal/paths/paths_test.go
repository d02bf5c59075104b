package paths

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stenmark/dagaz/internal/apperr"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(t.TempDir(), ".dagaz")
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestResolve_Simple(t *testing.T) {
	r := testResolver(t)
	abs, err := r.Resolve("notes/recon.md", false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(r.Root(), "notes", "recon.md")
	if abs != want {
		t.Errorf("abs = %q, want %q", abs, want)
	}
}

func TestResolve_TraversalBlocked(t *testing.T) {
	r := testResolver(t)
	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"a/../../b.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := r.Resolve(p, false); !errors.Is(err, apperr.ErrInvalidPath) {
			t.Errorf("Resolve(%q) = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestResolve_MetaRestricted(t *testing.T) {
	r := testResolver(t)
	if _, err := r.Resolve(".dagaz/search.db", false); !errors.Is(err, apperr.ErrRestrictedPath) {
		t.Errorf("expected ErrRestrictedPath, got %v", err)
	}
	if _, err := r.Resolve(".dagaz/chat/s.json", true); err != nil {
		t.Errorf("allowMeta should permit metadata paths, got %v", err)
	}
}

func TestResolve_DotPrefixNotMeta(t *testing.T) {
	// A sibling whose name merely starts with the meta dir name is fine.
	r := testResolver(t)
	if _, err := r.Resolve(".dagaz-backup/x.md", false); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRel_PosixSeparators(t *testing.T) {
	r := testResolver(t)
	abs := filepath.Join(r.Root(), "a", "b", "c.md")
	rel, err := r.Rel(abs)
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	if rel != "a/b/c.md" {
		t.Errorf("rel = %q, want a/b/c.md", rel)
	}
}

func TestInMeta(t *testing.T) {
	r := testResolver(t)
	if !r.InMeta(".dagaz/index.json") {
		t.Error("expected InMeta for metadata child")
	}
	if r.InMeta("notes/a.md") {
		t.Error("unexpected InMeta for regular path")
	}
}

func TestIsDescendant(t *testing.T) {
	cases := []struct {
		ancestor, candidate string
		want                bool
	}{
		{"folder", "folder", true},
		{"folder", "folder/sub", true},
		{"folder", "folder/sub/deep.md", true},
		{"folder", "folder2", false},
		{"folder", "other/folder", false},
	}
	for _, c := range cases {
		if got := IsDescendant(c.ancestor, c.candidate); got != c.want {
			t.Errorf("IsDescendant(%q, %q) = %v, want %v", c.ancestor, c.candidate, got, c.want)
		}
	}
}

func TestNewResolver_BadMetaDir(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b"} {
		if _, err := NewResolver(t.TempDir(), name); err == nil {
			t.Errorf("expected error for metaDir %q", name)
		}
	}
}
