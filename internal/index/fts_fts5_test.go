//go:build sqlite_fts5

package index

import (
	"strings"
	"testing"
)

func TestFTS_SnippetHighlighting(t *testing.T) {
	root := t.TempDir()
	db := testDB(t, root)
	abs := writeFile(t, root, "recon.md", "Found open port 22 on target")
	if err := db.IndexFile(abs); err != nil {
		t.Fatal(err)
	}
	results, err := db.Search("port", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(results[0].Snippet, "<b>port</b>") {
		t.Errorf("snippet = %q, want highlighted port", results[0].Snippet)
	}
}

func TestFTS_PrefixMatch(t *testing.T) {
	root := t.TempDir()
	db := testDB(t, root)
	abs := writeFile(t, root, "a.md", "kubernetes deployment manifests")
	_ = db.IndexFile(abs)

	results, err := db.Search("kuber deploy", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("prefix terms should match, got %+v", results)
	}
}

func TestFTS_RankFavorsMoreTerms(t *testing.T) {
	root := t.TempDir()
	db := testDB(t, root)
	both := writeFile(t, root, "both.md", "alpha bravo together in one note")
	one := writeFile(t, root, "one.md", "alpha appears alone here")
	_ = db.IndexFile(both)
	_ = db.IndexFile(one)

	results, err := db.Search("alpha bravo", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v, want both documents", results)
	}
	if results[0].Path != "both.md" {
		t.Errorf("first hit = %s, want both.md (matches more terms)", results[0].Path)
	}
}

func TestFTS_MalformedQueryFallsBack(t *testing.T) {
	root := t.TempDir()
	db := testDB(t, root)
	abs := writeFile(t, root, "notes/weird-name.md", "content")
	_ = db.IndexFile(abs)

	// NEAR( is invalid FTS5 syntax after quoting is stripped by the
	// substring fallback; the call must not error either way.
	results, err := db.Search("weird-name", 10)
	if err != nil {
		t.Fatalf("Search must never surface query syntax errors: %v", err)
	}
	_ = results
}

func TestFTS_FrontMatterSearchable(t *testing.T) {
	root := t.TempDir()
	db := testDB(t, root)
	abs := writeFile(t, root, "meta.md", "---\ntitle: Zanzibar Plans\n---\nbody text\n")
	_ = db.IndexFile(abs)

	results, err := db.Search("zanzibar", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Path != "meta.md" {
		t.Errorf("front matter should be searchable: %+v", results)
	}
}

func TestFTS_DeterministicTieBreak(t *testing.T) {
	root := t.TempDir()
	db := testDB(t, root)
	for _, rel := range []string{"b.md", "a.md", "c.md"} {
		abs := writeFile(t, root, rel, "identical content here")
		_ = db.IndexFile(abs)
	}
	results, err := db.Search("identical", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	for i, want := range []string{"a.md", "b.md", "c.md"} {
		if results[i].Path != want {
			t.Errorf("results[%d] = %s, want %s (path tie-break)", i, results[i].Path, want)
		}
	}
}
