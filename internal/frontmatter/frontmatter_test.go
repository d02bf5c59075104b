package frontmatter

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParse_HeaderAndBody(t *testing.T) {
	input := "---\ntitle: Hello\ntags:\n  - go\n---\n# Hello\nBody text.\n"
	doc := Parse(input)
	if !doc.HasFrontMatter {
		t.Fatal("expected front matter")
	}
	if doc.Meta["title"] != "Hello" {
		t.Errorf("title = %v", doc.Meta["title"])
	}
	if doc.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParse_NoHeader(t *testing.T) {
	doc := Parse("# Just a heading\nSome text.\n")
	if doc.HasFrontMatter || doc.Meta != nil {
		t.Errorf("unexpected front matter: %+v", doc)
	}
	if doc.Body != "# Just a heading\nSome text.\n" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParse_UnterminatedHeader(t *testing.T) {
	input := "---\ntitle: open\nno closing fence\n"
	doc := Parse(input)
	if doc.HasFrontMatter {
		t.Error("unterminated header must be treated as body")
	}
	if doc.Body != input {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParse_MalformedYAMLKeepsRawBlock(t *testing.T) {
	input := "---\n: invalid: yaml: {{{\n---\nBody\n"
	doc := Parse(input)
	if !doc.HasFrontMatter {
		t.Fatal("fences present, header must be detected")
	}
	if doc.Meta != nil {
		t.Error("malformed YAML must yield nil metadata")
	}
	if doc.RawBlock != ": invalid: yaml: {{{\n" {
		t.Errorf("raw block = %q", doc.RawBlock)
	}
}

func TestParse_StripsBOM(t *testing.T) {
	doc := Parse("\ufeff---\ntitle: bom\n---\nbody")
	if !doc.HasFrontMatter || doc.Meta["title"] != "bom" {
		t.Errorf("BOM-prefixed header not detected: %+v", doc)
	}
}

func TestSerialize_TrailingBlankLine(t *testing.T) {
	block, err := Serialize(map[string]any{"title": "X"})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !strings.HasSuffix(block, "---\n\n") {
		t.Errorf("block must end with fence and blank line, got %q", block)
	}
}

func TestRoundTrip_SemanticEquality(t *testing.T) {
	input := "---\ntitle: Round Trip\ntags:\n  - a\n  - b\ncount: 3\n---\nbody\n"
	first := Parse(input)
	block, err := Serialize(first.Meta)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	second := Parse(block + first.Body)
	if !reflect.DeepEqual(first.Meta, second.Meta) {
		t.Errorf("metadata mismatch:\n first = %#v\nsecond = %#v", first.Meta, second.Meta)
	}
}

func TestMergeDefaults_Precedence(t *testing.T) {
	system := map[string]any{"author": "sys", "kind": "note"}
	user := map[string]any{"author": "me"}
	synth := map[string]any{"title": "t"}
	got := MergeDefaults(system, user, synth)
	if got["author"] != "me" {
		t.Errorf("user must override system, got %v", got["author"])
	}
	if got["kind"] != "note" || got["title"] != "t" {
		t.Errorf("merged = %v", got)
	}
}

func TestSynthesize(t *testing.T) {
	now := time.Date(2026, 3, 9, 14, 5, 0, 0, time.Local)
	meta := Synthesize("notes/recon.md", now)
	if meta["title"] != "recon" {
		t.Errorf("title = %v", meta["title"])
	}
	if meta["created_timestamp"] != "2026-03-09 1405" {
		t.Errorf("created_timestamp = %v", meta["created_timestamp"])
	}
}

func TestApply_ContentWithHeaderUntouched(t *testing.T) {
	content := "---\ntitle: Mine\n---\nbody"
	got := Apply("a.md", content, "", nil, nil, time.Now())
	if got != content {
		t.Errorf("content with header must pass through, got %q", got)
	}
}

func TestApply_CarriesForwardParsedHeader(t *testing.T) {
	previous := "---\ntitle: Keep Me\n---\nold body\n"
	got := Apply("a.md", "new body", previous, nil, nil, time.Now())
	doc := Parse(got)
	if doc.Meta["title"] != "Keep Me" {
		t.Errorf("title = %v, want Keep Me", doc.Meta["title"])
	}
	if doc.Body != "new body" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestApply_CarriesForwardRawBlockVerbatim(t *testing.T) {
	previous := "---\n: broken: yaml: {{{\n---\nold\n"
	got := Apply("a.md", "new", previous, nil, nil, time.Now())
	if !strings.Contains(got, ": broken: yaml: {{{") {
		t.Errorf("raw block lost: %q", got)
	}
	if Parse(got).Body != "new" {
		t.Errorf("body = %q", Parse(got).Body)
	}
}

func TestApply_SynthesizesForNewFile(t *testing.T) {
	got := Apply("notes/fresh.md", "hello", "", map[string]any{"kind": "note"}, map[string]any{"author": "me"}, time.Now())
	doc := Parse(got)
	if doc.Meta["title"] != "fresh" {
		t.Errorf("title = %v", doc.Meta["title"])
	}
	if doc.Meta["kind"] != "note" || doc.Meta["author"] != "me" {
		t.Errorf("defaults not merged: %v", doc.Meta)
	}
	if doc.Body != "hello" {
		t.Errorf("body = %q", doc.Body)
	}
}
