package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stenmark/dagaz/internal/testutil"
	"github.com/stenmark/dagaz/internal/workspace"
)

func testServer(t *testing.T) (*Server, *workspace.Store) {
	t.Helper()
	store, _ := testutil.Workspace(t)
	return New(store), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so the tool
	// handler functions are exercised directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_workspace":
		result, err = srv.searchWorkspace(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "write_note":
		result, err = srv.writeNote(ctx, req)
	case "list_files":
		result, err = srv.listFiles(ctx, req)
	case "undo_note":
		result, err = srv.undoNote(ctx, req)
	case "get_note_contract":
		result, err = srv.getNoteContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestWriteAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "write_note", map[string]interface{}{
		"path":    "test.md",
		"content": "# Test\nHello",
	})
	final := resultText(r)
	if !strings.Contains(final, "title: test") {
		t.Errorf("write result missing synthesized front matter: %q", final)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"path": "test.md"})
	if resultText(r) != final {
		t.Error("read must return the stored final content")
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error result for missing note")
	}
}

func TestListFiles(t *testing.T) {
	srv, store := testServer(t)
	if _, err := store.Write("a.md", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Write("sub/b.md", "b"); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "list_files", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "a.md") || !strings.Contains(text, "sub/b.md") {
		t.Errorf("list = %q", text)
	}

	r = callTool(t, srv, "list_files", map[string]interface{}{"folder": "sub"})
	text = resultText(r)
	if strings.Contains(text, "a.md") && !strings.HasPrefix(text, "sub/") {
		t.Errorf("filtered list leaked other folders: %q", text)
	}
}

func TestUndoNote(t *testing.T) {
	srv, store := testServer(t)
	if _, err := store.Write("u.md", "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Write("u.md", "second"); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "undo_note", map[string]interface{}{"path": "u.md"})
	if r.IsError {
		t.Fatalf("undo failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "first") {
		t.Errorf("restored = %q", resultText(r))
	}

	// No history left beyond the redo snapshot chain start.
	if _, err := store.Write("fresh.md", "only"); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, srv, "undo_note", map[string]interface{}{"path": "fresh.md"})
	if !r.IsError {
		t.Error("undo without history should return an error result")
	}
}

func TestSearchWorkspace(t *testing.T) {
	srv, store := testServer(t)
	if _, err := store.Write("recon.md", "Found open port 22 on target"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		r := callTool(t, srv, "search_workspace", map[string]interface{}{"query": "port"})
		if strings.Contains(resultText(r), "recon.md") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("search never returned the hit: %q", resultText(r))
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestNoteContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_note_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "created_timestamp") {
		t.Error("contract should document the synthesized front matter keys")
	}
}
