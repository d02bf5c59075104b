// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Dagaz workspace tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stenmark/dagaz/internal/workspace"
)

// Server wraps the MCP server with Dagaz workspace tools.
type Server struct {
	mcp   *server.MCPServer
	store *workspace.Store
}

// New creates a new MCP server with all workspace tools registered.
func New(store *workspace.Store) *Server {
	s := &Server{store: store}

	s.mcp = server.NewMCPServer(
		"Dagaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_workspace",
		mcp.WithDescription("Full-text search over workspace file names, bodies and front matter."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchWorkspace)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a workspace file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the file (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("write_note",
		mcp.WithDescription("Write a Markdown note at the specified path. Missing YAML front matter "+
			"is added automatically (title and timestamps); existing front matter is preserved. "+
			"The previous version is snapshotted and can be restored with undo_note. "+
			"Read the contract first via the get_note_contract tool or the dagaz://note-format resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the note (e.g. folder/note.md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the Dagaz note format contract")),
	), s.writeNote)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List all files in the workspace, depth-first, folders before files."),
		mcp.WithString("folder", mcp.Description("Optional folder prefix to filter by (empty for all)")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("undo_note",
		mcp.WithDescription("Restore the previous version of a note. The undone content is "+
			"snapshotted first, so the undo itself can be undone once."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path of the note to restore")),
	), s.undoNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the canonical Dagaz note format contract. "+
			"Call this before creating or updating notes to ensure correct structure."),
	), s.getNoteContract)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource("dagaz://note-format", "Note Format Contract",
			mcp.WithResourceDescription("Canonical Markdown note format that workspace notes follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchWorkspace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.store.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := s.store.Read(path, false)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (s *Server) writeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	final, err := s.store.Write(path, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(final), nil
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := ""
	if f, err := req.RequireString("folder"); err == nil {
		folder = strings.TrimSuffix(f, "/")
	}

	snap, err := s.store.List(false, false)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var paths []string
	for _, p := range snap.Files {
		if folder != "" && p != folder && !strings.HasPrefix(p, folder+"/") {
			continue
		}
		paths = append(paths, p)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) undoNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	restored, err := s.store.Undo(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(restored), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "dagaz://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
