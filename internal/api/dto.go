package api

import (
	"github.com/stenmark/dagaz/internal/chat"
	"github.com/stenmark/dagaz/internal/index"
)

// WorkspaceResponse describes the currently open workspace.
type WorkspaceResponse struct {
	Root string `json:"root" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// OpenWorkspaceRequest asks the server to switch workspaces.
type OpenWorkspaceRequest struct {
	Path string `json:"path" example:"/home/user/notes" validate:"required"`
}

// FileResponse carries a text file's stored content.
type FileResponse struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// BinaryResponse carries a binary file as base64 with a sniffed MIME type.
type BinaryResponse struct {
	Path    string `json:"path" validate:"required"`
	MIME    string `json:"mime" example:"image/png" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// WriteFileRequest is the request body for writing a file.
type WriteFileRequest struct {
	Content string `json:"content" example:"# Hello\nWorld"`
}

// CreateRequest asks for a new file or folder at a path.
type CreateRequest struct {
	Path string `json:"path" example:"notes/idea" validate:"required"`
}

// CreateResponse reports the path actually created.
type CreateResponse struct {
	Path string `json:"path" example:"notes/idea.md" validate:"required"`
}

// MoveRequest asks to move or rename a file or folder.
type MoveRequest struct {
	Source      string `json:"source" example:"old.md" validate:"required"`
	Destination string `json:"destination" example:"archive/new.md" validate:"required"`
}

// UndoRequest asks to restore a file's previous version.
type UndoRequest struct {
	Path string `json:"path" example:"notes/hello.md" validate:"required"`
}

// ImportRequest asks to copy an external file into the workspace.
type ImportRequest struct {
	Source      string `json:"source" example:"/tmp/report.md" validate:"required"`
	Destination string `json:"destination" example:"inbox/report.md" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// ChatListResponse wraps chat session summaries.
type ChatListResponse struct {
	Sessions []chat.Summary `json:"sessions" validate:"required"`
}
