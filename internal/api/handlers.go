package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stenmark/dagaz/internal/apperr"
	"github.com/stenmark/dagaz/internal/chat"
	"github.com/stenmark/dagaz/internal/sse"
	"github.com/stenmark/dagaz/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	store  *workspace.Store
	chats  *chat.Store
	broker *sse.Broker
}

// NewHandler creates a new Handler. broker may be nil when SSE is disabled.
func NewHandler(store *workspace.Store, chats *chat.Store, broker *sse.Broker) *Handler {
	return &Handler{store: store, chats: chats, broker: broker}
}

// filePath extracts the file path from the URL (everything after the route
// prefix). Supports encoded slashes from generated clients (e.g. notes%2Fa.md).
func filePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// errStatus maps the error taxonomy onto HTTP statuses.
func errStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrInvalidPath):
		return http.StatusBadRequest, "invalid path"
	case errors.Is(err, apperr.ErrRestrictedPath):
		return http.StatusForbidden, "path is restricted"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, apperr.ErrNoPreviousVersion):
		return http.StatusConflict, "no previous version"
	case errors.Is(err, apperr.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, "no workspace open"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, msg := errStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody(msg))
}

func (h *Handler) publish(kind, path string) {
	if h.broker != nil {
		h.broker.PublishFileEvent(kind, path)
	}
}

// Workspace handles GET /api/workspace.
func (h *Handler) Workspace(w http.ResponseWriter, r *http.Request) {
	root := h.store.Root()
	if root == "" {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("no workspace open"))
		return
	}
	writeJSON(w, http.StatusOK, WorkspaceResponse{Root: root, Name: h.store.DisplayName()})
}

// OpenWorkspace handles POST /api/workspace.
func (h *Handler) OpenWorkspace(w http.ResponseWriter, r *http.Request) {
	var req OpenWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.store.Open(req.Path); err != nil {
		h.fail(w, "open workspace", err)
		return
	}
	writeJSON(w, http.StatusOK, WorkspaceResponse{Root: h.store.Root(), Name: h.store.DisplayName()})
}

// Tree handles GET /api/tree.
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeHidden := q.Get("hidden") == "true"
	includeMeta := q.Get("meta") == "true"

	snap, err := h.store.List(includeHidden, includeMeta)
	if err != nil {
		h.fail(w, "list tree", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetFile handles GET /api/files/*.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	content, err := h.store.Read(path, false)
	if err != nil {
		h.fail(w, "read file", err)
		return
	}
	writeJSON(w, http.StatusOK, FileResponse{Path: path, Content: content})
}

// GetBinary handles GET /api/binary/*.
func (h *Handler) GetBinary(w http.ResponseWriter, r *http.Request) {
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	bin, err := h.store.ReadBinary(path)
	if err != nil {
		h.fail(w, "read binary", err)
		return
	}
	writeJSON(w, http.StatusOK, BinaryResponse{Path: path, MIME: bin.MIME, Content: bin.Content})
}

// PutFile handles PUT /api/files/*.
func (h *Handler) PutFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req WriteFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	final, err := h.store.Write(path, req.Content)
	if err != nil {
		h.fail(w, "write file", err)
		return
	}
	h.publish("updated", path)
	writeJSON(w, http.StatusOK, FileResponse{Path: path, Content: final})
}

// CreateFile handles POST /api/files.
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	rel, err := h.store.Create(req.Path)
	if err != nil {
		h.fail(w, "create file", err)
		return
	}
	h.publish("created", rel)
	writeJSON(w, http.StatusCreated, CreateResponse{Path: rel})
}

// CreateFolder handles POST /api/folders.
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.store.CreateFolder(req.Path); err != nil {
		h.fail(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateResponse{Path: req.Path})
}

// DeleteFile handles DELETE /api/files/*.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.store.Delete(path); err != nil {
		h.fail(w, "delete file", err)
		return
	}
	h.publish("deleted", path)
	w.WriteHeader(http.StatusNoContent)
}

// MoveFile handles POST /api/move.
func (h *Handler) MoveFile(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" || req.Destination == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source and destination are required"))
		return
	}
	if err := h.store.Move(req.Source, req.Destination); err != nil {
		h.fail(w, "move file", err)
		return
	}
	h.publish("deleted", req.Source)
	h.publish("created", req.Destination)
	w.WriteHeader(http.StatusNoContent)
}

// UndoFile handles POST /api/undo.
func (h *Handler) UndoFile(w http.ResponseWriter, r *http.Request) {
	var req UndoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	restored, err := h.store.Undo(req.Path)
	if err != nil {
		h.fail(w, "undo file", err)
		return
	}
	h.publish("updated", req.Path)
	writeJSON(w, http.StatusOK, FileResponse{Path: req.Path, Content: restored})
}

// ImportFile handles POST /api/import.
func (h *Handler) ImportFile(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" || req.Destination == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source and destination are required"))
		return
	}
	if err := h.store.Import(req.Source, req.Destination); err != nil {
		h.fail(w, "import file", err)
		return
	}
	h.publish("created", req.Destination)
	writeJSON(w, http.StatusCreated, CreateResponse{Path: req.Destination})
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.store.Search(q, limit)
	if err != nil {
		h.fail(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// ListChats handles GET /api/chat/sessions.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.chats.List()
	if err != nil {
		h.fail(w, "list chats", err)
		return
	}
	writeJSON(w, http.StatusOK, ChatListResponse{Sessions: summaries})
}

// GetChat handles GET /api/chat/sessions/{id}.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	sess, err := h.chats.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get chat", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SaveChat handles POST /api/chat/sessions.
func (h *Handler) SaveChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var sess chat.Session
	if err := json.NewDecoder(r.Body).Decode(&sess); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	saved, err := h.chats.Save(&sess)
	if err != nil {
		h.fail(w, "save chat", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteChat handles DELETE /api/chat/sessions/{id}.
func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.chats.Delete(chi.URLParam(r, "id")); err != nil {
		h.fail(w, "delete chat", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
