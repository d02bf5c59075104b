package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stenmark/dagaz/internal/chat"
	"github.com/stenmark/dagaz/internal/sse"
	"github.com/stenmark/dagaz/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// broker, if non-nil, is mounted at GET /events inside the auth group
// and receives file change events from the mutating handlers.
func NewRouter(store *workspace.Store, chats *chat.Store, broker *sse.Broker, authEnabled bool, token string) chi.Router {
	h := NewHandler(store, chats, broker)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Workspace.
	r.Get("/workspace", h.Workspace)
	r.Post("/workspace", h.OpenWorkspace)
	r.Get("/tree", h.Tree)

	// Files.
	r.Post("/files", h.CreateFile)
	r.Get("/files/*", h.GetFile)
	r.Put("/files/*", h.PutFile)
	r.Delete("/files/*", h.DeleteFile)
	r.Get("/binary/*", h.GetBinary)
	r.Post("/folders", h.CreateFolder)
	r.Post("/move", h.MoveFile)
	r.Post("/undo", h.UndoFile)
	r.Post("/import", h.ImportFile)

	// Search.
	r.Get("/search", h.Search)

	// Chat sessions.
	r.Get("/chat/sessions", h.ListChats)
	r.Post("/chat/sessions", h.SaveChat)
	r.Get("/chat/sessions/{id}", h.GetChat)
	r.Delete("/chat/sessions/{id}", h.DeleteChat)

	// SSE endpoint (protected by same auth middleware).
	if broker != nil {
		r.Method(http.MethodGet, "/events", broker)
	}

	return r
}
