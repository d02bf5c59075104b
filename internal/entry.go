// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"
	colorable "github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/stenmark/dagaz/internal/api"
	"github.com/stenmark/dagaz/internal/chat"
	"github.com/stenmark/dagaz/internal/mcpserver"
	"github.com/stenmark/dagaz/internal/sse"
	"github.com/stenmark/dagaz/internal/tree"
	"github.com/stenmark/dagaz/internal/workspace"
)

// newLogger builds the application logger. A colorized console handler is
// used on a terminal; JSON otherwise. Logs always go to stderr so that MCP
// stdio mode keeps stdout clean for the protocol.
func newLogger(level slog.Level) *slog.Logger {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := newLogger(cfg.App.LogLevel)
	slog.SetDefault(logger)

	store := workspace.NewStore(workspace.Options{
		MetaDir:        cfg.Workspace.MetaDir,
		Ignore:         cfg.Workspace.Ignore,
		SystemDefaults: cfg.Workspace.SystemFrontMatter,
		UserDefaults:   cfg.Workspace.FrontMatter,
		StatePath:      cfg.Workspace.StatePath,
	}, logger)
	defer store.Close()

	root := cfg.Workspace.Path
	if root == "" {
		root = store.LastWorkspace()
	}
	if root == "" {
		return fmt.Errorf("no workspace configured and no previous workspace recorded")
	}
	if err := store.Open(root); err != nil {
		return fmt.Errorf("open workspace %s: %w", root, err)
	}

	logger.Info("Workspace opened",
		slog.String("root", store.Root()),
		slog.String("meta_dir", cfg.Workspace.MetaDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if app.mcp {
		return mcpserver.New(store).ServeStdio()
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("auth_mode", cfg.Auth.Mode))

	// Chat sessions live inside the metadata subtree of the startup workspace.
	chats := chat.NewStore(filepath.Join(store.Root(), cfg.Workspace.MetaDir, "chat"), logger)

	// SSE broker with tree/index notifications from the workspace store.
	broker := sse.NewBroker(2 * time.Second)
	unsubTree := store.SubscribeTree(func(snap *tree.Snapshot) {
		broker.PublishTreeUpdated(snap.UpdatedAt)
	})
	defer unsubTree()
	unsubIndex := store.SubscribeIndex(broker.PublishIndexRebuilt)
	defer unsubIndex()

	apiRouter := api.NewRouter(store, chats, broker, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		broker.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
