// Package server exposes the chat chain over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Options holds the handlers' dependencies.
type Options struct {
	Asker  Asker
	Health map[string]HealthChecker
	MCP    http.Handler // Mounted at /mcp when set
	Logger *slog.Logger
}

// NewHandler routes every endpoint.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", NewChatHandler(opts.Asker, logger))
	mux.HandleFunc("GET /sessions/{id}/history", NewHistoryHandler(opts.Asker))
	mux.HandleFunc("GET /health", NewHealthHandler(opts.Health))
	if opts.MCP != nil {
		mux.Handle("/mcp", opts.MCP)
	}
	mux.HandleFunc("/", NewLandingHandler())
	return mux
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
