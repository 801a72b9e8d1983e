package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/bull/ragchat/internal/mcp"
	"github.com/bull/ragchat/internal/server"
)

var (
	serveSkipIndex bool
	serveStateless bool
	mcpSkipIndex   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP",
	Long: `Rebuilds the index, then serves:

  POST /chat                   streamed answer (Server-Sent Events)
  GET  /sessions/{id}/history  stored turns of a session
  GET  /health                 vector store and history store status
  /mcp                         MCP tools over Streamable HTTP`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveSkipIndex, "skip-index", false, "serve the existing Qdrant collection without rebuilding it")
	serveCmd.Flags().BoolVar(&serveStateless, "stateless", false, "disable MCP session management")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger := slog.Default()
	a, err := newApp(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.prepare(ctx, serveSkipIndex); err != nil {
		return err
	}

	mcpSrv := mcpserver.NewServer(&mcpserver.Config{Asker: a.chain, Searcher: a.retriever})
	handler := server.NewHandler(server.Options{
		Asker: a.chain,
		Health: map[string]server.HealthChecker{
			"vector_store": a.index,
			"history":      a.history,
		},
		MCP:    mcpSrv.HTTPHandler(serveStateless),
		Logger: logger,
	})

	return server.ListenAndServe(ctx, "0.0.0.0:"+a.cfg.Port, handler, logger)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Rebuilds the index, then runs the ask, search and history tools over
stdin/stdout for local MCP clients. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer cancel()

		a, err := newApp(ctx, slog.Default())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.prepare(ctx, mcpSkipIndex); err != nil {
			return err
		}

		slog.Info("Starting ragchat MCP server (stdio mode)")
		return mcpserver.NewServer(&mcpserver.Config{Asker: a.chain, Searcher: a.retriever}).Run(ctx)
	},
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpSkipIndex, "skip-index", false, "use the existing Qdrant collection without rebuilding it")
}
