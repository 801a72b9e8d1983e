package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/ragchat/internal/chain"
	"github.com/bull/ragchat/internal/history"
	"github.com/bull/ragchat/internal/storage"
)

// Asker answers turns and replays sessions. *chain.Chain implements it.
type Asker interface {
	Ask(ctx context.Context, session, input string, sink chain.Sink) (*chain.Result, error)
	History(ctx context.Context, session string) ([]history.Turn, error)
}

// Searcher returns the context records for a query. *retrieval.Retriever implements it.
type Searcher interface {
	Retrieve(ctx context.Context, query string) ([]storage.ScoredRecord, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Asker    Asker
	Searcher Searcher
	Version  string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "ragchat",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the indexed documents. Earlier turns of the same session are taken into account and the exchange is remembered.",
	}, makeAskHandler(cfg.Asker))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search",
		Description: "Return the indexed chunks most similar to a query, with their source and score. Does not call the language model.",
	}, makeSearchHandler(cfg.Searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "history",
		Description: "List the stored turns of a conversation session, oldest first.",
	}, makeHistoryHandler(cfg.Asker))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the ask, search and history tools over Streamable HTTP.
// A stateless handler answers each POST on its own, with no session id and
// no server-to-client requests.
func (s *Server) HTTPHandler(stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{Stateless: stateless})
}
