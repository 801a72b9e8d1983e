// Package main provides the ragchat CLI: index documents, then chat over them
// from the terminal, over HTTP or through MCP.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Conversational question answering over indexed documents",
	Long: `ragchat indexes a fixed set of documents into a vector store and answers
questions about them with a locally served language model, remembering each
session's conversation.

Environment variables (override the config file):
  LLM_URI            Ollama endpoint (default: http://localhost:11434)
  LLM_MODEL          Chat model (default: qwen3:14b)
  EMBEDDING_MODEL    Embedding model (default: nomic-embed-text)
  VECTOR_STORE       qdrant or memory (default: qdrant)
  QDRANT_HOST        Qdrant hostname (default: localhost)
  QDRANT_PORT        Qdrant gRPC port (default: 6334)
  HISTORY_URI        redis://, mongodb:// or memory:// (default: redis://localhost:6379/0)
  SOURCES            Comma-separated document URIs (http(s):// or github://owner/repo/path)
  GITHUB_TOKEN       GitHub token for higher rate limits (optional)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "ragchat.yaml", "path to the YAML config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(indexCmd, serveCmd, chatCmd, mcpCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
