package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/ragchat/internal/config"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the vector index from the configured sources",
	Long: `Drops the collection and rebuilds it from the configured sources.

This command:
1. Connects to the vector store and verifies health
2. Fetches every source, skipping unreachable ones
3. Converts HTML to markdown and splits it into overlapping chunks
4. Embeds the chunks and stores them

With VECTOR_STORE=memory the index is discarded on exit, so this only
checks that the sources load.`,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	fmt.Println("Starting index rebuild...")
	fmt.Println()

	a, err := newApp(ctx, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.VectorStore.Type == config.VectorStoreMemory {
		fmt.Println("Warning: the in-memory index will be discarded on exit")
	}

	result, err := a.rebuild(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	records, err := a.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("count index records: %w", err)
	}

	fmt.Println()
	fmt.Println("Index complete!")
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Records in index: %d\n", records)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Skipped sources:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.URI, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	return nil
}
