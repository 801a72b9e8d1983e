package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/ragchat/internal/chain"
	"github.com/bull/ragchat/internal/chunker"
	"github.com/bull/ragchat/internal/config"
	"github.com/bull/ragchat/internal/embedding"
	"github.com/bull/ragchat/internal/history"
	"github.com/bull/ragchat/internal/indexer"
	"github.com/bull/ragchat/internal/llm"
	"github.com/bull/ragchat/internal/loader"
	"github.com/bull/ragchat/internal/normalize"
	"github.com/bull/ragchat/internal/retrieval"
	"github.com/bull/ragchat/internal/storage"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    *embedding.Client
	embedder  *embedding.Embedder
	index     storage.VectorStore
	retriever *retrieval.Retriever
	history   history.Store
	chain     *chain.Chain
}

// newApp connects to the vector store and the history store. The chain is
// built by publish, after the index is ready.
func newApp(ctx context.Context, logger *slog.Logger) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.client = embedding.NewClient(cfg.ModelBaseURL(), cfg.Model.APIKey)
	a.embedder = embedding.NewEmbedder(a.client, embedding.Options{
		Model:     cfg.Model.EmbeddingModel,
		Dimension: cfg.Model.EmbeddingDimension,
		BatchSize: cfg.Model.EmbedBatchSize,
		Logger:    logger,
	})

	switch cfg.VectorStore.Type {
	case config.VectorStoreMemory:
		a.index = storage.NewMemoryStorage()
	default:
		logger.Info("Connecting to Qdrant", "host", cfg.VectorStore.Host, "port", cfg.VectorStore.Port)
		store, err := storage.NewQdrantStorage(ctx, cfg.VectorStore.Host, cfg.VectorStore.Port, cfg.VectorStore.Collection, logger)
		if err != nil {
			return nil, err
		}
		a.index = store
	}
	a.retriever = retrieval.New(a.embedder, a.index, cfg.RetrievalK)

	a.history, err = history.Open(ctx, cfg.History)
	if err != nil {
		_ = a.index.Close()
		return nil, err
	}
	return a, nil
}

// rebuild drops and refills the index from the configured sources.
func (a *app) rebuild(ctx context.Context) (*indexer.IndexResult, error) {
	ld, err := loader.FromURIs(a.cfg.Sources, loader.Options{
		GitHubToken: a.cfg.GitHubToken,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(a.cfg.Chunking.Size, a.cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	pipeline := indexer.NewPipeline(ld, normalize.New(a.logger), ch, a.embedder, a.index, a.logger)
	return pipeline.IndexAll(ctx)
}

// prepare rebuilds the index unless skip is set, then publishes the chain.
// The in-memory store is always rebuilt since it starts empty.
func (a *app) prepare(ctx context.Context, skip bool) error {
	if skip && a.cfg.VectorStore.Type == config.VectorStoreMemory {
		a.logger.Warn("Ignoring --skip-index for the in-memory vector store")
		skip = false
	}
	if !skip {
		result, err := a.rebuild(ctx)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}
		for _, f := range result.FailedDocs {
			a.logger.Warn("Source skipped", "uri", f.URI, "reason", f.Reason)
		}
	}

	records, err := a.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("count index records: %w", err)
	}
	if records == 0 {
		a.logger.Warn("Vector index is empty; answers will have no context")
	}
	a.logger.Info("Index ready", "records", records, "k", a.retriever.K())

	a.publish()
	return nil
}

// publish builds the chain over the ready index.
func (a *app) publish() {
	model := llm.NewOpenAIModel(a.client.Client(), a.cfg.Model.LLMModel)
	a.chain = chain.New(a.retriever, a.history, model, chain.Options{
		GenerationTimeout: a.cfg.Model.GenerationTimeout,
		Logger:            a.logger,
	})
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(a.history.Close(ctx), a.index.Close())
}
