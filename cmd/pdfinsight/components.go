package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/pdfinsight/internal/config"
	"github.com/hyperjump/pdfinsight/internal/embedding"
	"github.com/hyperjump/pdfinsight/internal/extract"
	"github.com/hyperjump/pdfinsight/internal/generation"
	"github.com/hyperjump/pdfinsight/internal/indexer"
	"github.com/hyperjump/pdfinsight/internal/memory"
	"github.com/hyperjump/pdfinsight/internal/metrics"
	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/internal/prompt"
	"github.com/hyperjump/pdfinsight/internal/rag"
	"github.com/hyperjump/pdfinsight/internal/storage"
	"github.com/hyperjump/pdfinsight/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Embedder      embedding.Embedder
	Indexes       *vector.Store
	Manifests     *storage.ManifestStore
	Conversations *memory.Conversations
	Ingestor      *indexer.Ingestor
	Pipeline      *rag.Pipeline
	Metrics       *metrics.Metrics
}

func (c *Components) Close() {
	if c.Conversations != nil {
		_ = c.Conversations.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// initializeComponents wires the ingestion and answer paths from cfg.
// m may be nil for one-shot commands that do not expose metrics.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Components, error) {
	version, err := prompt.ParseVersion(cfg.Generation.PromptVersion)
	if err != nil {
		return nil, err
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	logger.Info("embedder initialized",
		zap.String("backend", cfg.Embedding.Backend),
		zap.String("model", embedder.Model()),
		zap.Int("dimensions", embedder.Dimensions()))

	c := &Components{Embedder: embedder, Metrics: m}

	history, err := storage.OpenHistory(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open conversation history: %w", err)
	}
	c.Conversations = memory.NewConversations(history, memory.WithLogger(logger))

	c.Indexes = vector.NewStore(cfg.Storage.IndexDir, embedder,
		vector.WithCacheSize(cfg.Retrieval.IndexCacheSize),
		vector.WithLogger(logger))
	c.Manifests = storage.NewManifestStore(cfg.Storage.IndexDir, logger)

	ingestOpts := []indexer.IngestorOption{indexer.WithLogger(logger)}
	if m != nil {
		ingestOpts = append(ingestOpts, indexer.WithObserver(m))
	}
	c.Ingestor = indexer.NewIngestor(
		extract.NewExtractor(),
		indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap),
		c.Indexes,
		c.Manifests,
		cfg.Storage.UploadDir,
		ingestOpts...,
	)

	router := generation.NewRouter(
		generation.NewOpenAIFactory(cfg.Generation),
		cfg.Generation.Model,
		cfg.Generation.FallbackModel,
		generation.WithLogger(logger),
	)
	pipeOpts := []rag.Option{
		rag.WithPromptVersion(version),
		rag.WithTemperature(cfg.Generation.Temperature),
		rag.WithMaxTopK(cfg.Retrieval.MaxTopK),
		rag.WithSnippetChars(cfg.Retrieval.SnippetChars),
		rag.WithLogger(logger),
	}
	if m != nil {
		pipeOpts = append(pipeOpts, rag.WithObserver(m))
	}
	c.Pipeline = rag.NewPipeline(c.Indexes, c.Conversations, router, pipeOpts...)
	return c, nil
}

// manifestsFromDisk lists documents without building the embedder, so it works
// while a server holds the history store.
func manifestsFromDisk(cfg *config.Config, logger *zap.Logger) ([]*models.Manifest, error) {
	return storage.NewManifestStore(cfg.Storage.IndexDir, logger).List()
}
