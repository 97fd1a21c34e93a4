// Package embedding provides text embedding backends and an embedding cache.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/pdfinsight/internal/config"
)

// Embedder produces L2-normalized vector embeddings for text.
// Model identifies the embedding space; vectors from different models are
// not comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
	Close() error
}

// New builds the embedder selected by cfg.Backend, wrapped in an LRU cache.
// There is no fallback between backends: an index built with one model
// cannot be queried with another.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)
	switch cfg.Backend {
	case "hash":
		inner = NewHashEmbedder(cfg.Dimensions)
	case "onnx", "":
		inner, err = NewONNXEmbedder(cfg.ModelPath, cfg.ModelID, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
