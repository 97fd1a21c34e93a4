package embedding

import (
	"context"

	"github.com/hyperjump/pdfinsight/pkg/utils"
)

// CachedEmbedder memoizes another embedder's vectors by exact text.
type CachedEmbedder struct {
	inner Embedder
	cache *utils.LRU[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU cache of the given capacity.
// A capacity of zero or less returns inner unwrapped.
func NewCachedEmbedder(inner Embedder, capacity int) Embedder {
	if capacity <= 0 {
		return inner
	}
	return &CachedEmbedder{
		inner: inner,
		cache: utils.NewLRU[string, []float32](capacity),
	}
}

// Embed returns a copy of the cached vector for text, computing it on a miss.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := c.cache.Get(text); ok {
		return clone(cached), nil
	}
	emb, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, clone(emb))
	return emb, nil
}

// EmbedBatch embeds each text through the cache.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, c, texts)
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Model returns the wrapped embedder's model id.
func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
