// Package vector persists per-document similarity indexes and answers
// nearest-chunk queries against them.
package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/pdfinsight/internal/embedding"
	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/pkg/utils"
)

// Result is one retrieved chunk. Ordinal is the chunk's position at build time.
type Result struct {
	Chunk   models.Chunk
	Score   float64
	Ordinal int
}

// Index is a loaded, read-only document index.
type Index struct {
	docID    string
	model    string
	chunks   []models.Chunk
	flat     *flatIndex
	embedder embedding.Embedder
}

// DocID returns the document the index belongs to.
func (ix *Index) DocID() string { return ix.docID }

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Model returns the embedding model the index was built with.
func (ix *Index) Model() string { return ix.model }

// Query embeds text and returns the min(k, Len()) most similar chunks,
// most similar first. k <= 0 yields no results.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Result, error) {
	if k <= 0 || ix.Len() == 0 {
		return []Result{}, nil
	}
	q, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	q = utils.NormalizedCopy(q)
	hits, err := ix.flat.search(q, k)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			Chunk:   ix.chunks[h.ordinal],
			Score:   h.score,
			Ordinal: h.ordinal,
		}
	}
	return results, nil
}
