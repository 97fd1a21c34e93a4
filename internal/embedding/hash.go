package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/hyperjump/pdfinsight/pkg/utils"
)

// HashEmbedder is a deterministic feature-hashing embedder: each case-folded
// word and word bigram is hashed to a signed bucket. It needs no model files
// and keeps lexical overlap meaningful, so it serves tests and offline use.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hashing embedder of the given dimensions (384 if not positive).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the L2-normalized hashed bag of words for text.
// Text without any word yields the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	words := Words(text)
	for i, w := range words {
		e.add(emb, w, 1)
		if i > 0 {
			e.add(emb, words[i-1]+" "+w, 0.5)
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

func (e *HashEmbedder) add(emb []float32, feature string, weight float32) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum32()
	idx := int(sum % uint32(e.dimensions))
	if sum&(1<<31) != 0 {
		weight = -weight
	}
	emb[idx] += weight
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Model identifies the hashing scheme and dimension.
func (e *HashEmbedder) Model() string {
	return fmt.Sprintf("hash-bow-v1-%d", e.dimensions)
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}

// Words case-folds text and splits it into runs of letters, marks and digits.
// Marks are kept so Bengali vowel signs stay inside their word.
func Words(text string) []string {
	folded := cases.Fold().String(text)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsMark(r) && !unicode.IsDigit(r)
	})
}
