package vector

import (
	"fmt"
	"sort"
)

// flatIndex is an exact brute-force inner product index over normalized
// vectors. It is immutable once built and safe for concurrent searches.
type flatIndex struct {
	dimensions int
	vectors    [][]float32
}

type hit struct {
	ordinal int
	score   float64
}

func newFlatIndex(dimensions int, vectors [][]float32) (*flatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	for i, v := range vectors {
		if len(v) != dimensions {
			return nil, fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), dimensions)
		}
	}
	return &flatIndex{dimensions: dimensions, vectors: vectors}, nil
}

// search returns the top-k ordinals by inner product, highest first.
// Equal scores keep build order.
func (f *flatIndex) search(query []float32, k int) ([]hit, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}
	hits := make([]hit, len(f.vectors))
	for i, vec := range f.vectors {
		hits[i] = hit{ordinal: i, score: InnerProduct(query, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func (f *flatIndex) size() int {
	return len(f.vectors)
}

// InnerProduct is the dot product of a and b, accumulated in float64. On unit
// vectors it equals cosine similarity. Mismatched or empty inputs score 0.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i, x := range a {
		dot += float64(x) * float64(b[i])
	}
	return dot
}
