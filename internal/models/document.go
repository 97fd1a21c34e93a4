// Package models defines core data structures for documents, chunks, conversations, and answers.
package models

import "time"

// PageBlock is one page's worth of extracted text. Page is nil when the
// extractor could not attribute the text to a page.
type PageBlock struct {
	Source string
	Page   *int
	Text   string
}

// ChunkMetadata records where a chunk was drawn from.
type ChunkMetadata struct {
	Source string `json:"source"`
	Page   *int   `json:"page"`
}

// Chunk is a bounded span of document text plus its provenance; the atomic unit of retrieval.
type Chunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// PageNumber returns a pointer to n for use in ChunkMetadata and PageBlock.
func PageNumber(n int) *int {
	return &n
}

// Manifest is the descriptive record written next to each document index.
type Manifest struct {
	DocID          string    `json:"doc_id"`
	Filename       string    `json:"filename"`
	StoredPath     string    `json:"stored_path,omitempty"`
	Chunks         int       `json:"chunks"`
	CreatedAt      time.Time `json:"created_at"`
	IndexPath      string    `json:"index_path,omitempty"`
	IngestSeconds  float64   `json:"ingest_seconds"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
}

// UploadResponse is returned after a PDF has been stored and indexed.
type UploadResponse struct {
	Status        string  `json:"status"`
	DocID         string  `json:"doc_id"`
	Filename      string  `json:"filename"`
	Chunks        int     `json:"chunks"`
	IngestSeconds float64 `json:"ingest_seconds"`
}
