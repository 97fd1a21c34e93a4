package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/pdfinsight/internal/embedding"
	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/pkg/utils"
)

var (
	// ErrIndexNotFound is returned when an index is missing or its artifacts are unreadable.
	ErrIndexNotFound = errors.New("index not found")
	// ErrEmbeddingModelMismatch is returned when an index was built with a different embedding model.
	ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")
	// ErrIndexExists is returned by Build when the document already has an index.
	ErrIndexExists = errors.New("index already exists")
	// ErrInvalidDocID is returned for ids that cannot name an index directory.
	ErrInvalidDocID = errors.New("invalid doc id")
)

const (
	metaFile    = "index.json"
	chunksFile  = "chunks.json"
	vectorsFile = "vectors.bin"

	formatVersion = 1
	metricIP      = "inner_product"

	defaultCacheSize = 32
)

var docIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

type indexMeta struct {
	FormatVersion  int       `json:"format_version"`
	DocID          string    `json:"doc_id"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimensions     int       `json:"dimensions"`
	Metric         string    `json:"metric"`
	Chunks         int       `json:"chunks"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store manages document indexes under a root directory, one directory per doc id.
type Store struct {
	root     string
	embedder embedding.Embedder
	cache    *utils.LRU[string, *Index]
	logger   *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for build and load events.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithCacheSize bounds how many loaded indexes are kept in memory.
func WithCacheSize(n int) StoreOption {
	return func(s *Store) { s.cache = utils.NewLRU[string, *Index](n) }
}

// NewStore creates a store rooted at root that embeds with embedder.
func NewStore(root string, embedder embedding.Embedder, opts ...StoreOption) *Store {
	s := &Store{
		root:     root,
		embedder: embedder,
		cache:    utils.NewLRU[string, *Index](defaultCacheSize),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidDocID reports whether id can name an index.
func ValidDocID(id string) bool {
	return docIDPattern.MatchString(id)
}

// Location returns the directory holding docID's index.
func (s *Store) Location(docID string) string {
	return filepath.Join(s.root, docID)
}

// Model returns the embedding model used for building and querying.
func (s *Store) Model() string {
	return s.embedder.Model()
}

// Exists reports whether a published index directory exists for docID.
func (s *Store) Exists(docID string) bool {
	if !ValidDocID(docID) {
		return false
	}
	info, err := os.Stat(s.Location(docID))
	return err == nil && info.IsDir()
}

// Build embeds chunks and persists a new index for docID. Artifacts are
// written to a temporary sibling directory that is renamed into place only
// when complete, so readers never observe a partial index.
func (s *Store) Build(ctx context.Context, docID string, chunks []models.Chunk) (*Index, error) {
	if !ValidDocID(docID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocID, docID)
	}
	if s.Exists(docID) {
		return nil, fmt.Errorf("%w: %s", ErrIndexExists, docID)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	dim := s.embedder.Dimensions()
	vectors := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		vectors[i] = utils.NormalizedCopy(e)
	}
	flat, err := newFlatIndex(dim, vectors)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, fmt.Errorf("create index root: %w", err)
	}
	tmp, err := os.MkdirTemp(s.root, ".build-"+docID+"-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := writeVectors(filepath.Join(tmp, vectorsFile), dim, vectors); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(tmp, chunksFile), chunks); err != nil {
		return nil, err
	}
	meta := indexMeta{
		FormatVersion:  formatVersion,
		DocID:          docID,
		EmbeddingModel: s.embedder.Model(),
		Dimensions:     dim,
		Metric:         metricIP,
		Chunks:         len(chunks),
		CreatedAt:      time.Now().UTC(),
	}
	if err := writeJSON(filepath.Join(tmp, metaFile), meta); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, s.Location(docID)); err != nil {
		return nil, fmt.Errorf("publish index: %w", err)
	}
	published = true

	stored := make([]models.Chunk, len(chunks))
	copy(stored, chunks)
	ix := &Index{
		docID:    docID,
		model:    meta.EmbeddingModel,
		chunks:   stored,
		flat:     flat,
		embedder: s.embedder,
	}
	s.cache.Set(docID, ix)
	s.logger.Debug("index built", zap.String("doc_id", docID), zap.Int("chunks", len(chunks)))
	return ix, nil
}

// Load opens docID's index, serving repeated loads from an LRU of handles.
// It returns ErrIndexNotFound when the index is missing or unreadable and
// ErrEmbeddingModelMismatch when it was built with another embedding model.
func (s *Store) Load(ctx context.Context, docID string) (*Index, error) {
	if !ValidDocID(docID) {
		return nil, fmt.Errorf("%w: %q", ErrIndexNotFound, docID)
	}
	if ix, ok := s.cache.Get(docID); ok {
		return ix, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := s.Location(docID)

	var meta indexMeta
	if err := readJSON(filepath.Join(dir, metaFile), &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexNotFound, docID, err)
	}
	if meta.EmbeddingModel != s.embedder.Model() || meta.Dimensions != s.embedder.Dimensions() {
		return nil, fmt.Errorf("%w: index %s built with %s/%d, embedder is %s/%d",
			ErrEmbeddingModelMismatch, docID,
			meta.EmbeddingModel, meta.Dimensions, s.embedder.Model(), s.embedder.Dimensions())
	}

	var chunks []models.Chunk
	if err := readJSON(filepath.Join(dir, chunksFile), &chunks); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexNotFound, docID, err)
	}
	if len(chunks) != meta.Chunks {
		return nil, fmt.Errorf("%w: %s: %d chunks stored, index.json says %d",
			ErrIndexNotFound, docID, len(chunks), meta.Chunks)
	}
	vectors, err := readVectors(filepath.Join(dir, vectorsFile), meta.Dimensions, meta.Chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexNotFound, docID, err)
	}
	flat, err := newFlatIndex(meta.Dimensions, vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexNotFound, docID, err)
	}

	ix := &Index{
		docID:    docID,
		model:    meta.EmbeddingModel,
		chunks:   chunks,
		flat:     flat,
		embedder: s.embedder,
	}
	s.cache.Set(docID, ix)
	s.logger.Debug("index loaded", zap.String("doc_id", docID), zap.Int("chunks", len(chunks)))
	return ix, nil
}

// Delete removes docID's index from disk and from the handle cache.
// Deleting a missing index is not an error.
func (s *Store) Delete(docID string) error {
	if !ValidDocID(docID) {
		return fmt.Errorf("%w: %q", ErrInvalidDocID, docID)
	}
	s.cache.Remove(docID)
	if err := os.RemoveAll(s.Location(docID)); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
