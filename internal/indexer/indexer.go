package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/pdfinsight/internal/extract"
	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/internal/vector"
)

// ErrMissingFilename is returned when an upload carries no file name.
var ErrMissingFilename = errors.New("missing filename")

// IndexBuilder persists the vector index for one document.
type IndexBuilder interface {
	Build(ctx context.Context, docID string, chunks []models.Chunk) (*vector.Index, error)
	Location(docID string) string
	Delete(docID string) error
	Model() string
}

// ManifestWriter persists the manifest describing an indexed document.
type ManifestWriter interface {
	Write(m *models.Manifest) error
}

// IngestObserver records ingestion outcomes; metrics.Metrics satisfies it.
type IngestObserver interface {
	ObserveIngest(outcome string, chunks int, d time.Duration)
}

// Ingestor turns uploaded PDFs into stored files, indexes and manifests.
type Ingestor struct {
	extractor *extract.Extractor
	chunker   *Chunker
	indexes   IndexBuilder
	manifests ManifestWriter
	uploadDir string
	logger    *zap.Logger
	observer  IngestObserver
	now       func() time.Time
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets the logger used for ingestion events.
func WithLogger(l *zap.Logger) IngestorOption {
	return func(in *Ingestor) { in.logger = l }
}

// WithObserver sets the recorder for ingestion metrics.
func WithObserver(o IngestObserver) IngestorOption {
	return func(in *Ingestor) { in.observer = o }
}

// NewIngestor creates an ingestor that stores raw uploads under uploadDir.
func NewIngestor(
	extractor *extract.Extractor,
	chunker *Chunker,
	indexes IndexBuilder,
	manifests ManifestWriter,
	uploadDir string,
	opts ...IngestorOption,
) *Ingestor {
	in := &Ingestor{
		extractor: extractor,
		chunker:   chunker,
		indexes:   indexes,
		manifests: manifests,
		uploadDir: uploadDir,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// IngestUpload stores content as "<doc_id>_<safe name>" in the upload
// directory, then extracts, chunks and indexes it under a fresh doc id.
// The manifest is written only after the index is in place; if that write
// fails the index is removed again so the document never half-exists.
func (in *Ingestor) IngestUpload(ctx context.Context, filename string, content []byte) (*models.Manifest, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, ErrMissingFilename
	}
	if !extract.IsPDF(filename) {
		return nil, extract.ErrUnsupportedFormat
	}
	start := in.now()
	docID := NewDocID()
	clean := SafeFilename(filename)

	if err := os.MkdirAll(in.uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	storedPath := filepath.Join(in.uploadDir, docID+"_"+clean)
	if err := os.WriteFile(storedPath, content, 0644); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	m, err := in.index(ctx, docID, clean, storedPath, content, start)
	if err != nil {
		_ = os.Remove(storedPath)
		in.observe("error", 0, start)
		return nil, err
	}
	in.observe("ok", m.Chunks, start)
	in.logger.Info("upload indexed",
		zap.String("doc_id", docID),
		zap.String("filename", clean),
		zap.Int("chunks", m.Chunks),
		zap.Float64("seconds", m.IngestSeconds))
	return m, nil
}

// IngestFile ingests the PDF at path as if it had been uploaded under its base name.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (*models.Manifest, error) {
	if !extract.IsPDF(path) {
		return nil, extract.ErrUnsupportedFormat
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	in.logger.Debug("ingesting file", zap.String("path", path))
	return in.IngestUpload(ctx, filepath.Base(path), content)
}

func (in *Ingestor) index(ctx context.Context, docID, clean, storedPath string, content []byte, start time.Time) (*models.Manifest, error) {
	blocks, err := in.extractor.ExtractBytes(content, clean)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	chunks := in.chunker.Split(blocks)
	if len(chunks) == 0 {
		in.logger.Warn("document has no extractable text", zap.String("doc_id", docID))
	}
	if _, err := in.indexes.Build(ctx, docID, chunks); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	m := &models.Manifest{
		DocID:          docID,
		Filename:       clean,
		StoredPath:     storedPath,
		Chunks:         len(chunks),
		CreatedAt:      in.now().UTC(),
		IndexPath:      in.indexes.Location(docID),
		IngestSeconds:  roundMillis(in.now().Sub(start)),
		EmbeddingModel: in.indexes.Model(),
	}
	if err := in.manifests.Write(m); err != nil {
		if delErr := in.indexes.Delete(docID); delErr != nil {
			in.logger.Error("failed to remove index after manifest failure",
				zap.String("doc_id", docID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}

func (in *Ingestor) observe(outcome string, chunks int, start time.Time) {
	if in.observer != nil {
		in.observer.ObserveIngest(outcome, chunks, in.now().Sub(start))
	}
}

func roundMillis(d time.Duration) float64 {
	return float64(d.Round(time.Millisecond)) / float64(time.Second)
}
