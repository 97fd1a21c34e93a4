// Package storage persists document manifests and conversation histories,
// and reports disk usage of the data directories.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/pdfinsight/internal/models"
)

// ManifestFile is the manifest's name inside each document index directory.
const ManifestFile = "manifest.json"

// ManifestStore reads and writes manifests kept beside each document index.
type ManifestStore struct {
	root   string
	logger *zap.Logger
}

// NewManifestStore returns a store for manifests under root (the index directory).
func NewManifestStore(root string, logger *zap.Logger) *ManifestStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestStore{root: root, logger: logger}
}

func (s *ManifestStore) path(docID string) string {
	return filepath.Join(s.root, docID, ManifestFile)
}

// Write stores m atomically in its document's index directory, which must already exist.
func (s *ManifestStore) Write(m *models.Manifest) error {
	if m == nil || m.DocID == "" {
		return errors.New("manifest requires a doc id")
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	dir := filepath.Join(s.root, m.DocID)
	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(m.DocID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}

// Read returns docID's manifest, or nil with no error when it has none.
func (s *ManifestStore) Read(docID string) (*models.Manifest, error) {
	data, err := os.ReadFile(s.path(docID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m models.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", docID, err)
	}
	return &m, nil
}

// List returns every readable manifest, newest first. Index directories
// without a manifest, and manifests that fail to decode, are skipped.
func (s *ManifestStore) List() ([]*models.Manifest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Manifest{}, nil
		}
		return nil, fmt.Errorf("list index dir: %w", err)
	}
	out := make([]*models.Manifest, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		m, err := s.Read(e.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable manifest", zap.String("doc_id", e.Name()), zap.Error(err))
			continue
		}
		if m != nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
