// Package extract provides page-tagged text extraction from PDF documents.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/pdfinsight/internal/models"
)

// ErrUnsupportedFormat is returned for any file that is not a PDF.
var ErrUnsupportedFormat = errors.New("unsupported format: only .pdf is accepted")

// Extractor extracts page-tagged plain text from PDF files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// IsPDF reports whether name carries a .pdf extension (case-insensitive).
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Extract reads the PDF at path and returns one block per page that has text.
// The block source is the file's base name.
func (e *Extractor) Extract(path string) ([]models.PageBlock, error) {
	if !IsPDF(path) {
		return nil, ErrUnsupportedFormat
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Base(path))
}

// ExtractBytes extracts page blocks from raw PDF content.
// source is recorded on every block, typically the uploaded file name.
// Pages are numbered from 1; pages without extractable text are skipped.
func (e *Extractor) ExtractBytes(content []byte, source string) ([]models.PageBlock, error) {
	if !IsPDF(source) {
		return nil, ErrUnsupportedFormat
	}
	return extractPDF(content, source)
}
