package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/pdfinsight/internal/extract/pdftest"
)

func TestExtractBytes_pagesAreTaggedFromOne(t *testing.T) {
	e := NewExtractor()
	content := pdftest.Build("Refund policy lasts thirty days", "", "Shipping takes five days")

	blocks, err := e.ExtractBytes(content, "policy.pdf")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2 (blank page skipped)", len(blocks))
	}
	if blocks[0].Page == nil || *blocks[0].Page != 1 {
		t.Errorf("first block page = %v, want 1", blocks[0].Page)
	}
	if blocks[1].Page == nil || *blocks[1].Page != 3 {
		t.Errorf("second block page = %v, want 3", blocks[1].Page)
	}
	if !strings.Contains(blocks[0].Text, "Refund policy lasts thirty days") {
		t.Errorf("page 1 text = %q", blocks[0].Text)
	}
	if !strings.Contains(blocks[1].Text, "Shipping takes five days") {
		t.Errorf("page 3 text = %q", blocks[1].Text)
	}
	for _, b := range blocks {
		if b.Source != "policy.pdf" {
			t.Errorf("source = %q", b.Source)
		}
	}
}

func TestExtract_file(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Guide.PDF")
	if err := os.WriteFile(path, pdftest.Build("Chapter one"), 0644); err != nil {
		t.Fatal(err)
	}
	blocks, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Source != "Guide.PDF" {
		t.Fatalf("unexpected blocks: %+v", blocks)
	}
}

func TestExtractBytes_noText(t *testing.T) {
	blocks, err := NewExtractor().ExtractBytes(pdftest.Build("", ""), "scan.pdf")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("got %d blocks, want 0", len(blocks))
	}
}

func TestExtractBytes_notAPDF(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("plain words"), "broken.pdf")
	if err == nil {
		t.Fatal("expected error for non-PDF content")
	}
}
