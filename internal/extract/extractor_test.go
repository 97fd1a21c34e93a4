package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"report.pdf", true},
		{"REPORT.PDF", true},
		{"archive.pdf.zip", false},
		{"notes.txt", false},
		{"pdf", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsPDF(tt.name); got != tt.want {
			t.Errorf("IsPDF(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestExtractBytes_unsupportedFormat(t *testing.T) {
	e := NewExtractor()
	_, err := e.ExtractBytes([]byte("Hello world"), "notes.txt")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtract_unsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.xlsx")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := NewExtractor().Extract(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtract_nonexistent(t *testing.T) {
	_, err := NewExtractor().Extract(filepath.Join(t.TempDir(), "missing.pdf"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
