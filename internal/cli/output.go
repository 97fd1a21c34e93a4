// Package cli provides output formatting and an HTTP client for the pdfinsight command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a --output flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

// WriteAnswer writes an answer and its sources to w in the given format.
func WriteAnswer(w io.Writer, resp *models.AskResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\n%s\n\n", resp.Answer)
	if len(resp.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(w, "--- Sources (%d) ---\n", len(resp.Sources))
	for i, s := range resp.Sources {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "[%d] %s | page %s\n", i+1, s.Source, PageLabel(s.Page))
		fmt.Fprintf(w, "%s\n", s.Snippet)
	}
	fmt.Fprintln(w)
	return nil
}

// WriteUpload writes the result of an upload to w.
func WriteUpload(w io.Writer, resp *models.UploadResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Indexed %s as %s (%d chunks in %.2fs)\n", resp.Filename, resp.DocID, resp.Chunks, resp.IngestSeconds)
	return nil
}

// WriteDocuments writes the list of indexed documents to w.
func WriteDocuments(w io.Writer, docs []*models.Manifest, format OutputFormat) error {
	if format == OutputJSON {
		if docs == nil {
			docs = []*models.Manifest{}
		}
		return writeJSON(w, map[string]interface{}{"docs": docs})
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents indexed.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%s  %-40s  %4d chunks  %s\n",
			d.DocID, TruncateWords(d.Filename, 8), d.Chunks, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// WriteStatus writes the server status document as "key: value" lines, with
// the nested config block last.
func WriteStatus(w io.Writer, status map[string]interface{}) error {
	keys := make([]string, 0, len(status))
	for k := range status {
		if k != "config" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-20s %v\n", k+":", formatValue(status[k]))
	}
	cfg, ok := status["config"].(map[string]interface{})
	if !ok {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	keys = keys[:0]
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-22s %v\n", k+":", formatValue(cfg[k]))
	}
	return nil
}

// formatValue prints JSON numbers without a trailing ".0" and lists comma-separated.
func formatValue(v interface{}) string {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case []interface{}:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = formatValue(p)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// PageLabel renders a page number, or "-" when the page is unknown.
func PageLabel(page *int) string {
	if page == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *page)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + utils.Ellipsis
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
