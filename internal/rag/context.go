package rag

import (
	"strconv"
	"strings"

	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/internal/vector"
	"github.com/hyperjump/pdfinsight/pkg/utils"
)

// DefaultSnippetChars caps source snippets, counted in grapheme clusters.
const DefaultSnippetChars = 220

// FormatContext renders retrieved chunks as tagged blocks separated by blank
// lines, in retrieval order:
//
//	<<chunk=0 source=report.pdf page=3>>
//	chunk text
func FormatContext(results []vector.Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("<<chunk=")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(" source=")
		b.WriteString(r.Chunk.Metadata.Source)
		b.WriteString(" page=")
		b.WriteString(pageLabel(r.Chunk.Metadata.Page))
		b.WriteString(">>\n")
		b.WriteString(r.Chunk.Text)
	}
	return b.String()
}

func pageLabel(p *int) string {
	if p == nil {
		return "none"
	}
	return strconv.Itoa(*p)
}

// Sources converts retrieved chunks to citations. Snippets are the trimmed
// chunk text on one line, cut to maxChars graphemes.
func Sources(results []vector.Result, maxChars int) []models.Source {
	out := make([]models.Source, 0, len(results))
	for _, r := range results {
		snippet := strings.ReplaceAll(strings.TrimSpace(r.Chunk.Text), "\n", " ")
		out = append(out, models.Source{
			Page:    r.Chunk.Metadata.Page,
			Source:  r.Chunk.Metadata.Source,
			Snippet: utils.TruncateGraphemes(snippet, maxChars),
		})
	}
	return out
}
