// Package indexer turns extracted PDF pages into chunks and persisted indexes.
package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
	"github.com/rivo/uniseg"

	"github.com/hyperjump/pdfinsight/internal/models"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the maximum overlap carried between consecutive chunks.
	DefaultChunkOverlap = 150
)

// danda terminates sentences in Bengali script.
const danda = "।"

type splitLevel int

const (
	levelParagraph splitLevel = iota
	levelLine
	levelSentence
	levelWord
	levelGrapheme
)

// Chunker splits page text into overlapping chunks, preferring the largest
// natural boundary that fits: paragraph, line, sentence, word, then grapheme.
// Lengths are measured in runes.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap in characters.
// A non-positive size falls back to DefaultChunkSize; an overlap that is
// negative or not smaller than size is clamped to size/4.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap returns the configured chunk overlap.
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// Split chunks every block independently so no chunk spans two pages.
// Each chunk inherits the source and page of its block. Blocks without text
// produce no chunks; the result is empty (not nil) when nothing was produced.
func (c *Chunker) Split(blocks []models.PageBlock) []models.Chunk {
	chunks := make([]models.Chunk, 0)
	for _, b := range blocks {
		for _, text := range c.SplitText(b.Text) {
			chunks = append(chunks, models.Chunk{
				Text: text,
				Metadata: models.ChunkMetadata{
					Source: b.Source,
					Page:   b.Page,
				},
			})
		}
	}
	return chunks
}

// SplitText splits a single text into chunks of at most the configured size.
func (c *Chunker) SplitText(text string) []string {
	text = Preprocess(text)
	if text == "" {
		return nil
	}
	return c.split(text, levelParagraph)
}

func (c *Chunker) split(text string, level splitLevel) []string {
	level, pieces, sep := c.pickLevel(text, level)

	var out, fitting []string
	for _, p := range pieces {
		if runeLen(p) <= c.chunkSize {
			fitting = append(fitting, p)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, c.merge(fitting, sep)...)
			fitting = nil
		}
		if level == levelGrapheme {
			out = append(out, hardCut(p, c.chunkSize)...)
			continue
		}
		out = append(out, c.split(p, level+1)...)
	}
	if len(fitting) > 0 {
		out = append(out, c.merge(fitting, sep)...)
	}
	return out
}

// pickLevel returns the first level at or after from that actually divides text.
func (c *Chunker) pickLevel(text string, from splitLevel) (splitLevel, []string, string) {
	for level := from; level < levelGrapheme; level++ {
		var pieces []string
		var sep string
		switch level {
		case levelParagraph:
			pieces, sep = splitNonEmpty(text, "\n\n"), "\n\n"
		case levelLine:
			pieces, sep = splitNonEmpty(text, "\n"), "\n"
		case levelSentence:
			pieces, sep = sentences(text), " "
		case levelWord:
			pieces, sep = strings.Fields(text), " "
		}
		if len(pieces) > 1 {
			return level, pieces, sep
		}
	}
	return levelGrapheme, graphemes(text), ""
}

// merge greedily packs pieces into chunks no longer than chunkSize, starting
// each new chunk with a tail of the previous one no longer than chunkOverlap.
func (c *Chunker) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var chunks, window []string
	total := 0
	joinCost := func() int {
		if len(window) > 0 {
			return sepLen
		}
		return 0
	}
	for _, p := range pieces {
		n := runeLen(p)
		if total+n+joinCost() > c.chunkSize && len(window) > 0 {
			if chunk := strings.TrimSpace(strings.Join(window, sep)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > c.chunkOverlap || (total > 0 && total+n+joinCost() > c.chunkSize) {
				drop := runeLen(window[0])
				if len(window) > 1 {
					drop += sepLen
				}
				total -= drop
				window = window[1:]
			}
		}
		total += n + joinCost()
		window = append(window, p)
	}
	if chunk := strings.TrimSpace(strings.Join(window, sep)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func splitNonEmpty(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

// sentences segments text with the prose punkt tokenizer, then further at
// Bengali dandas, which the English-trained model does not recognize.
func sentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	var segmented []string
	if err == nil {
		for _, s := range doc.Sentences() {
			segmented = append(segmented, s.Text)
		}
	}
	if len(segmented) == 0 {
		segmented = []string{text}
	}

	var out []string
	for _, s := range segmented {
		for _, part := range strings.SplitAfter(s, danda) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func graphemes(text string) []string {
	var out []string
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

// hardCut splits s into rune slices of at most size runes. Used only when a
// single grapheme cluster is longer than the chunk size.
func hardCut(s string, size int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > size {
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
