package indexer

import (
	"strings"

	"github.com/hyperjump/pdfinsight/pkg/utils"
)

// Preprocess normalizes extracted page text for chunking: line endings become
// "\n", whitespace inside a line collapses to one space, and one or more
// blank lines collapse to a single paragraph break.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var b strings.Builder
	blank := false
	for _, line := range strings.Split(text, "\n") {
		line = utils.CollapseSpaces(line)
		if line == "" {
			blank = true
			continue
		}
		if b.Len() > 0 {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
		blank = false
	}
	return b.String()
}
