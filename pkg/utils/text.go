// Package utils provides shared utilities for text, math, caching, and logging.
package utils

import (
	"strings"

	"github.com/rivo/uniseg"
)

// Ellipsis is appended to text cut by TruncateGraphemes.
const Ellipsis = "..."

// TruncateGraphemes returns s cut to at most maxLen user-perceived characters
// (grapheme clusters), with Ellipsis appended if anything was cut. Cuts never
// land inside a cluster, so combining marks in scripts such as Bengali stay
// attached to their base letter. If maxLen is 0 or negative, returns s unchanged.
func TruncateGraphemes(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	g := uniseg.NewGraphemes(s)
	n := 0
	end := 0
	for g.Next() {
		if n == maxLen {
			return s[:end] + Ellipsis
		}
		_, end = g.Positions()
		n++
	}
	return s
}

// CollapseSpaces replaces every run of Unicode whitespace with a single space
// and trims the result.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
