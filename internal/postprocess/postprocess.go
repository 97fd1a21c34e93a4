// Package postprocess cleans model answers before they are returned.
package postprocess

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/hyperjump/pdfinsight/pkg/utils"
)

// DefaultMaxBullets is the bullet cap applied when a caller passes a non-positive limit.
const DefaultMaxBullets = 6

var bulletMarkers = []string{"•", "*", "-", "1.", "2.", "3.", "4.", "5.", "6."}

var blankRuns = regexp.MustCompile(`(\n\s*){3,}`)

// Clean drops repeated lines and excess bullets from text.
//
// Lines are trimmed and blank lines removed. A line whose whitespace-collapsed,
// case-folded form was already seen is dropped, keeping the first occurrence.
// Bullet lines beyond maxBullets are dropped. Clean never panics; on an
// internal failure it returns text unchanged.
func Clean(text string, maxBullets int) (out string) {
	if text == "" {
		return text
	}
	if maxBullets <= 0 {
		maxBullets = DefaultMaxBullets
	}
	defer func() {
		if r := recover(); r != nil {
			out = text
		}
	}()

	fold := cases.Fold()
	seen := make(map[string]struct{})
	kept := make([]string, 0, 16)
	bullets := 0

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		key := fold.String(utils.CollapseSpaces(line))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if IsBullet(line) {
			bullets++
			if bullets > maxBullets {
				continue
			}
		}
		kept = append(kept, line)
	}

	out = strings.TrimSpace(strings.Join(kept, "\n"))
	return blankRuns.ReplaceAllString(out, "\n\n")
}

// IsBullet reports whether line starts with a recognised bullet marker.
func IsBullet(line string) bool {
	for _, m := range bulletMarkers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}
