package indexer

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const maxFilenameRunes = 180

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._()\s]`)
	filenameSpaces      = regexp.MustCompile(`\s+`)
)

// SafeFilename makes an uploaded file name safe to store on disk. Characters
// other than ASCII letters, digits, '.', '_', '(', ')' become '_', whitespace
// runs become a single '_', and the result is capped at 180 characters.
func SafeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = filenameSpaces.ReplaceAllString(name, "_")
	if r := []rune(name); len(r) > maxFilenameRunes {
		name = string(r[:maxFilenameRunes])
	}
	return name
}

// NewDocID returns a fresh document id: a random UUID in 32-char hex form.
func NewDocID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
