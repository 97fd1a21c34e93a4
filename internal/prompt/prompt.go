// Package prompt assembles generation requests from retrieved context,
// conversation history, and the user's question.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hyperjump/pdfinsight/internal/generation"
	"github.com/hyperjump/pdfinsight/internal/models"
)

// Version selects a prompt template.
type Version int

const (
	// V1 is the short grounding-only prompt.
	V1 Version = iota + 1
	// V2 adds answer format rules and repetition guards.
	V2
)

// Default is the version used when none is configured.
const Default = V2

// ParseVersion maps "v1"/"v2" (case-insensitive) to a Version. An empty
// string yields Default.
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Default, nil
	case "v1":
		return V1, nil
	case "v2":
		return V2, nil
	default:
		return 0, fmt.Errorf("unknown prompt version %q", s)
	}
}

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// Input is everything a template needs.
type Input struct {
	History     []models.Turn
	Context     string
	Question    string
	Language    models.Language
	Temperature float64
}

// Build renders in with the template for v. Unknown versions render with Default.
func (v Version) Build(in Input) generation.Request {
	var system string
	switch v {
	case V1:
		system = systemV1(in.Language)
	default:
		system = systemV2(in.Language)
	}
	return generation.Request{
		System:      system,
		History:     historyMessages(in.History),
		User:        userMessage(in.Context, in.Question),
		Temperature: in.Temperature,
	}
}

func systemV1(lang models.Language) string {
	return "You are a document assistant. Reply only in " + lang.Instruction() + ". " +
		"Answer using only the provided context. Do not invent facts. " +
		"If the context does not contain the answer, say you do not know."
}

func systemV2(lang models.Language) string {
	return "You are a document assistant. Reply only in " + lang.Instruction() + ". " +
		"Use only the provided context. Do not invent facts. " +
		"If the context does not contain the answer, say you do not know. " +
		"Never repeat the same sentence. Never repeat bullets. " +
		"Do not write generic filler. Be specific to the PDF content. " +
		"Answer format rules: " +
		"First give a 2 to 4 line summary. " +
		"Then give 3 to 6 unique bullet points with concrete details from context. " +
		"If the context is mainly tables or metrics, explain what the table is showing in plain words."
}

func userMessage(context, question string) string {
	return "Context:\n" + context + "\n\nQuestion:\n" + question + "\n\nAnswer:"
}

func historyMessages(turns []models.Turn) []generation.Message {
	if len(turns) == 0 {
		return nil
	}
	msgs := make([]generation.Message, 0, len(turns))
	for _, t := range turns {
		role := generation.RoleUser
		if t.Role == models.RoleAssistant {
			role = generation.RoleAssistant
		}
		msgs = append(msgs, generation.Message{Role: role, Content: t.Content})
	}
	return msgs
}
