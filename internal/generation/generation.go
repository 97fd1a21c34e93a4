// Package generation talks to chat-completion backends and resolves the
// primary/fallback model policy.
package generation

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned when neither the primary nor the fallback model produced an answer.
	ErrUnavailable = errors.New("generation unavailable")
	// ErrMissingAPIKey is returned when a backend that needs credentials has none configured.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Chat roles understood by OpenAI-compatible backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a fully assembled generation request: system instructions,
// prior conversation, and the new user turn.
type Request struct {
	System      string
	History     []Message
	User        string
	Temperature float64
}

// Messages flattens the request into the chat message order backends expect.
func (r Request) Messages() []Message {
	msgs := make([]Message, 0, len(r.History)+2)
	if r.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.System})
	}
	msgs = append(msgs, r.History...)
	return append(msgs, Message{Role: RoleUser, Content: r.User})
}

// Generator produces text for a request using one named model.
type Generator interface {
	Model() string
	Generate(ctx context.Context, req Request) (string, error)
}

// Factory constructs a Generator for a model name. Construction fails for
// configuration problems such as a missing API key.
type Factory func(model string) (Generator, error)
