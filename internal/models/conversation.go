package models

import "time"

// DefaultSessionID is used when a caller does not supply a session.
const DefaultSessionID = "default"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionKey identifies one conversation thread about one document.
type SessionKey struct {
	DocID     string `json:"doc_id"`
	SessionID string `json:"session_id"`
}

// NewSessionKey builds a key, substituting DefaultSessionID for an empty session.
func NewSessionKey(docID, sessionID string) SessionKey {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return SessionKey{DocID: docID, SessionID: sessionID}
}
