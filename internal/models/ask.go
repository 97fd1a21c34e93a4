package models

// Language selects the reply language of an answer.
type Language string

const (
	// LanguageBengali is the primary reply language (Bengali script).
	LanguageBengali Language = "bn"
	// LanguageEnglish is the secondary reply language.
	LanguageEnglish Language = "en"
)

// DefaultLanguage is used when a request does not name a language.
const DefaultLanguage = LanguageBengali

// Valid reports whether l is one of the supported reply languages.
func (l Language) Valid() bool {
	return l == LanguageBengali || l == LanguageEnglish
}

// Instruction returns the phrase used to tell the model which language to reply in.
func (l Language) Instruction() string {
	if l == LanguageEnglish {
		return "English"
	}
	return "Bengali using Bengali script"
}

// AskRequest is a question about one uploaded document.
type AskRequest struct {
	DocID     string   `json:"doc_id"`
	SessionID string   `json:"session_id,omitempty"`
	Question  string   `json:"question"`
	TopK      int      `json:"top_k,omitempty"`
	Language  Language `json:"language,omitempty"`
}

// Source is a cited passage backing an answer.
type Source struct {
	Page    *int   `json:"page"`
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// AskResponse is the cleaned answer plus the passages it was grounded in.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
