package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message for the LLM.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage returns a message with the system role.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage returns a message with the user role.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// ChatResponse is the provider-neutral result of a completion.
type ChatResponse struct {
	Model   string
	Content string

	// Token usage, when the backend reports it.
	InputTokens  int
	OutputTokens int

	Duration time.Duration
}
