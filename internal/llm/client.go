package llm

import (
	"context"
	"errors"
)

// Role values accepted in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("model returned no completion")

// Message is a minimal chat message used by the retrieval pipeline.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// Client is the language-model contract used by the pipeline.  Chat accepts
// the full message list and returns the generated text.  Implementations
// must be safe for concurrent use.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	// Model identifies the backing model for logs and metrics.
	Model() string
}
