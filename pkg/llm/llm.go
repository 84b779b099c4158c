// Package llm defines the boundary between the engine and language model backends.
package llm

import (
	"context"
	"encoding/json"
)

// Role of a message in a conversation with the model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request asks for a single structured completion.
type Request struct {
	Messages []Message
	// Schema is the JSON Schema document the reply must satisfy.
	Schema map[string]any
	// SchemaName identifies the schema to backends that require a name.
	SchemaName string
	// Model overrides the client's default model when set.
	Model string
}

// Completion is the model's reply.
type Completion struct {
	Text string
	// Parsed is set when the backend already decoded the structured reply.
	Parsed       json.RawMessage
	Model        string
	PromptTokens int
	OutputTokens int
}

// Client produces completions. Implementations must honor ctx cancellation
// and report failures as *domain.ClientError.
type Client interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Completion, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}
