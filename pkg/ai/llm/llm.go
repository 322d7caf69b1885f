// Package llm defines the response-generation collaborator boundary,
// invoked once per finalized turn.
package llm

import "context"

// MessageRole identifies a speaker in the conversation history.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one entry of conversation history.
type Message struct {
	Role    MessageRole
	Content string
}

// ChatRequest carries the finalized turn transcript plus recent history.
type ChatRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// ChatResponse is the agent's reply.
type ChatResponse struct {
	Message      Message
	TokensUsed   int
	FinishReason string
}

// Capabilities describes an LLM provider.
type Capabilities struct {
	MaxTokens       int
	SupportedModels []string
}

// LLM generates one reply per request.
type LLM interface {
	// Chat performs a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() Capabilities
}
