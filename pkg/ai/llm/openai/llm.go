// Package openai implements the LLM boundary over the OpenAI chat API.
package openai

import (
	"context"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/drewpri411/kaathumaaa/pkg/ai"
	"github.com/drewpri411/kaathumaaa/pkg/ai/llm"
)

// ChatLLM calls the OpenAI chat completion API.
type ChatLLM struct {
	client *goopenai.Client
	model  string
}

// Config holds configuration for the chat provider.
type Config struct {
	APIKey string
	Model  string // default gpt-4o-mini
}

// NewChatLLM creates an OpenAI chat provider.
func NewChatLLM(cfg Config) (*ChatLLM, error) {
	if cfg.APIKey == "" {
		return nil, ai.NewFatalError(nil, "OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &ChatLLM{client: goopenai.NewClient(cfg.APIKey), model: cfg.Model}, nil
}

// Chat performs one completion request.
func (c *ChatLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return llm.ChatResponse{}, ai.NewRecoverableError(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, ai.NewRecoverableError(nil, "chat completion returned no choices")
	}

	choice := resp.Choices[0]
	return llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: choice.Message.Content,
		},
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// Capabilities returns the provider's capabilities.
func (c *ChatLLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		MaxTokens:       4096,
		SupportedModels: []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1-mini"},
	}
}
