// Package fake provides a canned LLM for testing.
package fake

import (
	"context"
	"sync"

	"github.com/drewpri411/kaathumaaa/pkg/ai/llm"
)

// FakeLLM returns a fixed reply and records requests.
type FakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []llm.ChatRequest
}

// NewFakeLLM creates a fake that always replies with reply.
func NewFakeLLM(reply string) *FakeLLM {
	if reply == "" {
		reply = "Interesting, tell me more."
	}
	return &FakeLLM{reply: reply}
}

// Fail makes subsequent Chat calls return err.
func (f *FakeLLM) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Requests returns the recorded chat requests.
func (f *FakeLLM) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.ChatRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// Chat records the request and returns the canned reply.
func (f *FakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	err := f.err
	reply := f.reply
	f.mu.Unlock()

	if err != nil {
		return llm.ChatResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}
	return llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: reply},
		FinishReason: "stop",
	}, nil
}

// Capabilities returns permissive fake capabilities.
func (f *FakeLLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{MaxTokens: 4096, SupportedModels: []string{"fake"}}
}
