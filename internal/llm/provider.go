// Package llm provides unified LLM provider interfaces and implementations.
package llm

import (
	"context"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one provider-agnostic conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one completion. Providers fill this
// from API-reported counts where available; zero values mean the caller
// should fall back to estimation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Completion is the final result of one chat request.
type Completion struct {
	Content string
	Usage   Usage
}

// Request is a provider-agnostic chat completion request. Model carries the
// wire model id from the catalog; System is passed per the provider's
// system prompt convention.
type Request struct {
	Model           string
	Messages        []Message
	System          string
	Temperature     float64
	MaxOutputTokens int
}

// Provider is the unified interface for all LLM backends.
// Implementations: OpenAIProvider (also DeepSeek and Vertex via
// OpenAI-compatible endpoints), AnthropicProvider, XAIProvider.
type Provider interface {
	// Name returns the provider instance name, e.g. "openai", "claude".
	Name() string

	// Complete runs a non-streaming chat completion.
	Complete(ctx context.Context, req *Request) (*Completion, error)

	// StreamComplete runs a streaming chat completion, invoking onDelta for
	// each content fragment as it arrives. The returned Completion carries
	// the full accumulated content and final usage.
	StreamComplete(ctx context.Context, req *Request, onDelta func(delta string)) (*Completion, error)
}
