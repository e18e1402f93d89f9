package llm

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/onegate/onegate/internal/logging"
	"github.com/onegate/onegate/internal/tokens"
)

// OpenAIProvider implements Provider against any OpenAI-compatible chat
// completions endpoint. DeepSeek and the Vertex proxy ride the same adapter
// with a different BaseURL.
type OpenAIProvider struct {
	name   string
	client *openai.Client
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
// baseURL is optional; empty means api.openai.com.
func NewOpenAIProvider(name, apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		name:   name,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// Complete runs a non-streaming chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*Completion, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, WrapError(p.name, 0, errors.New("empty choices in completion response"))
	}

	content := resp.Choices[0].Message.Content
	return &Completion{
		Content: content,
		Usage:   p.usageOrEstimate(req, content, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}, nil
}

// StreamComplete streams a chat completion, invoking onDelta per fragment.
// Usage comes from the final stream chunk when the endpoint reports it.
func (p *OpenAIProvider) StreamComplete(ctx context.Context, req *Request, onDelta func(delta string)) (*Completion, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, p.wrapError(err)
	}
	defer stream.Close()

	var content string
	var promptTokens, completionTokens int

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, p.wrapError(err)
		}

		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta.Content
			if delta != "" {
				content += delta
				onDelta(delta)
			}
		}
		if chunk.Usage != nil {
			promptTokens = chunk.Usage.PromptTokens
			completionTokens = chunk.Usage.CompletionTokens
		}
	}

	L_debug("llm: stream complete", "provider", p.name, "model", req.Model,
		"promptTokens", promptTokens, "completionTokens", completionTokens)

	return &Completion{
		Content: content,
		Usage:   p.usageOrEstimate(req, content, promptTokens, completionTokens),
	}, nil
}

func (p *OpenAIProvider) buildRequest(req *Request, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	out := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: float32(req.Temperature),
		Stream:      stream,
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

// usageOrEstimate fills in tiktoken estimates when the endpoint omitted
// usage counts (some OpenAI-compatible servers do).
func (p *OpenAIProvider) usageOrEstimate(req *Request, content string, promptTokens, completionTokens int) Usage {
	if promptTokens == 0 {
		promptTokens = tokens.Estimate(req.System)
		for _, m := range req.Messages {
			promptTokens += tokens.Estimate(m.Content)
		}
	}
	if completionTokens == 0 {
		completionTokens = tokens.Estimate(content)
	}
	return Usage{PromptTokens: promptTokens, CompletionTokens: completionTokens}
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		L_error("llm: api error", "provider", p.name,
			"statusCode", apiErr.HTTPStatusCode, "code", apiErr.Code, "message", apiErr.Message)
		return WrapError(p.name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		L_error("llm: request error", "provider", p.name,
			"statusCode", reqErr.HTTPStatusCode, "error", err)
		return WrapError(p.name, reqErr.HTTPStatusCode, err)
	}
	return WrapError(p.name, 0, err)
}
