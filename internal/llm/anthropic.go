package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	. "github.com/onegate/onegate/internal/logging"
)

// AnthropicProvider implements Provider using the official Anthropic SDK.
type AnthropicProvider struct {
	name   string
	client *anthropic.Client
}

// NewAnthropicProvider creates an Anthropic-backed provider.
func NewAnthropicProvider(name, apiKey string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{name: name, client: &client}
}

func (p *AnthropicProvider) Name() string { return p.name }

// Complete runs a non-streaming message request.
func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (*Completion, error) {
	message, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, p.wrapError(err)
	}

	var content string
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += text.Text
		}
	}

	return &Completion{
		Content: content,
		Usage: Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

// StreamComplete streams a message, invoking onDelta per text fragment.
// The accumulated message carries the final usage counts.
func (p *AnthropicProvider) StreamComplete(ctx context.Context, req *Request, onDelta func(delta string)) (*Completion, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))

	message := anthropic.Message{}
	var content string

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			L_warn("llm: failed to accumulate stream event", "provider", p.name, "error", err)
			continue
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				content += delta.Text
				onDelta(delta.Text)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, p.wrapError(err)
	}

	L_debug("llm: stream complete", "provider", p.name, "model", req.Model,
		"inputTokens", message.Usage.InputTokens, "outputTokens", message.Usage.OutputTokens)

	return &Completion{
		Content: content,
		Usage: Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

func (p *AnthropicProvider) buildParams(req *Request) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxOutputTokens),
		Messages:  messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

func (p *AnthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		L_error("llm: api error", "provider", p.name,
			"statusCode", apiErr.StatusCode, "error", err)
		return WrapError(p.name, apiErr.StatusCode, err)
	}
	return WrapError(p.name, 0, err)
}
