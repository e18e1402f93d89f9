package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/roelfdiedericks/xai-go"

	. "github.com/onegate/onegate/internal/logging"
)

// XAIProvider implements Provider using the native xAI gRPC SDK.
type XAIProvider struct {
	name   string
	client *xai.Client
}

// NewXAIProvider creates an xAI-backed provider.
func NewXAIProvider(name, apiKey string) (*XAIProvider, error) {
	client, err := xai.New(xai.Config{
		APIKey: xai.NewSecureString(apiKey),
	})
	if err != nil {
		return nil, err
	}
	return &XAIProvider{name: name, client: client}, nil
}

func (p *XAIProvider) Name() string { return p.name }

// Complete runs the request through the streaming API and discards deltas.
// The xAI SDK has no separate sync chat path worth keeping.
func (p *XAIProvider) Complete(ctx context.Context, req *Request) (*Completion, error) {
	return p.StreamComplete(ctx, req, func(string) {})
}

// StreamComplete streams a chat completion. Usage arrives per chunk with the
// last chunk's counts authoritative.
func (p *XAIProvider) StreamComplete(ctx context.Context, req *Request, onDelta func(delta string)) (*Completion, error) {
	chatReq := p.buildRequest(req)

	stream, err := p.client.StreamChat(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err)
	}
	defer stream.Close()

	var textBuilder strings.Builder
	var usage xai.Usage

	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, p.wrapError(err)
		}

		if chunk.Delta != "" {
			textBuilder.WriteString(chunk.Delta)
			onDelta(chunk.Delta)
		}

		// Last chunk's usage wins
		usage = chunk.Usage
	}

	L_debug("llm: stream complete", "provider", p.name, "model", req.Model,
		"inputTokens", usage.PromptTokens, "outputTokens", usage.CompletionTokens)

	return &Completion{
		Content: textBuilder.String(),
		Usage: Usage{
			PromptTokens:     int(usage.PromptTokens),
			CompletionTokens: int(usage.CompletionTokens),
		},
	}, nil
}

func (p *XAIProvider) buildRequest(req *Request) *xai.ChatRequest {
	chatReq := xai.NewChatRequest().
		WithModel(req.Model).
		WithMaxTokens(safeInt32(req.MaxOutputTokens))

	if req.System != "" {
		chatReq.SystemMessage(xai.SystemContent{Text: req.System})
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			chatReq.AssistantMessage(xai.AssistantContent{Text: m.Content})
		default:
			chatReq.UserMessage(xai.UserContent{Text: m.Content})
		}
	}
	return chatReq
}

func (p *XAIProvider) wrapError(err error) error {
	var xaiErr *xai.Error
	if errors.As(err, &xaiErr) {
		L_error("llm: api error", "provider", p.name, "code", xaiErr.Code, "error", err)
	}
	return WrapError(p.name, 0, err)
}

func safeInt32(n int) int32 {
	if n > 1<<31-1 {
		return 1<<31 - 1
	}
	return int32(n)
}
