package llm

import (
	"errors"
	"testing"
)

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorType
	}{
		{"This model's maximum context length is 8192 tokens", ErrorTypeContextOverflow},
		{"error code context_length_exceeded", ErrorTypeContextOverflow},
		{"prompt is too long: 210000 tokens > 200000 maximum", ErrorTypeContextOverflow},
		{"429 Too Many Requests", ErrorTypeRateLimit},
		{"rate_limit_error: Number of request tokens has exceeded your limit", ErrorTypeRateLimit},
		{"You exceeded your current quota exceeded", ErrorTypeRateLimit},
		{"overloaded_error: the API is overloaded", ErrorTypeOverloaded},
		{"invalid api key provided", ErrorTypeAuth},
		{"insufficient_quota: please check your plan", ErrorTypeBilling},
		{"Your credit balance is too low", ErrorTypeBilling},
		{"context deadline exceeded", ErrorTypeTimeout},
		{"request blocked by content policy", ErrorTypeContentPolicy},
		{"something unexpected happened", ErrorTypeUnknown},
		{"", ErrorTypeUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyMessage(tt.msg); got != tt.want {
			t.Errorf("ClassifyMessage(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestWrapErrorStatusCodeWins(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{402, ErrorTypeBilling},
		{504, ErrorTypeTimeout},
		{529, ErrorTypeOverloaded},
	}

	for _, tt := range tests {
		pe := WrapError("openai", tt.status, errors.New("opaque message"))
		if pe.Type != tt.want {
			t.Errorf("WrapError(status %d) type = %v, want %v", tt.status, pe.Type, tt.want)
		}
	}

	// No status code falls through to message patterns.
	pe := WrapError("claude", 0, errors.New("prompt is too long for this model"))
	if pe.Type != ErrorTypeContextOverflow {
		t.Errorf("type = %v, want %v", pe.Type, ErrorTypeContextOverflow)
	}
}

func TestAsProviderErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	wrapped := WrapError("xai", 0, inner)

	pe, ok := AsProviderError(wrapped)
	if !ok {
		t.Fatal("expected ProviderError")
	}
	if !errors.Is(pe, inner) {
		t.Error("expected wrapped error chain to reach inner error")
	}

	if _, ok := AsProviderError(errors.New("plain")); ok {
		t.Error("plain error should not classify as ProviderError")
	}
}

func TestIsContextOverflow(t *testing.T) {
	if !IsContextOverflow(WrapError("openai", 0, errors.New("context_length_exceeded"))) {
		t.Error("wrapped overflow not detected")
	}
	if !IsContextOverflow(errors.New("maximum context length reached")) {
		t.Error("raw overflow message not detected")
	}
	if IsContextOverflow(nil) {
		t.Error("nil is not an overflow")
	}
}
