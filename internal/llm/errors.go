package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes provider errors for retry and user messaging
// decisions.
type ErrorType string

const (
	ErrorTypeUnknown         ErrorType = "unknown"
	ErrorTypeContextOverflow ErrorType = "context_overflow"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeOverloaded      ErrorType = "overloaded"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeBilling         ErrorType = "billing"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeContentPolicy   ErrorType = "content_policy"
)

// ProviderError wraps a backend API failure with its classification and, when
// the backend reported one, the HTTP status code.
type ProviderError struct {
	Provider   string
	StatusCode int
	Type       ErrorType
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Type, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError builds a ProviderError, classifying by status code first and
// message patterns second.
func WrapError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Type:       classify(statusCode, err),
		Err:        err,
	}
}

// AsProviderError extracts a ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func classify(statusCode int, err error) ErrorType {
	switch statusCode {
	case 429:
		return ErrorTypeRateLimit
	case 401, 403:
		return ErrorTypeAuth
	case 402:
		return ErrorTypeBilling
	case 408, 504:
		return ErrorTypeTimeout
	case 503, 529:
		return ErrorTypeOverloaded
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage determines the error type from an error message. Patterns
// are collected across OpenAI, Anthropic, Gemini and xAI wordings. Returns
// ErrorTypeUnknown when nothing matches.
func ClassifyMessage(msg string) ErrorType {
	if msg == "" {
		return ErrorTypeUnknown
	}
	lower := strings.ToLower(msg)

	switch {
	case isContextOverflowMessage(lower):
		return ErrorTypeContextOverflow
	case isRateLimitMessage(lower):
		return ErrorTypeRateLimit
	case isOverloadedMessage(lower):
		return ErrorTypeOverloaded
	case isBillingMessage(lower):
		return ErrorTypeBilling
	case isAuthMessage(lower):
		return ErrorTypeAuth
	case isTimeoutMessage(lower):
		return ErrorTypeTimeout
	case isContentPolicyMessage(lower):
		return ErrorTypeContentPolicy
	}
	return ErrorTypeUnknown
}

func isContextOverflowMessage(lower string) bool {
	return strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "context length exceeded") ||
		strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "prompt is too long") ||
		strings.Contains(lower, "request_too_large") ||
		strings.Contains(lower, "exceeds model context window")
}

func isRateLimitMessage(lower string) bool {
	return strings.Contains(lower, "429") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "resource_exhausted")
}

func isOverloadedMessage(lower string) bool {
	return strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "server is busy") ||
		strings.Contains(lower, "temporarily unavailable")
}

func isAuthMessage(lower string) bool {
	return strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid_api_key") ||
		strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "authentication")
}

func isBillingMessage(lower string) bool {
	return strings.Contains(lower, "payment required") ||
		strings.Contains(lower, "insufficient credits") ||
		strings.Contains(lower, "credit balance") ||
		strings.Contains(lower, "insufficient_quota")
}

func isTimeoutMessage(lower string) bool {
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "connection reset")
}

func isContentPolicyMessage(lower string) bool {
	return strings.Contains(lower, "content_policy") ||
		strings.Contains(lower, "content policy") ||
		strings.Contains(lower, "content management policy") ||
		strings.Contains(lower, "safety") && strings.Contains(lower, "blocked")
}

// IsContextOverflow reports whether err indicates the conversation no longer
// fits the model's context window.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := AsProviderError(err); ok {
		return pe.Type == ErrorTypeContextOverflow
	}
	return isContextOverflowMessage(strings.ToLower(err.Error()))
}
