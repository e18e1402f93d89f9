// Package transport abstracts the chat surface the gateway talks through.
// Implementations (Telegram, test fakes) translate their platform errors into
// the typed errors below so the gateway can classify failures without knowing
// the platform.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Method names reported by typed errors, so error handling can tell a failed
// send from a failed edit.
const (
	MethodSend = "sendMessage"
	MethodEdit = "editMessageText"
)

// MessageRef identifies a delivered message for later edits or deletion.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// SendOptions control message rendering.
type SendOptions struct {
	Markdown bool
	ReplyTo  int
}

// Transport sends and edits messages on the chat surface.
type Transport interface {
	// Send delivers a new message and returns a reference for editing.
	Send(ctx context.Context, chatID int64, text string, opts *SendOptions) (MessageRef, error)

	// Edit replaces the text of a previously sent message.
	Edit(ctx context.Context, ref MessageRef, text string, opts *SendOptions) error

	// Delete removes a message.
	Delete(ctx context.Context, ref MessageRef) error
}

// RateLimitError reports a platform flood control rejection. RetryAfter is
// the platform's requested backoff; Method records which call was limited.
type RateLimitError struct {
	RetryAfter time.Duration
	Method     string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Method, e.RetryAfter)
}

// PermissionError reports that the bot lacks rights in the target chat.
type PermissionError struct {
	Method string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied on %s: %s", e.Method, e.Reason)
}

// ErrMessageNotModified is returned by Edit when the new text equals the
// current text. Harmless during streaming; callers usually ignore it.
var ErrMessageNotModified = errors.New("message not modified")

// IsRateLimit reports whether err is a flood control rejection and returns
// the platform backoff if so.
func IsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsPermission reports whether err is a chat permission failure.
func IsPermission(err error) (*PermissionError, bool) {
	var pe *PermissionError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
