package gateway

import (
	"time"

	"github.com/onegate/onegate/internal/llm"
	. "github.com/onegate/onegate/internal/logging"
	"github.com/onegate/onegate/internal/transport"
)

// MaxAttempts bounds the retry budget per turn. Retries beyond the budget
// force a terminal failure.
const MaxAttempts = 3

// ActionKind is the classifier's verdict for one error.
type ActionKind int

const (
	// ActionRetry re-invokes the provider with the decremented budget.
	ActionRetry ActionKind = iota
	// ActionSuspend pauses the whole session before retrying.
	ActionSuspend
	// ActionTerminal fails the turn with a user-visible message.
	ActionTerminal
)

// Action is the classifier's decision.
type Action struct {
	Kind        ActionKind
	Delay       time.Duration // suspension length, ActionSuspend only
	UserMessage string        // shown on ActionTerminal, empty to stay silent
	// ResetSession clears the whole conversation after the terminal
	// message. Set for context overflow, where the history cannot fit the
	// model anymore.
	ResetSession bool
	// RollbackAssistant pops the just-appended assistant turn before
	// suspending. Set when a streamed edit hit the transport rate limit,
	// so the turn is treated as not having happened.
	RollbackAssistant bool
}

// User-visible failure texts. Short and non-technical except where the
// provider's own wording is safe to surface.
const (
	msgGenericError    = "Error handling your request"
	msgNoPermission    = "The bot does not have enough rights to post messages in this chat"
	msgContextOverflow = "The conversation has grown beyond this model's context window and was reset. Please send your message again."
)

// Classify maps an error from the completion path to a recovery action.
// Stateless; the retry budget lives with the caller. Every classification is
// logged before the decision is returned.
func Classify(err error) Action {
	if rl, ok := transport.IsRateLimit(err); ok {
		// Floor at one minute; a platform suggestion beyond the floor is
		// doubled since it tends to undershoot.
		delay := rl.RetryAfter
		if delay > time.Minute {
			delay *= 2
		} else {
			delay = time.Minute
		}
		L_warn("classifier: transport rate limit", "retryAfter", rl.RetryAfter, "suspend", delay, "method", rl.Method)
		return Action{
			Kind:              ActionSuspend,
			Delay:             delay,
			RollbackAssistant: rl.Method == transport.MethodEdit,
		}
	}

	if pe, ok := transport.IsPermission(err); ok {
		L_warn("classifier: transport permission error", "reason", pe.Reason)
		return Action{Kind: ActionTerminal, UserMessage: msgNoPermission}
	}

	if pe, ok := llm.AsProviderError(err); ok {
		switch pe.Type {
		case llm.ErrorTypeContextOverflow:
			L_warn("classifier: context overflow", "provider", pe.Provider)
			return Action{Kind: ActionTerminal, UserMessage: msgContextOverflow, ResetSession: true}
		case llm.ErrorTypeContentPolicy:
			L_warn("classifier: content policy", "provider", pe.Provider)
			// The provider's own explanation is safe to show.
			return Action{Kind: ActionTerminal, UserMessage: pe.Err.Error()}
		default:
			L_error("classifier: provider error, will retry", "provider", pe.Provider, "type", pe.Type, "error", err)
			return Action{Kind: ActionRetry}
		}
	}

	// Network-level and unknown errors retry within the budget.
	L_error("classifier: unclassified error, will retry", "error", err)
	return Action{Kind: ActionRetry}
}
