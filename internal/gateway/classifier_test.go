package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/onegate/onegate/internal/llm"
	"github.com/onegate/onegate/internal/transport"
)

func TestClassifyRateLimitFloorsAt60s(t *testing.T) {
	action := Classify(&transport.RateLimitError{
		RetryAfter: 10 * time.Second,
		Method:     transport.MethodEdit,
	})

	if action.Kind != ActionSuspend {
		t.Fatalf("kind = %v, want suspend", action.Kind)
	}
	if action.Delay != time.Minute {
		t.Errorf("delay = %v, want 1m floor", action.Delay)
	}
	if !action.RollbackAssistant {
		t.Error("edit rate limit must roll back the assistant turn")
	}
}

func TestClassifyRateLimitExactFloorNotDoubled(t *testing.T) {
	action := Classify(&transport.RateLimitError{
		RetryAfter: time.Minute,
		Method:     transport.MethodSend,
	})

	if action.Kind != ActionSuspend {
		t.Fatalf("kind = %v, want suspend", action.Kind)
	}
	// Doubling applies only beyond the floor.
	if action.Delay != time.Minute {
		t.Errorf("delay = %v, want 1m", action.Delay)
	}
}

func TestClassifyRateLimitDoublesLongWaits(t *testing.T) {
	action := Classify(&transport.RateLimitError{
		RetryAfter: 90 * time.Second,
		Method:     transport.MethodSend,
	})

	if action.Kind != ActionSuspend {
		t.Fatalf("kind = %v, want suspend", action.Kind)
	}
	if action.Delay != 180*time.Second {
		t.Errorf("delay = %v, want 3m (doubled)", action.Delay)
	}
	if action.RollbackAssistant {
		t.Error("send rate limit must not roll back the assistant turn")
	}
}

func TestClassifyPermissionError(t *testing.T) {
	action := Classify(&transport.PermissionError{
		Method: transport.MethodSend,
		Reason: "not enough rights",
	})

	if action.Kind != ActionTerminal {
		t.Fatalf("kind = %v, want terminal", action.Kind)
	}
	if action.UserMessage != msgNoPermission {
		t.Errorf("message = %q, want %q", action.UserMessage, msgNoPermission)
	}
	if action.ResetSession {
		t.Error("permission errors must not reset the session")
	}
}

func TestClassifyContextOverflow(t *testing.T) {
	err := llm.WrapError("openai", 0, errors.New("maximum context length exceeded"))
	action := Classify(err)

	if action.Kind != ActionTerminal {
		t.Fatalf("kind = %v, want terminal", action.Kind)
	}
	if !action.ResetSession {
		t.Error("context overflow must reset the session")
	}
	if action.UserMessage != msgContextOverflow {
		t.Errorf("message = %q", action.UserMessage)
	}
}

func TestClassifyContentPolicyVerbatim(t *testing.T) {
	inner := errors.New("request blocked by content policy: violence")
	action := Classify(llm.WrapError("claude", 0, inner))

	if action.Kind != ActionTerminal {
		t.Fatalf("kind = %v, want terminal", action.Kind)
	}
	if action.UserMessage != inner.Error() {
		t.Errorf("message = %q, want provider wording verbatim", action.UserMessage)
	}
	if action.ResetSession {
		t.Error("content policy must not reset the session")
	}
}

func TestClassifyRetriesEverythingElse(t *testing.T) {
	cases := []error{
		llm.WrapError("xai", 500, errors.New("internal server error")),
		llm.WrapError("openai", 529, errors.New("overloaded")),
		errors.New("connection reset by peer"),
	}
	for _, err := range cases {
		if action := Classify(err); action.Kind != ActionRetry {
			t.Errorf("Classify(%v) = %v, want retry", err, action.Kind)
		}
	}
}
