package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/onegate/onegate/internal/llm"
)

// ConversationMessage is one turn of a session's history.
type ConversationMessage struct {
	Role      llm.Role
	Content   string
	Model     string // wire model version that produced or targets this turn
	Timestamp time.Time
}

// PendingRequest is one admitted user turn waiting in the session queue.
// Never mutated after creation.
type PendingRequest struct {
	ID           string
	ModelVersion string
	Content      string
	NumSubagents int
}

// Session is the per-chat mutable state. Mutated only by the single active
// drain loop; admission appends to the queue under the session lock.
type Session struct {
	ChatID int64

	mu           sync.Mutex
	conversation []ConversationMessage
	currentModel string
	queue        []*PendingRequest

	// Usage and Price accumulate across turns until reset.
	usage int
	price float64

	// draining is the drain-loop guard: test-and-set on entry, cleared on
	// exit. At most one drain loop runs per session.
	draining atomic.Bool

	// resetSeq increments on every Reset. An in-flight completion started
	// under an older sequence is discarded instead of being appended.
	resetSeq atomic.Int64

	// suspendedUntil pauses draining for this session after a transport
	// rate limit.
	suspendedUntil time.Time
}

// CurrentModel returns the session's sticky model version, or empty.
func (s *Session) CurrentModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentModel
}

// SetCurrentModel records the model the session last targeted.
func (s *Session) SetCurrentModel(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentModel = version
}

// Conversation returns a snapshot of the history.
func (s *Session) Conversation() []ConversationMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ConversationMessage, len(s.conversation))
	copy(out, s.conversation)
	return out
}

// LastAssistantMessage returns the most recent assistant turn, or empty.
func (s *Session) LastAssistantMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.conversation) - 1; i >= 0; i-- {
		if s.conversation[i].Role == llm.RoleAssistant {
			return s.conversation[i].Content
		}
	}
	return ""
}

// Append adds a turn to the history.
func (s *Session) Append(role llm.Role, content, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation, ConversationMessage{
		Role:      role,
		Content:   content,
		Model:     model,
		Timestamp: time.Now(),
	})
}

// PopAssistant removes the last turn if it is an assistant message.
// Used when a streamed turn is rolled back after a transport rate limit.
func (s *Session) PopAssistant() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.conversation)
	if n == 0 || s.conversation[n-1].Role != llm.RoleAssistant {
		return false
	}
	s.conversation = s.conversation[:n-1]
	return true
}

// HistoryEmpty reports whether the session has no conversation yet.
func (s *Session) HistoryEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversation) == 0
}

// Enqueue appends a pending request.
func (s *Session) Enqueue(req *PendingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, req)
}

// Dequeue pops the queue head, or nil.
func (s *Session) Dequeue() *PendingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	req := s.queue[0]
	s.queue = s.queue[1:]
	return req
}

// AddUsage accumulates token usage and price for the session.
func (s *Session) AddUsage(tokens int, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage += tokens
	s.price += price
}

// Totals returns the accumulated usage and price.
func (s *Session) Totals() (usage int, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage, s.price
}

// Suspend pauses draining until now+d.
func (s *Session) Suspend(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspendedUntil = time.Now().Add(d)
}

// SuspendedFor returns the remaining suspension, zero if none.
func (s *Session) SuspendedFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rem := time.Until(s.suspendedUntil); rem > 0 {
		return rem
	}
	return 0
}

// Reset clears conversation, accumulators and queued-but-unstarted requests,
// and bumps the reset sequence so an in-flight completion is discarded when
// it settles. Safe to call while a drain loop is mid-flight.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = nil
	s.queue = nil
	s.usage = 0
	s.price = 0
	s.resetSeq.Add(1)
}

// SessionStore holds sessions keyed by chat id, created lazily.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int64]*Session)}
}

// Get returns the session for a chat, creating it on first use.
func (st *SessionStore) Get(chatID int64) *Session {
	st.mu.RLock()
	s := st.sessions[chatID]
	st.mu.RUnlock()
	if s != nil {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s = st.sessions[chatID]; s == nil {
		s = &Session{ChatID: chatID}
		st.sessions[chatID] = s
	}
	return s
}
