package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onegate/onegate/internal/llm"
	"github.com/onegate/onegate/internal/models"
	"github.com/onegate/onegate/internal/payment"
	"github.com/onegate/onegate/internal/subagent"
	"github.com/onegate/onegate/internal/transport"
)

// fakeProvider scripts completions. If echoPrompt is set, the response is
// "re: " plus the last user message, which makes ordering visible in tests.
type fakeProvider struct {
	mu         sync.Mutex
	response   string
	echoPrompt bool
	errs       []error // returned (and consumed) before any success

	calls       int
	prompts     []string
	inflight    int32
	maxInflight int32
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	return f.StreamComplete(ctx, req, func(string) {})
}

func (f *fakeProvider) StreamComplete(ctx context.Context, req *llm.Request, onDelta func(string)) (*llm.Completion, error) {
	cur := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInflight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInflight, max, cur) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	var lastUser string
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			lastUser = m.Content
		}
	}
	f.prompts = append(f.prompts, lastUser)

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return nil, err
	}

	response := f.response
	if f.echoPrompt {
		response = "re: " + lastUser
	}
	f.mu.Unlock()

	for _, word := range strings.SplitAfter(response, " ") {
		onDelta(word)
	}
	return &llm.Completion{
		Content: response,
		Usage:   llm.Usage{PromptTokens: 10, CompletionTokens: 20},
	}, nil
}

// fakeTransport records sends and edits; editErr fails every edit.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []string
	edits   []string
	editErr error
	nextID  int
}

func (f *fakeTransport) Send(ctx context.Context, chatID int64, text string, opts *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.nextID++
	return transport.MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeTransport) Edit(ctx context.Context, ref transport.MessageRef, text string, opts *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeTransport) Delete(ctx context.Context, ref transport.MessageRef) error { return nil }

func (f *fakeTransport) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeTransport) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakePayments is an in-memory payment service.
type fakePayments struct {
	mu          sync.Mutex
	balance     float64
	whitelisted bool
	payErr      error
	charges     []float64
}

func (f *fakePayments) Balance(ctx context.Context, accountID int64) (float64, error) {
	return f.balance, nil
}

func (f *fakePayments) Pay(ctx context.Context, accountID int64, amount float64, memo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payErr != nil {
		return f.payErr
	}
	f.charges = append(f.charges, amount)
	return nil
}

func (f *fakePayments) Credit(ctx context.Context, accountID int64, amount float64, memo string) error {
	return nil
}

func (f *fakePayments) PriceToNative(cents float64) float64 { return cents }

func (f *fakePayments) IsWhitelisted(accountID int64) bool { return f.whitelisted }

// fakeAgent returns a scripted enrichment completion.
type fakeAgent struct {
	mu         sync.Mutex
	completion string
	status     subagent.Status
	runs       int
	discards   []int64
}

func (f *fakeAgent) Name() string                  { return "fake-agent" }
func (f *fakeAgent) Supports(subagent.Source) bool { return true }

func (f *fakeAgent) Run(ctx context.Context, inv *subagent.Invocation) *subagent.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	status := f.status
	if status == "" {
		status = subagent.StatusDone
	}
	return &subagent.Result{AgentID: inv.AgentID, Name: f.Name(), Completion: f.completion, Status: status}
}

func (f *fakeAgent) Discard(ctx context.Context, chatID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discards = append(f.discards, chatID)
}

type testEnv struct {
	gw        *Gateway
	provider  *fakeProvider
	transport *fakeTransport
	payments  *fakePayments
}

func newTestGateway(t *testing.T, agents ...subagent.Subagent) *testEnv {
	t.Helper()

	registry, err := models.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	provider := &fakeProvider{response: "the quick brown fox jumps over the lazy dog"}
	tr := &fakeTransport{}
	pay := &fakePayments{balance: 1000}

	providers := map[models.Provider]llm.Provider{
		models.ProviderOpenAI:   provider,
		models.ProviderClaude:   provider,
		models.ProviderDeepSeek: provider,
	}

	gw, err := New(registry, providers, pay, tr, agents, Options{
		SystemPrompt:    "You are a helpful assistant",
		DefaultModel:    "gpt-4o",
		PriceAdjustment: 1,
		IntroText:       "Send a message to get started",
	})
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	return &testEnv{gw: gw, provider: provider, transport: tr, payments: pay}
}

func TestHelloTurnSeedsConversation(t *testing.T) {
	env := newTestGateway(t)
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 1, MessageID: 1, Text: "hello"})

	sess := env.gw.Session(1)
	conv := sess.Conversation()
	if len(conv) != 3 {
		t.Fatalf("conversation length = %d, want 3", len(conv))
	}
	if conv[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %s, want system", conv[0].Role)
	}
	if conv[1].Role != llm.RoleUser || conv[1].Content != "hello" {
		t.Errorf("second message = %s %q, want user hello", conv[1].Role, conv[1].Content)
	}
	if conv[2].Role != llm.RoleAssistant || conv[2].Content != env.provider.response {
		t.Errorf("third message = %s %q", conv[2].Role, conv[2].Content)
	}

	if sess.draining.Load() {
		t.Error("drain guard still set after turn")
	}

	// Final edit carries the full completion, markers stripped.
	if got := env.transport.lastEdit(); got != env.provider.response {
		t.Errorf("final edit = %q, want %q", got, env.provider.response)
	}

	if len(env.payments.charges) != 1 || env.payments.charges[0] <= 0 {
		t.Errorf("charges = %v, want one positive charge", env.payments.charges)
	}
}

func TestFIFOOrderAndSingleInFlight(t *testing.T) {
	env := newTestGateway(t)
	env.provider.echoPrompt = true
	ctx := context.Background()

	sess := env.gw.Session(2)
	for _, text := range []string{"first", "second", "third"} {
		sess.Enqueue(&PendingRequest{ID: text, ModelVersion: "gpt-4o", Content: text})
	}
	env.gw.drain(ctx, sess)

	var assistants []string
	for _, m := range sess.Conversation() {
		if m.Role == llm.RoleAssistant {
			assistants = append(assistants, m.Content)
		}
	}
	want := []string{"re: first", "re: second", "re: third"}
	if len(assistants) != len(want) {
		t.Fatalf("assistant turns = %d, want %d", len(assistants), len(want))
	}
	for i := range want {
		if assistants[i] != want[i] {
			t.Errorf("assistant[%d] = %q, want %q", i, assistants[i], want[i])
		}
	}

	if max := atomic.LoadInt32(&env.provider.maxInflight); max > 1 {
		t.Errorf("max concurrent provider calls = %d, want 1", max)
	}
}

func TestEmptyPromptShortcut(t *testing.T) {
	env := newTestGateway(t)
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 3, MessageID: 1, Text: ""})

	if env.provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", env.provider.calls)
	}
	sent := env.transport.sentTexts()
	if len(sent) != 1 || sent[0] != "Send a message to get started" {
		t.Errorf("sent = %v, want intro text", sent)
	}
	if len(env.gw.Session(3).Conversation()) != 0 {
		t.Error("empty prompt must not touch the conversation")
	}

	// After a real turn, an empty prompt echoes the last reply.
	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 3, MessageID: 2, Text: "hello"})
	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 3, MessageID: 3, Text: ""})

	sent = env.transport.sentTexts()
	if sent[len(sent)-1] != env.provider.response {
		t.Errorf("last send = %q, want echo of %q", sent[len(sent)-1], env.provider.response)
	}
}

func TestBalanceGateBlocksProviderCall(t *testing.T) {
	env := newTestGateway(t)
	env.payments.balance = 0
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 4, MessageID: 1, Text: "hello"})

	if env.provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", env.provider.calls)
	}
	if len(env.gw.Session(4).Conversation()) != 0 {
		t.Error("gated request must not touch the conversation")
	}
	sent := env.transport.sentTexts()
	if len(sent) != 1 || !strings.Contains(sent[0], "balance") {
		t.Errorf("sent = %v, want balance message", sent)
	}
}

func TestWhitelistBypassesBalanceGate(t *testing.T) {
	env := newTestGateway(t)
	env.payments.balance = 0
	env.payments.whitelisted = true
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 5, MessageID: 1, Text: "hello"})

	if env.provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", env.provider.calls)
	}
}

func TestContextOverflowResetsSession(t *testing.T) {
	env := newTestGateway(t)
	env.provider.errs = []error{
		llm.WrapError("fake", 0, errors.New("context_length_exceeded")),
	}
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 6, MessageID: 1, Text: "hello"})

	sess := env.gw.Session(6)
	if n := len(sess.Conversation()); n != 0 {
		t.Errorf("conversation length = %d, want 0 after reset", n)
	}
	usage, price := sess.Totals()
	if usage != 0 || price != 0 {
		t.Errorf("totals = %d, %v, want 0, 0", usage, price)
	}

	var sawReset bool
	for _, s := range env.transport.sentTexts() {
		if strings.Contains(s, "reset") {
			sawReset = true
		}
	}
	if !sawReset {
		t.Error("expected a user-visible reset message")
	}
}

func TestContentPolicySurfacesProviderMessage(t *testing.T) {
	env := newTestGateway(t)
	providerMsg := "request blocked by content policy: category X"
	env.provider.errs = []error{llm.WrapError("fake", 0, errors.New(providerMsg))}
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 7, MessageID: 1, Text: "hello"})

	var surfaced bool
	for _, s := range env.transport.sentTexts() {
		if strings.Contains(s, providerMsg) {
			surfaced = true
		}
	}
	if !surfaced {
		t.Errorf("provider explanation not surfaced: %v", env.transport.sentTexts())
	}
	if env.provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry on content policy)", env.provider.calls)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	env := newTestGateway(t)
	boom := llm.WrapError("fake", 0, errors.New("unexplainable"))
	env.provider.errs = []error{boom, boom, boom, boom}
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 8, MessageID: 1, Text: "hello"})

	if env.provider.calls != MaxAttempts {
		t.Errorf("provider calls = %d, want %d", env.provider.calls, MaxAttempts)
	}
	sent := env.transport.sentTexts()
	if sent[len(sent)-1] != msgGenericError {
		t.Errorf("last send = %q, want %q", sent[len(sent)-1], msgGenericError)
	}
}

func TestTransportRateLimitSuspendsAndRollsBack(t *testing.T) {
	env := newTestGateway(t)
	env.transport.editErr = &transport.RateLimitError{
		RetryAfter: 10 * time.Second,
		Method:     transport.MethodEdit,
	}

	// The suspension sleep honors context cancellation; a short deadline
	// lets the test observe the suspended state without waiting a minute.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 9, MessageID: 1, Text: "hello"})

	sess := env.gw.Session(9)
	conv := sess.Conversation()
	if len(conv) == 0 || conv[len(conv)-1].Role != llm.RoleUser {
		t.Fatalf("expected assistant rollback, conversation tail = %+v", conv)
	}

	// 10s suggested is floored to 60s.
	if rem := sess.SuspendedFor(); rem < 55*time.Second {
		t.Errorf("suspension remaining = %v, want close to 60s", rem)
	}

	// Suspensions must not burn the retry budget into a terminal failure.
	for _, s := range env.transport.sentTexts() {
		if s == msgGenericError {
			t.Errorf("suspension consumed the retry budget: %v", env.transport.sentTexts())
		}
	}
}

func TestSettlementFailureKeepsContent(t *testing.T) {
	env := newTestGateway(t)
	env.payments.payErr = payment.ErrInsufficientBalance
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 10, MessageID: 1, Text: "hello"})

	conv := env.gw.Session(10).Conversation()
	if len(conv) != 3 || conv[2].Role != llm.RoleAssistant {
		t.Fatalf("expected delivered assistant turn, got %+v", conv)
	}

	var sawBalance bool
	for _, s := range env.transport.sentTexts() {
		if strings.Contains(s, "balance") {
			sawBalance = true
		}
	}
	if !sawBalance {
		t.Error("expected balance message after settlement failure")
	}
}

func TestSubagentEnrichmentPrefixesPrompt(t *testing.T) {
	agent := &fakeAgent{completion: "CONTEXT FROM PAGE"}
	env := newTestGateway(t, agent)
	env.provider.echoPrompt = true
	ctx := context.Background()

	text := "summarize https://example.com/article"
	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 11, MessageID: 1, Text: text})

	if agent.runs != 1 {
		t.Fatalf("agent runs = %d, want 1", agent.runs)
	}

	conv := env.gw.Session(11).Conversation()
	var userContent string
	for _, m := range conv {
		if m.Role == llm.RoleUser {
			userContent = m.Content
		}
	}
	want := "CONTEXT FROM PAGE\n" + text
	if userContent != want {
		t.Errorf("user content = %q, want %q", userContent, want)
	}
}

func TestURLIgnoredWithoutContextLookup(t *testing.T) {
	agent := &fakeAgent{completion: "CONTEXT"}
	env := newTestGateway(t, agent)
	ctx := context.Background()

	// gpt-4 has no contextual lookup; the URL stays plain text.
	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 12, MessageID: 1, Text: "gpt4 read https://example.com/a"})

	if agent.runs != 0 {
		t.Errorf("agent runs = %d, want 0", agent.runs)
	}
}

func TestResetClearsSessionState(t *testing.T) {
	env := newTestGateway(t)
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 13, MessageID: 1, Text: "hello"})
	env.gw.Reset(ctx, 13)

	sess := env.gw.Session(13)
	if len(sess.Conversation()) != 0 {
		t.Error("conversation not cleared")
	}
	usage, price := sess.Totals()
	if usage != 0 || price != 0 {
		t.Errorf("totals = %d, %v after reset", usage, price)
	}
}

func TestResetDiscardsCollections(t *testing.T) {
	agent := &fakeAgent{completion: "CONTEXT"}
	env := newTestGateway(t, agent)
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 15, MessageID: 1, Text: "read https://example.com/doc"})
	env.gw.Reset(ctx, 15)

	if len(agent.discards) != 1 || agent.discards[0] != 15 {
		t.Errorf("discards = %v, want [15]", agent.discards)
	}
}

func TestWordLimitSuffix(t *testing.T) {
	env := newTestGateway(t)
	env.gw.cfg.WordLimit = 100
	ctx := context.Background()

	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 14, MessageID: 1, Text: "explain goroutines"})

	conv := env.gw.Session(14).Conversation()
	if conv[1].Content != "explain goroutines in around 100 words" {
		t.Errorf("user content = %q", conv[1].Content)
	}

	// A prompt that names a word count is left alone.
	env.gw.HandleMessage(ctx, &InboundMessage{ChatID: 14, MessageID: 2, Text: "explain channels in 50 words"})
	conv = env.gw.Session(14).Conversation()
	last := conv[len(conv)-2]
	if last.Content != "explain channels in 50 words" {
		t.Errorf("user content = %q, want unmodified", last.Content)
	}
}
