// Package gateway is the orchestration core: it owns per-chat sessions,
// serializes their requests through a FIFO drain loop, fans out to context
// subagents, drives streaming completions through the transport and settles
// usage-based prices against the payment service.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onegate/onegate/internal/llm"
	. "github.com/onegate/onegate/internal/logging"
	"github.com/onegate/onegate/internal/models"
	"github.com/onegate/onegate/internal/payment"
	"github.com/onegate/onegate/internal/subagent"
	"github.com/onegate/onegate/internal/transport"
)

// Document is an attachment reference carried with an inbound message.
type Document struct {
	FileName string
	MIMEType string
	URL      string // download URL for the file content
}

// InboundMessage is one user message normalized by the transport layer.
type InboundMessage struct {
	ChatID        int64
	MessageID     int
	Text          string
	Document      *Document // attached to this message
	ReplyDocument *Document // attached to the replied-to message
}

// Options tunes orchestrator behavior.
type Options struct {
	SystemPrompt    string
	DefaultModel    string  // wire version used when no command or prefix matches
	WordLimit       int     // target length appended to prompts, 0 disables
	PriceAdjustment float64 // global price multiplier, 0 means 1
	IntroText       string  // reply to an empty prompt on a fresh session
}

// Gateway wires the registry, providers, subagents, payments and transport
// into the per-session pipeline.
type Gateway struct {
	registry  *models.Registry
	providers map[models.Provider]llm.Provider
	payments  payment.Service
	transport transport.Transport
	agents    []subagent.Subagent // registration order fixes join order
	cfg       Options
	store     *SessionStore
}

// New creates the orchestrator.
func New(registry *models.Registry, providers map[models.Provider]llm.Provider,
	payments payment.Service, tr transport.Transport, agents []subagent.Subagent, cfg Options) (*Gateway, error) {

	if cfg.DefaultModel == "" {
		return nil, errors.New("gateway: default model not configured")
	}
	if registry.Get(cfg.DefaultModel) == nil {
		return nil, fmt.Errorf("gateway: default model %q not in catalog", cfg.DefaultModel)
	}
	if cfg.PriceAdjustment == 0 {
		cfg.PriceAdjustment = 1
	}

	return &Gateway{
		registry:  registry,
		providers: providers,
		payments:  payments,
		transport: tr,
		agents:    agents,
		cfg:       cfg,
		store:     NewSessionStore(),
	}, nil
}

// Session exposes the session for a chat. Used by transport handlers and
// tests.
func (g *Gateway) Session(chatID int64) *Session {
	return g.store.Get(chatID)
}

// ModelListing renders the catalog for the /models command.
func (g *Gateway) ModelListing() string {
	return g.registry.Listing()
}

// HandleMessage is the single entry point for inbound user messages. It
// resolves the target model, runs the empty-prompt shortcut, fans out to
// subagents when applicable, enqueues the turn and drives the drain loop.
// Blocks until the turn (and everything queued before it) settles.
func (g *Gateway) HandleMessage(ctx context.Context, msg *InboundMessage) {
	sess := g.store.Get(msg.ChatID)

	desc, prompt := g.resolveModel(sess, msg.Text)
	sess.SetCurrentModel(desc.Version)

	if strings.TrimSpace(prompt) == "" && msg.Document == nil && msg.ReplyDocument == nil {
		g.onEmptyPrompt(ctx, sess)
		return
	}

	req := &PendingRequest{
		ID:           uuid.NewString(),
		ModelVersion: desc.Version,
		Content:      prompt,
	}

	if sources := g.collectSources(desc, msg, prompt); len(sources) > 0 {
		req.Content = g.enrich(ctx, msg, prompt, sources, req)
		req.NumSubagents = len(sources)
	}

	sess.Enqueue(req)
	g.drain(ctx, sess)
}

// Reset clears the session and discards its enrichment collections so the
// backend releases their resources. In-flight completions settle but are
// discarded.
func (g *Gateway) Reset(ctx context.Context, chatID int64) {
	sess := g.store.Get(chatID)
	sess.Reset()
	for _, a := range g.agents {
		a.Discard(ctx, chatID)
	}
	L_info("gateway: session reset", "chatID", chatID)
}

// LastReply returns the session's most recent assistant message, or a hint
// that nothing was generated yet.
func (g *Gateway) LastReply(chatID int64) string {
	if last := g.store.Get(chatID).LastAssistantMessage(); last != "" {
		return last
	}
	return "No previous response. Send a message to start the conversation."
}

// resolveModel picks the descriptor for a message: prefix match first, then
// command word, falling back to the session's sticky model or the default.
// Returns the descriptor and the prompt with the invocation stripped.
func (g *Gateway) resolveModel(sess *Session, text string) (*models.Descriptor, string) {
	if d, matched := g.registry.Resolve(text); d != nil {
		return d, strings.TrimSpace(strings.TrimPrefix(text, matched))
	}
	if current := sess.CurrentModel(); current != "" {
		if d := g.registry.Get(current); d != nil {
			return d, text
		}
	}
	return g.registry.Get(g.cfg.DefaultModel), text
}

// onEmptyPrompt answers a bare invocation without consuming a queue slot or
// charging: echo the last reply, or the intro text on a fresh session.
func (g *Gateway) onEmptyPrompt(ctx context.Context, sess *Session) {
	reply := sess.LastAssistantMessage()
	if reply == "" {
		reply = g.cfg.IntroText
		if reply == "" {
			reply = "Send a message to start the conversation."
		}
	}
	if _, err := g.transport.Send(ctx, sess.ChatID, reply, nil); err != nil {
		L_error("gateway: empty prompt reply failed", "chatID", sess.ChatID, "error", err)
	}
}

// collectSources finds enrichment inputs for this turn. URLs only count for
// models whose invocation supports contextual lookup; for the rest a URL is
// plain prompt text. PDF attachments always count.
func (g *Gateway) collectSources(desc *models.Descriptor, msg *InboundMessage, prompt string) []subagent.Source {
	var sources []subagent.Source

	doc := msg.Document
	if doc == nil {
		doc = msg.ReplyDocument
	}
	if doc != nil && doc.MIMEType == "application/pdf" {
		sources = append(sources, subagent.Source{
			Kind:     subagent.SourcePDF,
			URL:      doc.URL,
			FileName: doc.FileName,
		})
	}

	if desc.ContextLookup {
		for _, url := range subagent.ExtractURLs(prompt) {
			kind := subagent.SourceURL
			if subagent.IsPDFURL(url) {
				kind = subagent.SourcePDF
			}
			sources = append(sources, subagent.Source{Kind: kind, URL: url})
		}
	}
	return sources
}

// enrich fans out one subagent invocation per source, joins the results in
// registration order and prefixes successful completions to the prompt,
// newline-joined. Failed enrichments contribute nothing; the raw prompt
// still goes through.
func (g *Gateway) enrich(ctx context.Context, msg *InboundMessage, prompt string, sources []subagent.Source, req *PendingRequest) string {
	type future struct {
		ch <-chan *subagent.Result
	}

	var futures []future
	for _, src := range sources {
		agent := g.agentFor(src)
		if agent == nil {
			continue
		}
		ch := make(chan *subagent.Result, 1)
		inv := &subagent.Invocation{
			ChatID:  msg.ChatID,
			AgentID: msg.MessageID,
			Prompt:  prompt,
			Source:  src,
		}
		go func() {
			ch <- agent.Run(ctx, inv)
		}()
		futures = append(futures, future{ch: ch})
	}

	var parts []string
	for _, f := range futures {
		res := <-f.ch
		if res.Status == subagent.StatusDone && res.Completion != "" {
			parts = append(parts, res.Completion)
		} else if res.Status != subagent.StatusDone {
			L_warn("gateway: subagent failed", "chatID", msg.ChatID, "status", res.Status)
		}
	}

	if len(parts) == 0 {
		return prompt
	}
	return strings.Join(parts, "\n") + "\n" + prompt
}

func (g *Gateway) agentFor(src subagent.Source) subagent.Subagent {
	for _, a := range g.agents {
		if a.Supports(src) {
			return a
		}
	}
	return nil
}

// drain is the single entry point to queue processing. The test-and-set
// guard keeps at most one loop per session; losing the race just leaves the
// request for the active loop.
func (g *Gateway) drain(ctx context.Context, sess *Session) {
	if !sess.draining.CompareAndSwap(false, true) {
		return
	}
	defer sess.draining.Store(false)

	for {
		if rem := sess.SuspendedFor(); rem > 0 {
			L_info("gateway: session suspended", "chatID", sess.ChatID, "remaining", rem)
			select {
			case <-time.After(rem):
			case <-ctx.Done():
				return
			}
		}

		req := sess.Dequeue()
		if req == nil {
			return
		}
		g.process(ctx, sess, req)
	}
}

// process runs one pending request end to end: balance gate, conversation
// append, completion with the classifier-driven retry loop, settlement.
func (g *Gateway) process(ctx context.Context, sess *Session, req *PendingRequest) {
	desc := g.registry.Get(req.ModelVersion)
	if desc == nil {
		L_error("gateway: unknown model in queue", "version", req.ModelVersion)
		return
	}

	provider := g.providers[desc.Provider]
	if provider == nil {
		g.send(ctx, sess.ChatID, fmt.Sprintf("%s is not available right now", desc.FullName))
		return
	}

	// Pre-flight balance gate against a fixed reference budget. Dropped,
	// not requeued, on insufficient funds.
	if !g.payments.IsWhitelisted(sess.ChatID) {
		balance, err := g.payments.Balance(ctx, sess.ChatID)
		if err != nil {
			L_error("gateway: balance check failed", "chatID", sess.ChatID, "error", err)
			g.send(ctx, sess.ChatID, msgGenericError)
			return
		}
		if balance < desc.MinBalanceEstimate() {
			g.send(ctx, sess.ChatID, insufficientBalanceText)
			return
		}
	}

	seq := sess.resetSeq.Load()

	if sess.HistoryEmpty() && g.cfg.SystemPrompt != "" {
		sess.Append(llm.RoleSystem, g.cfg.SystemPrompt, desc.Version)
	}
	sess.Append(llm.RoleUser, g.limitPrompt(req.Content), desc.Version)

	attempts := 0
	for {
		err := g.complete(ctx, sess, desc, provider, seq)
		if err == nil {
			return
		}

		action := Classify(err)
		switch action.Kind {
		case ActionRetry:
			attempts++
			if attempts >= MaxAttempts {
				L_error("gateway: retry budget exhausted", "chatID", sess.ChatID, "error", err)
				g.send(ctx, sess.ChatID, msgGenericError)
				return
			}

		case ActionSuspend:
			// Suspensions do not count against the retry budget; only
			// failed completion attempts do.
			if action.RollbackAssistant {
				sess.PopAssistant()
			}
			sess.Suspend(action.Delay)
			select {
			case <-time.After(action.Delay):
			case <-ctx.Done():
				return
			}

		case ActionTerminal:
			if action.UserMessage != "" {
				g.send(ctx, sess.ChatID, action.UserMessage)
			}
			if action.ResetSession {
				sess.Reset()
			}
			return
		}
	}
}

// complete invokes the provider once, appends the assistant turn and settles
// the price. Errors from the provider or the streaming sink bubble up to the
// classifier; settlement failure is a billing event, never a content
// failure.
func (g *Gateway) complete(ctx context.Context, sess *Session, desc *models.Descriptor, provider llm.Provider, seq int64) error {
	params, err := g.registry.ParametersFor(desc.Version)
	if err != nil {
		return err
	}

	request := &llm.Request{
		Model:           desc.Version,
		Temperature:     params.Temperature,
		MaxOutputTokens: params.MaxOutputTokens,
	}
	for _, m := range sess.Conversation() {
		switch m.Role {
		case llm.RoleSystem:
			if params.SystemPromptStyle == "field" {
				request.System = m.Content
			} else {
				request.Messages = append(request.Messages, llm.Message{Role: llm.RoleSystem, Content: m.Content})
			}
		default:
			request.Messages = append(request.Messages, llm.Message{Role: m.Role, Content: m.Content})
		}
	}

	var completion *llm.Completion
	var flush func() error
	if desc.Stream {
		completion, flush, err = g.streamCompletion(ctx, sess, provider, request)
	} else {
		completion, err = provider.Complete(ctx, request)
	}
	if err != nil {
		return err
	}

	if sess.resetSeq.Load() != seq {
		// The session was reset mid-flight; the finished turn is dropped.
		L_info("gateway: discarding completion after reset", "chatID", sess.ChatID)
		return nil
	}

	sess.Append(llm.RoleAssistant, completion.Content, desc.Version)

	// Deliver after the append so a transport failure here can roll the
	// assistant turn back through the classifier.
	if flush != nil {
		if err := flush(); err != nil {
			return err
		}
	} else if _, err := g.transport.Send(ctx, sess.ChatID, completion.Content, nil); err != nil {
		return err
	}

	inputUnits, outputUnits := chargeUnits(desc, request, completion)
	price := desc.PromptPrice(inputUnits, outputUnits) * g.cfg.PriceAdjustment
	sess.AddUsage(completion.Usage.PromptTokens+completion.Usage.CompletionTokens, price)

	memo := fmt.Sprintf("completion %s", desc.Version)
	if err := g.payments.Pay(ctx, sess.ChatID, price, memo); err != nil {
		if errors.Is(err, payment.ErrInsufficientBalance) {
			g.send(ctx, sess.ChatID, insufficientBalanceText)
			return nil
		}
		L_error("gateway: settlement failed", "chatID", sess.ChatID, "price", price, "error", err)
		return nil
	}

	L_info("gateway: turn settled", "chatID", sess.ChatID, "model", desc.Version,
		"inputUnits", inputUnits, "outputUnits", outputUnits, "price", price)
	return nil
}

// streamCompletion sends a placeholder message and edits it in place as the
// stream progresses, throttled. A "message not modified" rejection is
// benign; any other sink failure stops further edits but lets the provider
// call settle, surfacing through the returned flush. The flush performs the
// final unthrottled push.
func (g *Gateway) streamCompletion(ctx context.Context, sess *Session, provider llm.Provider, request *llm.Request) (*llm.Completion, func() error, error) {
	ref, err := g.transport.Send(ctx, sess.ChatID, "...", nil)
	if err != nil {
		return nil, nil, err
	}

	var sinkErr error
	throttle := llm.NewStreamThrottle(func(text string, final bool) error {
		if text == "" {
			return nil
		}
		err := g.transport.Edit(ctx, ref, text, nil)
		if errors.Is(err, transport.ErrMessageNotModified) {
			return nil
		}
		return err
	})

	completion, err := provider.StreamComplete(ctx, request, func(delta string) {
		if sinkErr != nil {
			return
		}
		if err := throttle.OnDelta(delta); err != nil {
			sinkErr = err
		}
	})
	if err != nil {
		return nil, nil, err
	}

	flush := func() error {
		if sinkErr != nil {
			return sinkErr
		}
		_, err := throttle.Finish()
		return err
	}
	return completion, flush, nil
}

// chargeUnits converts usage into billing units per the model's charge type:
// token counts, or character counts for CHAR-priced models.
func chargeUnits(desc *models.Descriptor, request *llm.Request, completion *llm.Completion) (int, int) {
	if desc.ChargeType == models.ChargeChar {
		in := len(request.System)
		for _, m := range request.Messages {
			in += len(m.Content)
		}
		return in, len(completion.Content)
	}
	return completion.Usage.PromptTokens, completion.Usage.CompletionTokens
}

var wordCountPattern = regexp.MustCompile(`(?i)\d+\s*words?`)

// limitPrompt appends a target response length unless the prompt already
// names a word count.
func (g *Gateway) limitPrompt(prompt string) string {
	if g.cfg.WordLimit <= 0 || wordCountPattern.MatchString(prompt) {
		return prompt
	}
	return fmt.Sprintf("%s in around %d words", prompt, g.cfg.WordLimit)
}

func (g *Gateway) send(ctx context.Context, chatID int64, text string) {
	if _, err := g.transport.Send(ctx, chatID, text, nil); err != nil {
		L_error("gateway: send failed", "chatID", chatID, "error", err)
	}
}

const insufficientBalanceText = "Your credit balance is too low for this request. Please top up and try again."
