package subagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/onegate/onegate/internal/ingest"
	. "github.com/onegate/onegate/internal/logging"
	"github.com/onegate/onegate/internal/payment"
	"github.com/onegate/onegate/internal/transport"
)

const (
	// AgentName identifies document enrichment results.
	AgentName = "DocumentAgent"

	defaultInitialWait  = 6 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultPollCap      = 30 * time.Second
	defaultMaxWait      = 5 * time.Minute
)

// Context block templates wrapped around backend query output.
const (
	urlContextTemplate = "Below is context retrieved from %URL%. Use it to answer the question.\n\n%OUTPUT%"
	pdfContextTemplate = "Below is context extracted from the PDF file %FILE%. Use it to answer the question.\n\n%OUTPUT%"
)

// collectionState tracks one ingested source through its lifecycle.
type collectionState string

const (
	stateWaiting    collectionState = "WAITING"
	stateProcessing collectionState = "PROCESSING"
	stateReady      collectionState = "READY"
	stateInvalid    collectionState = "INVALID"
	stateTimedOut   collectionState = "TIMED_OUT"
	stateFailed     collectionState = "FAILED"
)

// collectionKey scopes a tracked source to one chat: sessions own their
// collections and never share ingestions or fees across chats.
type collectionKey struct {
	chatID int64
	ref    string
}

type collection struct {
	name   string // backend collection name
	source Source
	chatID int64

	state collectionState
	ready chan struct{} // closed once state is terminal

	// processingElapsed accumulates the time spent polling while the
	// backend reports the source as still processing.
	processingElapsed time.Duration

	// conversation carries the per-collection query history, seeded with a
	// system turn describing the source kind.
	conversation []ingest.QueryMessage
}

// DocumentAgent ingests URLs and PDFs through the backend and answers
// prompts against the resulting collections. Ingestion is idempotent per
// source: concurrent and repeated requests for the same source share one
// collection and one ingestion fee.
type DocumentAgent struct {
	client    *ingest.Client
	payments  payment.Service
	transport transport.Transport

	priceAdjustment float64
	initialWait     time.Duration
	pollInterval    time.Duration
	pollCap         time.Duration
	maxWait         time.Duration

	mu     sync.Mutex
	active map[collectionKey]*collection
}

// NewDocumentAgent creates the document enrichment subagent.
// priceAdjustment scales backend query fees; zero means no adjustment.
func NewDocumentAgent(client *ingest.Client, payments payment.Service, tr transport.Transport, priceAdjustment float64) *DocumentAgent {
	if priceAdjustment == 0 {
		priceAdjustment = 1
	}
	return &DocumentAgent{
		client:          client,
		payments:        payments,
		transport:       tr,
		priceAdjustment: priceAdjustment,
		initialWait:     defaultInitialWait,
		pollInterval:    defaultPollInterval,
		pollCap:         defaultPollCap,
		maxWait:         defaultMaxWait,
		active:          make(map[collectionKey]*collection),
	}
}

func (a *DocumentAgent) Name() string { return AgentName }

// Supports reports whether the source kind is handled here.
func (a *DocumentAgent) Supports(src Source) bool {
	return src.Kind == SourceURL || src.Kind == SourcePDF
}

// Run ingests the source if needed, then queries it with the invocation
// prompt. Blocks until done or failed.
func (a *DocumentAgent) Run(ctx context.Context, inv *Invocation) *Result {
	if !a.Supports(inv.Source) {
		return &Result{AgentID: inv.AgentID, Name: AgentName, Status: StatusNoEvent}
	}

	coll, owner := a.getOrCreate(inv)
	if owner {
		a.ingest(ctx, coll, inv)
	} else {
		select {
		case <-coll.ready:
		case <-ctx.Done():
			return &Result{AgentID: inv.AgentID, Name: AgentName, Status: StatusError}
		}
	}

	if coll.state != stateReady {
		return &Result{AgentID: inv.AgentID, Name: AgentName, Status: StatusError}
	}

	return a.query(ctx, coll, inv)
}

// getOrCreate returns the chat's tracked collection for the source, creating
// it if unseen. The second return is true when the caller owns ingestion.
func (a *DocumentAgent) getOrCreate(inv *Invocation) (*collection, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := collectionKey{chatID: inv.ChatID, ref: inv.Source.Ref()}
	if c, ok := a.active[key]; ok {
		return c, false
	}

	c := &collection{
		source: inv.Source,
		chatID: inv.ChatID,
		state:  stateWaiting,
		ready:  make(chan struct{}),
	}
	a.active[key] = c
	return c, true
}

// ingest registers the source with the backend and polls until it is priced,
// rejected or timed out. Terminal state is published by closing coll.ready.
func (a *DocumentAgent) ingest(ctx context.Context, coll *collection, inv *Invocation) {
	defer close(coll.ready)

	req := &ingest.AddDocumentRequest{ChatID: inv.ChatID, URL: inv.Source.URL}
	if inv.Source.Kind == SourcePDF {
		req.URL = ""
		req.PDFURL = inv.Source.URL
		req.FileName = inv.Source.FileName
	}

	name, err := a.client.AddDocument(ctx, req)
	if err != nil {
		L_error("subagent: add document failed", "source", inv.Source.Ref(), "error", err)
		a.fail(coll, stateFailed)
		return
	}
	coll.name = name
	coll.state = stateProcessing

	// Placeholder message, edited in place as the lifecycle progresses.
	statusMsg, err := a.transport.Send(ctx, inv.ChatID, "...", nil)
	if err != nil {
		L_warn("subagent: failed to send status message", "error", err)
	}

	if !a.sleep(ctx, a.initialWait) {
		a.fail(coll, stateFailed)
		return
	}

	coll.processingElapsed = a.initialWait
	interval := a.pollInterval
	for {
		price, err := a.client.CheckStatus(ctx, coll.name)
		if err != nil {
			L_error("subagent: status check failed", "collection", coll.name, "error", err)
			a.fail(coll, stateFailed)
			return
		}

		switch {
		case price > 0:
			memo := fmt.Sprintf("ingest %s", coll.source.Ref())
			if err := a.payments.Pay(ctx, inv.ChatID, price, memo); err != nil {
				if errors.Is(err, payment.ErrInsufficientBalance) {
					a.edit(ctx, statusMsg, insufficientBalanceText)
				} else {
					L_error("subagent: ingestion charge failed", "error", err)
				}
				a.fail(coll, stateFailed)
				return
			}
			coll.state = stateReady
			a.edit(ctx, statusMsg, fmt.Sprintf("%s processed (%.2f fee)",
				coll.source.display(), a.payments.PriceToNative(price)))
			return

		case price < 0:
			a.fail(coll, stateInvalid)
			a.edit(ctx, statusMsg, coll.source.invalidText())
			return

		default:
			if coll.processingElapsed > a.maxWait {
				a.fail(coll, stateTimedOut)
				a.edit(ctx, statusMsg, fmt.Sprintf(
					"%s - Processing time limit reached. Please check the file format and try again",
					coll.source.display()))
				return
			}
			if !a.sleep(ctx, interval) {
				a.fail(coll, stateFailed)
				return
			}
			coll.processingElapsed += interval
			if interval*2 <= a.pollCap {
				interval *= 2
			} else {
				interval = a.pollCap
			}
		}
	}
}

// query runs the prompt against the ready collection, charges the adjusted
// fee and wraps the completion in the context template.
func (a *DocumentAgent) query(ctx context.Context, coll *collection, inv *Invocation) *Result {
	a.mu.Lock()
	if len(coll.conversation) == 0 {
		coll.conversation = append(coll.conversation, ingest.QueryMessage{
			Role:    "system",
			Content: coll.source.seedText(),
		})
	}
	conversation := append([]ingest.QueryMessage(nil), coll.conversation...)
	a.mu.Unlock()

	resp, err := a.client.Query(ctx, &ingest.QueryRequest{
		CollectionName: coll.name,
		Prompt:         inv.Prompt,
		Conversation:   conversation,
	})
	if err != nil {
		L_error("subagent: query failed", "collection", coll.name, "error", err)
		return &Result{AgentID: inv.AgentID, Name: AgentName, Status: StatusError}
	}

	price := resp.Price * a.priceAdjustment
	memo := fmt.Sprintf("query %s", coll.source.Ref())
	if err := a.payments.Pay(ctx, inv.ChatID, price, memo); err != nil {
		if errors.Is(err, payment.ErrInsufficientBalance) {
			if _, sendErr := a.transport.Send(ctx, inv.ChatID, insufficientBalanceText, nil); sendErr != nil {
				L_warn("subagent: failed to send balance message", "error", sendErr)
			}
		} else {
			L_error("subagent: query charge failed", "error", err)
		}
		return &Result{AgentID: inv.AgentID, Name: AgentName, Status: StatusError}
	}

	a.mu.Lock()
	coll.conversation = append(coll.conversation,
		ingest.QueryMessage{Role: "user", Content: inv.Prompt},
		ingest.QueryMessage{Role: "assistant", Content: resp.Completion},
	)
	a.mu.Unlock()

	return &Result{
		AgentID:    inv.AgentID,
		Name:       AgentName,
		Completion: coll.source.wrapContext(resp.Completion),
		Status:     StatusDone,
	}
}

// fail marks a terminal non-READY state and forgets the source so a later
// request can retry ingestion from scratch.
func (a *DocumentAgent) fail(coll *collection, state collectionState) {
	coll.state = state
	a.mu.Lock()
	delete(a.active, collectionKey{chatID: coll.chatID, ref: coll.source.Ref()})
	a.mu.Unlock()
}

// Discard drops all of the chat's collections and deletes them from the
// backend so their resources are released.
func (a *DocumentAgent) Discard(ctx context.Context, chatID int64) {
	a.mu.Lock()
	var dropped []*collection
	for key, c := range a.active {
		if key.chatID == chatID {
			delete(a.active, key)
			dropped = append(dropped, c)
		}
	}
	a.mu.Unlock()

	for _, c := range dropped {
		if c.name == "" {
			continue
		}
		if err := a.client.DeleteCollection(ctx, c.name); err != nil {
			L_warn("subagent: collection delete failed", "collection", c.name, "error", err)
		}
	}
	if len(dropped) > 0 {
		L_info("subagent: collections discarded", "chatID", chatID, "count", len(dropped))
	}
}

func (a *DocumentAgent) edit(ctx context.Context, ref transport.MessageRef, text string) {
	if ref == (transport.MessageRef{}) {
		return
	}
	if err := a.transport.Edit(ctx, ref, text, nil); err != nil &&
		!errors.Is(err, transport.ErrMessageNotModified) {
		L_warn("subagent: status edit failed", "error", err)
	}
}

func (a *DocumentAgent) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

const insufficientBalanceText = "Your credit balance is too low for this request. Please top up and try again."

func (s Source) display() string {
	if s.Kind == SourcePDF && s.FileName != "" {
		return s.FileName
	}
	return s.URL
}

func (s Source) invalidText() string {
	if s.Kind == SourcePDF {
		return s.display() + " - Invalid PDF format"
	}
	return s.display() + " - Invalid URL"
}

func (s Source) seedText() string {
	if s.Kind == SourcePDF {
		return "The context comes from a PDF file supplied by the user"
	}
	return "The context comes from the web crawler of the given URL"
}

func (s Source) wrapContext(output string) string {
	if s.Kind == SourcePDF {
		return strings.NewReplacer("%FILE%", s.display(), "%OUTPUT%", output).Replace(pdfContextTemplate)
	}
	return strings.NewReplacer("%URL%", s.URL, "%OUTPUT%", output).Replace(urlContextTemplate)
}
