// Package subagent enriches chat requests with external context. Each URL or
// PDF found in a request is handed to the ingestion backend, tracked through
// its collection lifecycle and finally queried, yielding a context block the
// gateway prepends to the model conversation.
package subagent

import (
	"context"
	"strings"
)

// Status is the terminal state of one subagent invocation.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusError      Status = "ERROR"
	StatusNoEvent    Status = "NO_SUPPORTED_EVENT"
)

// SourceKind distinguishes web pages from PDF documents.
type SourceKind string

const (
	SourceURL SourceKind = "URL"
	SourcePDF SourceKind = "PDF"
)

// Source is one enrichment input extracted from a request.
type Source struct {
	Kind     SourceKind
	URL      string // the page URL, or the download URL of a PDF
	FileName string // PDF only
}

// Ref returns the normalized identity used for idempotency: an already
// ingested source is queried again rather than re-ingested.
func (s Source) Ref() string {
	if s.Kind == SourcePDF && s.FileName != "" {
		return strings.ToLower(s.FileName)
	}
	return strings.ToLower(s.URL)
}

// Invocation is one enrichment request for one source.
type Invocation struct {
	ChatID  int64
	AgentID int // the originating request id, echoed in the result
	Prompt  string
	Source  Source
}

// Result is the outcome of one invocation. Completion is empty unless the
// status is StatusDone.
type Result struct {
	AgentID    int
	Name       string
	Completion string
	Status     Status
}

// Subagent runs one enrichment invocation to completion. Implementations
// block until the source is ingested and queried or until enrichment fails;
// callers typically run them in their own goroutine and join on the result.
type Subagent interface {
	Name() string

	// Supports reports whether this subagent handles the source.
	Supports(src Source) bool

	// Run executes the invocation and always returns a Result, never nil.
	Run(ctx context.Context, inv *Invocation) *Result

	// Discard drops everything held for the chat and releases the backing
	// resources. Called when the chat's session is reset.
	Discard(ctx context.Context, chatID int64)
}
