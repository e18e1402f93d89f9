package llm

import (
	"strings"
)

// ThrottleCap is the ceiling on the delta interval between emits.
const ThrottleCap = 64

// EllipsisMarker is appended to intermediate emits to signal generation is
// still in progress, and stripped before the final emit.
const EllipsisMarker = "..."

// StreamThrottle accumulates streamed deltas and emits snapshots at
// exponentially widening intervals: the first after 2 deltas, then 4, 8, up
// to ThrottleCap deltas between emits. Early feedback stays fast while the
// edit rate on long completions stays bounded.
//
// Intermediate snapshots carry a trailing ellipsis marker; Finish emits the
// complete text with all markers stripped. Not safe for concurrent use; each
// completion gets its own throttle.
type StreamThrottle struct {
	emit     func(text string, final bool) error
	buf      strings.Builder
	interval int // deltas until the next emit
	count    int // deltas since the last emit
}

// NewStreamThrottle creates a throttle delivering snapshots through emit.
// emit receives the accumulated text and whether this is the final,
// complete snapshot.
func NewStreamThrottle(emit func(text string, final bool) error) *StreamThrottle {
	return &StreamThrottle{emit: emit, interval: 2}
}

// OnDelta appends a content fragment and emits a snapshot once enough deltas
// accumulated since the last one. Errors from emit are returned to the
// caller, which decides whether the failure is tolerable.
func (t *StreamThrottle) OnDelta(delta string) error {
	t.buf.WriteString(delta)
	t.count++

	if t.count <= t.interval {
		return nil
	}

	if t.interval < ThrottleCap {
		t.interval *= 2
	}
	t.count = 0

	text := strings.ReplaceAll(t.buf.String(), EllipsisMarker, "")
	return t.emit(text+EllipsisMarker, false)
}

// Finish emits the complete accumulated text without progress markers and
// returns it.
func (t *StreamThrottle) Finish() (string, error) {
	text := strings.ReplaceAll(t.buf.String(), EllipsisMarker, "")
	return text, t.emit(text, true)
}

// Content returns the text accumulated so far, markers included.
func (t *StreamThrottle) Content() string {
	return t.buf.String()
}
