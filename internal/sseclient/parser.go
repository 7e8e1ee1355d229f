// Package sseclient implements the symmetric client half of the
// protocol: the SSE wire parser (spec §4.8) and the reconnect policy
// (spec §4.9), grounded directly on
// original_source/eventsource/client.py's handle_stream/handle_request/
// poll() algorithm.
package sseclient

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/guyzmo/ssemux/internal/sseerr"
)

// DefaultMaxPartialChunk bounds the parser's unterminated-line buffer.
// The original has no such bound (spec §9 flags this as an open
// question); 64 KiB is the example size spec §9 suggests.
const DefaultMaxPartialChunk = 64 * 1024

// Event is one event delivered to the parser's caller.
type Event struct {
	Name string
	Data string
	ID   string
}

// Parser reassembles chunked SSE bodies and parses the line grammar into
// Events. It processes complete lines as they arrive and accumulates
// field state (event name, data lines) on the Parser itself across Feed
// calls, delivering an Event only when a blank line terminates the
// current message — the same field-by-field accumulation the wire
// grammar describes (spec §4.8 steps 4-5), rather than assuming a whole
// message arrives in one chunk.
type Parser struct {
	// buf holds bytes not yet resolved into a complete line (no \n seen
	// yet). Bounded by maxPartial.
	buf        []byte
	maxPartial int

	// curName/curData accumulate the in-progress event's fields across
	// Feed calls, reset once the event is delivered or discarded at the
	// next blank line.
	curName string
	curData []string

	LastEventID string
	// RetryTimeout is the most recently observed retry: directive, in
	// milliseconds. It persists across Feed calls and across
	// reconnects — spec §9 asks to keep ms arithmetic end-to-end and
	// convert only at the sleep call (see ReconnectPolicy).
	RetryTimeout int
}

// NewParser returns a Parser whose partial-line buffer is bounded at
// maxPartial bytes. maxPartial <= 0 selects DefaultMaxPartialChunk.
func NewParser(maxPartial int) *Parser {
	if maxPartial <= 0 {
		maxPartial = DefaultMaxPartialChunk
	}
	return &Parser{maxPartial: maxPartial}
}

// Feed consumes one byte chunk from the transport, in arrival order, and
// returns every Event completed by it (often zero, occasionally more
// than one if the chunk happens to carry several full messages). An
// unnamed — event-less — message (e.g. a comment-only block) is
// discarded at its terminating blank line without producing an Event,
// same as the original's "if event.name is not None".
//
// Feed is idempotent under chunk-boundary shifts: splitting the same byte
// sequence into chunks a different way produces the same sequence of
// delivered Events, because field state is accumulated line-by-line on
// the Parser itself rather than assumed complete within one chunk (spec
// §8).
func (p *Parser) Feed(chunk []byte) ([]Event, error) {
	if len(chunk) > 0 {
		p.buf = append(p.buf, chunk...)
	}

	var events []Event
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx == -1 {
			break
		}
		line := bytes.TrimSuffix(p.buf[:idx], []byte("\r"))
		p.buf = p.buf[idx+1:]

		ev, ok, err := p.processLine(string(line))
		if err != nil {
			return events, err
		}
		if ok {
			events = append(events, ev)
		}
	}

	if len(p.buf) > p.maxPartial {
		p.buf = nil
		return events, sseerr.ErrPartialChunkOverflow
	}
	return events, nil
}

// processLine handles one complete line (terminator already stripped).
// A blank line ends the current message: it reports (Event, true, nil)
// if the accumulated event had a name, or (Event{}, false, nil) if it
// was unnamed (discarded). Any other line updates the in-progress event
// state and always reports ok=false.
func (p *Parser) processLine(line string) (Event, bool, error) {
	if line == "" {
		name, data := p.curName, p.curData
		p.curName, p.curData = "", nil
		if name == "" {
			return Event{}, false, nil
		}
		ev := Event{Name: name, ID: p.LastEventID}
		if len(data) > 0 {
			ev.Data = strings.Join(data, "\n")
		}
		return ev, true, nil
	}

	field, value, hasColon := strings.Cut(line, ":")
	if !hasColon {
		return Event{}, false, fmt.Errorf("%w: %q", sseerr.ErrUnknownField, line)
	}
	field = strings.TrimSpace(field)
	switch field {
	case "event":
		p.curName = strings.TrimPrefix(value, " ")
	case "data":
		p.curData = append(p.curData, strings.TrimPrefix(value, " "))
	case "id":
		p.LastEventID = strings.TrimPrefix(value, " ")
	case "retry":
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			p.RetryTimeout = n
		}
		// Non-numeric retry values are ignored, per spec §4.8 step 5:
		// RetryTimeout keeps its previous value, no error is returned,
		// and nothing is logged for them.
	case "":
		// Comment line (began with ':'); nothing to do.
	default:
		return Event{}, false, fmt.Errorf("%w: %q", sseerr.ErrUnknownField, field)
	}
	return Event{}, false, nil
}
