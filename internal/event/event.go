// Package event implements the SSE event model: an immutable Event record
// plus the four variant policies that govern serialization, the allowed
// action vocabulary, and id generation.
//
// The original source (original_source/eventsource/listener.py) expressed
// this as a four-class inheritance hierarchy (Event, StringEvent,
// JSONEvent, StringIdEvent, JSONIdEvent) with property-descriptor magic
// for lazy id/value computation. Per the redesign notes, that collapses
// here into one Event record and a small Policy interface covering the
// two orthogonal axes (payload encoding, id generation).
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/guyzmo/ssemux/internal/sseerr"
)

// Reserved actions. ActionPoll opens a subscription (GET only, never
// posted). ActionClose and ActionRetry are control actions: close is
// accepted by every Policy's AllowedActions and retry only by the
// id-enabled ones; the dispatch loop consumes them itself and never
// forwards them to the client as an event body.
const (
	ActionPoll  = "poll"
	ActionClose = "close"
	ActionRetry = "retry"
)

// Event is an immutable record carrying one publisher-submitted action
// addressed to one target. Lines holds the payload already formatted into
// SSE data-lines by the variant's Policy at construction time, so a
// malformed payload (e.g. bad JSON) fails at the POST boundary rather
// than lazily during dispatch.
type Event struct {
	Target  string
	Action  string
	Payload []byte
	Lines   []string
	ID      *uint64 // nil unless the variant generates ids
}

// Counter is a process-wide monotonic id source starting at 0. It backs
// both id-enabled variants; per spec, ids are consumed at construction
// time even if the event is later discarded before transmission, so
// Counter has no notion of "return" or "undo".
type Counter struct {
	n atomic.Uint64
}

// Next returns the next id, starting at 0 on the first call.
func (c *Counter) Next() uint64 {
	return c.n.Add(1) - 1
}

// Policy governs one variant's behavior: the advertised content type, the
// action vocabulary a POST may use, how a raw payload becomes SSE
// data-lines, and whether events carry a generated id.
type Policy interface {
	// ContentType is advertised via the Accept response header on POST.
	ContentType() string
	// AllowedActions lists every action this variant accepts on POST,
	// including the control actions close (and retry, for id-enabled
	// variants).
	AllowedActions() []string
	// FormatPayload turns a raw POST body into ordered data-lines, or
	// returns a wrapped sseerr.ErrMalformedPayload if the payload is
	// invalid for this variant.
	FormatPayload(raw []byte) ([]string, error)
	// HasID reports whether this variant generates a monotonic id per
	// event.
	HasID() bool
}

func containsAction(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// New constructs an Event under policy p, validating the action against
// p.AllowedActions() and formatting the payload eagerly. If p.HasID()
// and action is not a control action (close, retry), the event's id is
// assigned here, from ids, and is never re-assigned. Control actions are
// never emitted as frames and take no id.
func New(p Policy, ids *Counter, target, action string, payload []byte) (*Event, error) {
	if !containsAction(p.AllowedActions(), action) {
		return nil, fmt.Errorf("%w: %q", sseerr.ErrUnknownAction, action)
	}

	// Control actions carry their payload through unformatted: retry's
	// payload is a decimal integer consumed by the dispatch loop, close
	// carries no meaningful payload at all. Only genuine emitted actions
	// need variant-specific line formatting.
	var lines []string
	if action != ActionClose && action != ActionRetry {
		var err error
		lines, err = p.FormatPayload(payload)
		if err != nil {
			return nil, err
		}
	}

	ev := &Event{
		Target:  target,
		Action:  action,
		Payload: payload,
		Lines:   lines,
	}
	if p.HasID() && ids != nil && action != ActionClose && action != ActionRetry {
		id := ids.Next()
		ev.ID = &id
	}
	return ev, nil
}

// StringPolicy implements the StringEvent variant: multi-line UTF-8 text,
// split on \n into data lines, no generated id.
type StringPolicy struct{}

func (StringPolicy) ContentType() string       { return "text/plain" }
func (StringPolicy) AllowedActions() []string  { return []string{"ping", ActionClose} }
func (StringPolicy) HasID() bool               { return false }
func (StringPolicy) FormatPayload(raw []byte) ([]string, error) {
	return splitLines(raw), nil
}

// JSONPolicy implements the JSONEvent variant: payload must parse as
// JSON; the canonical (single-line, re-encoded) form is what gets
// written, no generated id.
type JSONPolicy struct{}

func (JSONPolicy) ContentType() string      { return "application/json" }
func (JSONPolicy) AllowedActions() []string { return []string{"ping", ActionClose} }
func (JSONPolicy) HasID() bool              { return false }
func (JSONPolicy) FormatPayload(raw []byte) ([]string, error) {
	return formatJSON(raw)
}

// StringIDPolicy implements the StringIdEvent variant: as StringPolicy,
// plus a generated monotonic id and the retry control action.
type StringIDPolicy struct{}

func (StringIDPolicy) ContentType() string      { return "text/plain" }
func (StringIDPolicy) AllowedActions() []string { return []string{"ping", ActionRetry, ActionClose} }
func (StringIDPolicy) HasID() bool              { return true }
func (StringIDPolicy) FormatPayload(raw []byte) ([]string, error) {
	return splitLines(raw), nil
}

// JSONIDPolicy implements the JSONIdEvent variant: as JSONPolicy, plus a
// generated monotonic id and the retry control action.
type JSONIDPolicy struct{}

func (JSONIDPolicy) ContentType() string      { return "application/json" }
func (JSONIDPolicy) AllowedActions() []string { return []string{"ping", ActionRetry, ActionClose} }
func (JSONIDPolicy) HasID() bool              { return true }
func (JSONIDPolicy) FormatPayload(raw []byte) ([]string, error) {
	return formatJSON(raw)
}

func splitLines(raw []byte) []string {
	return strings.Split(string(raw), "\n")
}

func formatJSON(raw []byte) ([]string, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", sseerr.ErrMalformedPayload, err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("%w: %v", sseerr.ErrMalformedPayload, err)
	}
	// json.Encoder.Encode appends a trailing newline; the result must be
	// a single data line. json.Indent with an empty indent puts each
	// element on its own line and writes ": " after keys; joining those
	// lines back with ", " gives the spaced form, e.g. {"a": 1}.
	var spaced bytes.Buffer
	if err := json.Indent(&spaced, bytes.TrimSuffix(buf.Bytes(), []byte("\n")), "", ""); err != nil {
		return nil, fmt.Errorf("%w: %v", sseerr.ErrMalformedPayload, err)
	}
	line := strings.ReplaceAll(spaced.String(), ",\n", ", ")
	return []string{strings.ReplaceAll(line, "\n", "")}, nil
}

// PolicyByName resolves the CLI-facing variant name ("string", "json",
// "string-id", "json-id") to its Policy. Used by cmd/listener's --variant
// flag.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "string":
		return StringPolicy{}, nil
	case "json":
		return JSONPolicy{}, nil
	case "string-id":
		return StringIDPolicy{}, nil
	case "json-id":
		return JSONIDPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown variant %q (want string, json, string-id, json-id)", name)
	}
}
