package sseclient

import (
	"errors"
	"testing"

	"github.com/guyzmo/ssemux/internal/sseerr"
)

func TestFeedWholeMessageAtOnce(t *testing.T) {
	p := NewParser(0)
	events, err := p.Feed([]byte("event: ping\r\ndata: hi\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %+v", events)
	}
	if events[0].Name != "ping" || events[0].Data != "hi" {
		t.Fatalf("got %+v", events[0])
	}
}

func TestFeedIdempotentAcrossChunkBoundaries(t *testing.T) {
	msg := "event: ping\r\ndata: hi\r\n\r\n"
	for split := 0; split <= len(msg); split++ {
		p := NewParser(0)
		var got []Event
		first := []byte(msg[:split])
		second := []byte(msg[split:])
		for _, chunk := range [][]byte{first, second} {
			if len(chunk) == 0 {
				continue
			}
			events, err := p.Feed(chunk)
			if err != nil {
				t.Fatalf("split=%d: unexpected error: %v", split, err)
			}
			got = append(got, events...)
		}
		if len(got) != 1 {
			t.Fatalf("split=%d: expected exactly one event, got %+v", split, got)
		}
		if got[0].Name != "ping" || got[0].Data != "hi" {
			t.Fatalf("split=%d: got %+v", split, got[0])
		}
	}
}

func TestFeedMultilineData(t *testing.T) {
	p := NewParser(0)
	events, err := p.Feed([]byte("event: msg\r\ndata: line one\r\ndata: line two\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Data != "line one\nline two" {
		t.Fatalf("got %+v", events)
	}
}

func TestFeedTracksLastEventID(t *testing.T) {
	p := NewParser(0)
	_, err := p.Feed([]byte("id: 42\r\nevent: ping\r\ndata: x\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.LastEventID != "42" {
		t.Fatalf("LastEventID = %q, want 42", p.LastEventID)
	}
}

func TestFeedTracksRetryDirective(t *testing.T) {
	p := NewParser(0)
	_, err := p.Feed([]byte("retry: 5000\r\nevent: ping\r\ndata: x\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.RetryTimeout != 5000 {
		t.Fatalf("RetryTimeout = %d, want 5000", p.RetryTimeout)
	}
}

func TestFeedIgnoresMalformedRetry(t *testing.T) {
	p := NewParser(0)
	p.RetryTimeout = 10
	_, err := p.Feed([]byte("retry: not-a-number\r\nevent: ping\r\ndata: x\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.RetryTimeout != 10 {
		t.Fatalf("RetryTimeout changed to %d on malformed input", p.RetryTimeout)
	}
}

func TestFeedCommentOnlyBlockYieldsNoEvent(t *testing.T) {
	p := NewParser(0)
	events, err := p.Feed([]byte(": keepalive 1234\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no event from a comment-only block, got %+v", events)
	}
}

func TestFeedUnknownFieldRejected(t *testing.T) {
	p := NewParser(0)
	_, err := p.Feed([]byte("bogus: whatever\r\nevent: ping\r\ndata: x\r\n\r\n"))
	if !errors.Is(err, sseerr.ErrUnknownField) {
		t.Fatalf("got err %v, want ErrUnknownField", err)
	}
}

func TestFeedOverflowsPartialBound(t *testing.T) {
	p := NewParser(8)
	_, err := p.Feed([]byte("0123456789"))
	if !errors.Is(err, sseerr.ErrPartialChunkOverflow) {
		t.Fatalf("got err %v, want ErrPartialChunkOverflow", err)
	}
}

func TestFeedEmptyChunkIsNoop(t *testing.T) {
	p := NewParser(0)
	events, err := p.Feed(nil)
	if err != nil || len(events) != 0 {
		t.Fatalf("got (%v, %v), want (nil, nil)", events, err)
	}
}

func TestFeedDeliversMultipleEventsFromOneChunk(t *testing.T) {
	p := NewParser(0)
	events, err := p.Feed([]byte("event: a\r\ndata: 1\r\n\r\nevent: b\r\ndata: 2\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events, got %+v", events)
	}
	if events[0].Name != "a" || events[1].Name != "b" {
		t.Fatalf("got %+v", events)
	}
}
