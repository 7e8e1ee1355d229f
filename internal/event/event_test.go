package event

import (
	"errors"
	"testing"

	"github.com/guyzmo/ssemux/internal/sseerr"
)

func TestStringEventSplitsLines(t *testing.T) {
	ev, err := New(StringPolicy{}, nil, "tok1", "ping", []byte("hello\nworld"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []string{"hello", "world"}
	if len(ev.Lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(ev.Lines), len(want))
	}
	for i, l := range want {
		if ev.Lines[i] != l {
			t.Errorf("line %d = %q, want %q", i, ev.Lines[i], l)
		}
	}
	if ev.ID != nil {
		t.Errorf("StringEvent should not have an id, got %v", *ev.ID)
	}
}

func TestJSONEventCanonicalizes(t *testing.T) {
	ev, err := New(JSONPolicy{}, nil, "tok1", "ping", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(ev.Lines) != 1 {
		t.Fatalf("want exactly one data line, got %d", len(ev.Lines))
	}
	if ev.Lines[0] != `{"a": 1}` {
		t.Errorf("got %q", ev.Lines[0])
	}
}

func TestJSONEventRejectsMalformed(t *testing.T) {
	_, err := New(JSONPolicy{}, nil, "tok1", "ping", []byte(`{"a":1`))
	if !errors.Is(err, sseerr.ErrMalformedPayload) {
		t.Fatalf("got %v, want ErrMalformedPayload", err)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	_, err := New(JSONPolicy{}, nil, "tok1", "retry", []byte("1000"))
	if !errors.Is(err, sseerr.ErrUnknownAction) {
		t.Fatalf("got %v, want ErrUnknownAction (JSONEvent has no retry action)", err)
	}
}

func TestIDCounterMonotonic(t *testing.T) {
	var ids Counter
	ev1, err := New(StringIDPolicy{}, &ids, "tok1", "ping", []byte("a"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ev2, err := New(StringIDPolicy{}, &ids, "tok1", "ping", []byte("b"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ev1.ID == nil || ev2.ID == nil {
		t.Fatal("StringIdEvent must generate ids")
	}
	if *ev1.ID != 0 || *ev2.ID != 1 {
		t.Errorf("got ids %d, %d, want 0, 1", *ev1.ID, *ev2.ID)
	}
}

func TestIDConsumedEvenIfDiscarded(t *testing.T) {
	var ids Counter
	// ev1 is constructed and then discarded without ever being emitted.
	// Its id stays consumed, so ev2 must not be handed the same value.
	ev1, _ := New(JSONIDPolicy{}, &ids, "tok1", "ping", []byte(`1`))
	ev2, _ := New(JSONIDPolicy{}, &ids, "tok1", "ping", []byte(`2`))
	if *ev1.ID == *ev2.ID {
		t.Fatal("ids must not repeat")
	}
}

func TestRetryActionCarriesRawPayload(t *testing.T) {
	ev, err := New(StringIDPolicy{}, new(Counter), "tok1", ActionRetry, []byte("2500"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ev.Lines != nil {
		t.Errorf("retry action should not be formatted into data lines, got %v", ev.Lines)
	}
	if string(ev.Payload) != "2500" {
		t.Errorf("got payload %q", ev.Payload)
	}
}

func TestCloseActionAllowedOnEveryVariant(t *testing.T) {
	for _, p := range []Policy{StringPolicy{}, JSONPolicy{}, StringIDPolicy{}, JSONIDPolicy{}} {
		if _, err := New(p, new(Counter), "tok1", ActionClose, nil); err != nil {
			t.Errorf("%T: close should always be allowed, got %v", p, err)
		}
	}
}

func TestPolicyByName(t *testing.T) {
	cases := map[string]Policy{
		"string":    StringPolicy{},
		"json":      JSONPolicy{},
		"string-id": StringIDPolicy{},
		"json-id":   JSONIDPolicy{},
	}
	for name, want := range cases {
		got, err := PolicyByName(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got.ContentType() != want.ContentType() {
			t.Errorf("%s: content type mismatch", name)
		}
	}
	if _, err := PolicyByName("bogus"); err == nil {
		t.Error("expected error for unknown variant name")
	}
}
