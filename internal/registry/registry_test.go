package registry

import (
	"testing"

	"github.com/guyzmo/ssemux/internal/event"
	"github.com/guyzmo/ssemux/internal/sseerr"
)

type fakeConn struct{ closed bool }

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestOpenRejectsSecondSubscriber(t *testing.T) {
	r := New[*fakeConn]()
	if err := r.Open("tok1", &fakeConn{}); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	err := r.Open("tok1", &fakeConn{})
	if err == nil {
		t.Fatal("expected AlreadyConnected on second Open")
	}
	if got := sseerr.HTTPStatus(err); got != 423 {
		t.Errorf("status = %d, want 423", got)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := New[*fakeConn]()
	conn := &fakeConn{}
	_ = r.Open("tok1", conn)
	r.Close("tok1")
	r.Close("tok1") // must not panic or double-close badly
	if !conn.closed {
		t.Fatal("connection should have been closed")
	}
	if r.IsConnected("tok1") {
		t.Fatal("target should no longer be connected")
	}
}

func TestEnqueueUnknownTarget(t *testing.T) {
	r := New[*fakeConn]()
	ev, _ := event.New(event.StringPolicy{}, nil, "tok1", "ping", []byte("x"))
	err := r.Enqueue("tok1", ev)
	if err == nil {
		t.Fatal("expected UnknownTarget error")
	}
}

func TestDrainFIFOOrder(t *testing.T) {
	r := New[*fakeConn]()
	_ = r.Open("tok1", &fakeConn{})
	for _, data := range []string{"a", "b", "c"} {
		ev, _ := event.New(event.StringPolicy{}, nil, "tok1", "ping", []byte(data))
		if err := r.Enqueue("tok1", ev); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	drained := r.Drain("tok1")
	if len(drained) != 3 {
		t.Fatalf("got %d events, want 3", len(drained))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(drained[i].Payload) != want {
			t.Errorf("event %d payload = %q, want %q", i, drained[i].Payload, want)
		}
	}
	// Buffer should now be empty.
	if more := r.Drain("tok1"); len(more) != 0 {
		t.Errorf("expected empty drain after full drain, got %d", len(more))
	}
}

func TestDiscardedEventsOnClose(t *testing.T) {
	r := New[*fakeConn]()
	_ = r.Open("tok1", &fakeConn{})
	ev, _ := event.New(event.StringPolicy{}, nil, "tok1", "ping", []byte("queued"))
	_ = r.Enqueue("tok1", ev)
	r.Close("tok1")
	if r.IsConnected("tok1") {
		t.Fatal("target should be gone")
	}
	// A fresh Open must start with an empty buffer: the old queued event
	// must not resurface.
	_ = r.Open("tok1", &fakeConn{})
	if drained := r.Drain("tok1"); len(drained) != 0 {
		t.Errorf("stale buffered event resurfaced: %v", drained)
	}
}
