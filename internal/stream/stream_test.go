package stream

import (
	"net/http/httptest"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/guyzmo/ssemux/internal/event"
)

func TestEmitStringEventFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/poll/tok1", nil)
	w, err := New(rec, req)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ev, _ := event.New(event.StringPolicy{}, nil, "tok1", "ping", []byte("hello\nworld"))
	if err := w.Emit(ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	body := rec.Body.String()
	want := "event: ping\r\ndata: hello\r\ndata: world\r\n\r\n"
	if body != want {
		t.Errorf("got %q, want %q", body, want)
	}
}

func TestEmitWithIDAndRetry(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/poll/tok1", nil)
	w, _ := New(rec, req)
	w.SetRetry(2500)
	var ids event.Counter
	ev, _ := event.New(event.StringIDPolicy{}, &ids, "tok1", "ping", []byte("x"))
	if err := w.Emit(ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "id: 0\r\nretry: 2500\r\nevent: ping\r\n") {
		t.Errorf("got %q", body)
	}

	// retry must be cleared after one emit.
	rec.Body.Reset()
	ev2, _ := event.New(event.StringIDPolicy{}, &ids, "tok1", "ping", []byte("y"))
	if err := w.Emit(ev2); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if strings.Contains(rec.Body.String(), "retry:") {
		t.Errorf("retry override should have been cleared, got %q", rec.Body.String())
	}
}

func TestKeepaliveFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/poll/tok1", nil)
	w, _ := New(rec, req)
	ts := time.Unix(1234567890, 0)
	if err := w.Keepalive(ts); err != nil {
		t.Fatalf("Keepalive: %v", err)
	}
	want := ": keepalive 1234567890\r\n\r\n"
	if rec.Body.String() != want {
		t.Errorf("got %q, want %q", rec.Body.String(), want)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/poll/tok1", nil)
	w, _ := New(rec, req)
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	ev, _ := event.New(event.StringPolicy{}, nil, "tok1", "ping", []byte("x"))
	if err := w.Emit(ev); err == nil {
		t.Error("Emit on a closed writer should fail")
	}
}

func TestLastEventIDFromHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/poll/tok1", nil)
	req.Header.Set("Last-Event-ID", "42")
	w, _ := New(rec, req)
	if w.LastEventID != "42" {
		t.Errorf("got %q, want 42", w.LastEventID)
	}
}
