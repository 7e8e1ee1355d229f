package httpapi

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/guyzmo/ssemux/internal/event"
)

// subscribe starts a GET /poll/<target> against the httptest server srv
// and returns a channel of raw SSE frames (one string per blank-line
// terminated block) read as they arrive.
func subscribe(t *testing.T, srv *httptest.Server, target string) (frames <-chan string, cancel func()) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/poll/"+target, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscribe: got status %d", resp.StatusCode)
	}

	ch := make(chan string, 16)
	go func() {
		defer close(ch)
		r := bufio.NewReader(resp.Body)
		var buf strings.Builder
		for {
			line, err := r.ReadString('\n')
			buf.WriteString(line)
			if strings.TrimRight(line, "\r\n") == "" && buf.Len() > 0 {
				ch <- buf.String()
				buf.Reset()
			}
			if err != nil {
				return
			}
		}
	}()

	return ch, func() { resp.Body.Close() }
}

func newTestServer(t *testing.T, policy event.Policy) (*httptest.Server, *Server) {
	t.Helper()
	s := New(policy, 0, zap.NewNop())
	r := NewRouter(s, zap.NewNop(), RouterOptions{MaxRequestBodyBytes: 1 << 20})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, s
}

func postOK(t *testing.T, srv *httptest.Server, action, target, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/"+action+"/"+target, "text/plain", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func waitForFrame(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			t.Fatal("stream closed before a frame arrived")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return ""
}

func TestSingleEventStringVariant(t *testing.T) {
	srv, _ := newTestServer(t, event.StringPolicy{})
	frames, cancel := subscribe(t, srv, "tok1")
	defer cancel()

	// give the subscriber a moment to register before posting
	time.Sleep(20 * time.Millisecond)

	resp := postOK(t, srv, "ping", "tok1", "hello\nworld")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST got status %d", resp.StatusCode)
	}

	frame := waitForFrame(t, frames)
	if !strings.Contains(frame, "event: ping\r\n") {
		t.Fatalf("frame missing event line: %q", frame)
	}
	if !strings.Contains(frame, "data: hello\r\n") || !strings.Contains(frame, "data: world\r\n") {
		t.Fatalf("frame missing data lines: %q", frame)
	}
}

func TestRetryDirectiveThenEvent(t *testing.T) {
	srv, _ := newTestServer(t, event.StringIDPolicy{})
	frames, cancel := subscribe(t, srv, "tok1")
	defer cancel()
	time.Sleep(20 * time.Millisecond)

	postOK(t, srv, "retry", "tok1", "2500")
	postOK(t, srv, "ping", "tok1", "x")

	frame := waitForFrame(t, frames)
	if !strings.Contains(frame, "retry: 2500\r\n") {
		t.Fatalf("frame missing retry directive: %q", frame)
	}
	if !strings.Contains(frame, "id: 0\r\n") {
		t.Fatalf("frame missing id 0: %q", frame)
	}
	if !strings.Contains(frame, "data: x\r\n") {
		t.Fatalf("frame missing data: %q", frame)
	}
}

func TestSecondSubscriberRejected(t *testing.T) {
	srv, _ := newTestServer(t, event.StringPolicy{})
	_, cancelA := subscribe(t, srv, "tok1")
	defer cancelA()
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get(srv.URL + "/poll/tok1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusLocked {
		t.Fatalf("got status %d, want 423", resp.StatusCode)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	srv, _ := newTestServer(t, event.JSONPolicy{})
	_, cancel := subscribe(t, srv, "tok1")
	defer cancel()
	time.Sleep(20 * time.Millisecond)

	resp := postOK(t, srv, "retry", "tok1", "1000")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", resp.StatusCode)
	}
}

func TestJSONValidation(t *testing.T) {
	srv, _ := newTestServer(t, event.JSONPolicy{})
	frames, cancel := subscribe(t, srv, "tok1")
	defer cancel()
	time.Sleep(20 * time.Millisecond)

	bad := postOK(t, srv, "ping", "tok1", `{"a":1`)
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed JSON got status %d, want 400", bad.StatusCode)
	}

	good := postOK(t, srv, "ping", "tok1", `{"a":1}`)
	if good.StatusCode != http.StatusOK {
		t.Fatalf("valid JSON got status %d", good.StatusCode)
	}

	frame := waitForFrame(t, frames)
	if !strings.Contains(frame, `data: {"a": 1}`) {
		t.Fatalf("frame missing canonicalized JSON: %q", frame)
	}
}

func TestCloseAfterQueuedEvents(t *testing.T) {
	srv, s := newTestServer(t, event.StringPolicy{})
	frames, cancel := subscribe(t, srv, "tok1")
	defer cancel()
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		postOK(t, srv, "ping", "tok1", "one")
		postOK(t, srv, "ping", "tok1", "two")
		postOK(t, srv, "close", "tok1", "")
	}()
	wg.Wait()

	first := waitForFrame(t, frames)
	second := waitForFrame(t, frames)
	if !strings.Contains(first, "data: one\r\n") || !strings.Contains(second, "data: two\r\n") {
		t.Fatalf("unexpected frame order: %q / %q", first, second)
	}

	deadline := time.After(2 * time.Second)
	for s.reg.IsConnected("tok1") {
		select {
		case <-deadline:
			t.Fatal("subscription never closed after close action")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}
