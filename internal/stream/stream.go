// Package stream implements the SSE stream writer: the component that
// formats Events as wire-format SSE frames on an open HTTP response body,
// holds the per-stream retry_override slot, and runs the keepalive timer
// (spec §4.3, §4.5).
package stream

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/guyzmo/ssemux/internal/event"
	"github.com/guyzmo/ssemux/internal/sseerr"
)

// Writer wraps an http.ResponseWriter that has already been claimed for a
// long-lived SSE response. All writes — event frames and keepalive
// comments alike — go through the same mutex, so a keepalive tick can
// never interleave with a multi-line event frame: it either completes
// before the frame starts or waits until the frame (and its trailing
// blank line) is done. This is the concurrent-scheduler equivalent of
// spec §4.5's "automatic on a single-threaded cooperative scheduler" note.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool

	// retryOverride holds a pending retry: directive, set by SetRetry and
	// emitted (then cleared) on the very next Emit call. Mirrors the
	// original's self._retry field (original_source/eventsource/listener.py).
	retryOverride *int

	// LastEventID is populated from the request's Last-Event-ID header,
	// if present, for handlers that want to resume from it. The writer
	// itself does not act on it, and no events are replayed from it.
	LastEventID string

	keepaliveStop chan struct{}
	keepaliveWG   sync.WaitGroup
}

// New claims w for a long-lived SSE response: sets the required headers
// and returns a Writer ready to Emit. Returns a wrapped
// sseerr.ErrWriteFault if w does not support flushing, since every SSE
// write must be promptly flushed per spec §4.3.
func New(w http.ResponseWriter, r *http.Request) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("%w: response writer does not support flushing", sseerr.ErrWriteFault)
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	sw := &Writer{w: w, flusher: flusher}
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		sw.LastEventID = id
	}
	return sw, nil
}

// SetRetry arms the retry_override slot with ms. It is emitted as a
// retry: line before the next Emit call's frame, then cleared.
func (s *Writer) SetRetry(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryOverride = &ms
}

// Emit writes ev as one SSE frame: id (if present), retry (if armed,
// consuming the slot), event, one data: line per ev.Lines, then a
// terminating blank line, followed by an explicit flush. Returns a
// wrapped sseerr.ErrWriteFault on any write error, and on a write to an
// already-closed Writer.
func (s *Writer) Emit(ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: stream already closed", sseerr.ErrWriteFault)
	}

	var buf bytes.Buffer
	if ev.ID != nil {
		fmt.Fprintf(&buf, "id: %d\r\n", *ev.ID)
	}
	if s.retryOverride != nil {
		fmt.Fprintf(&buf, "retry: %d\r\n", *s.retryOverride)
		s.retryOverride = nil
	}
	fmt.Fprintf(&buf, "event: %s\r\n", ev.Action)
	for _, line := range ev.Lines {
		fmt.Fprintf(&buf, "data: %s\r\n", line)
	}
	buf.WriteString("\r\n")

	return s.writeAndFlush(buf.Bytes())
}

// Keepalive writes a single comment frame carrying the current Unix
// timestamp: ": keepalive <unix-ts>\r\n\r\n". Exported so callers that run
// their own ticker (tests, or a caller that wants manual control) can
// drive it directly; StartKeepalive is the usual entry point.
func (s *Writer) Keepalive(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: stream already closed", sseerr.ErrWriteFault)
	}
	frame := fmt.Sprintf(": keepalive %d\r\n\r\n", now.Unix())
	return s.writeAndFlush([]byte(frame))
}

// writeAndFlush must be called with s.mu held.
func (s *Writer) writeAndFlush(b []byte) error {
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("%w: %v", sseerr.ErrWriteFault, err)
	}
	s.flusher.Flush()
	return nil
}

// StartKeepalive starts a background ticker that calls Keepalive every
// interval, until Close is called or a keepalive write fails. interval <= 0
// disables the timer entirely (no goroutine is started), matching spec
// §4.5's "0 disables" rule. onFault, if non-nil, is invoked once, in its
// own goroutine, if a keepalive write ever fails (the caller typically
// reacts by tearing the subscription down, which may call Close,
// mirroring the WriteFault error kind of spec §7).
func (s *Writer) StartKeepalive(interval time.Duration, onFault func(error)) {
	if interval <= 0 {
		return
	}
	s.keepaliveStop = make(chan struct{})
	s.keepaliveWG.Add(1)
	go func() {
		defer s.keepaliveWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.keepaliveStop:
				return
			case now := <-ticker.C:
				if err := s.Keepalive(now); err != nil {
					if onFault != nil {
						go onFault(err)
					}
					return
				}
			}
		}
	}()
}

// Close stops the keepalive timer, if running, and marks the writer
// closed. Idempotent: a second Close is a no-op. Close does not write an
// HTTP error response body — per spec §4.7, a torn-down stream writes
// nothing further; the socket is simply released.
func (s *Writer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stop := s.keepaliveStop
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		s.keepaliveWG.Wait()
	}
	return nil
}
