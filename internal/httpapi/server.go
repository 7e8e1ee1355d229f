// Package httpapi implements the two HTTP endpoints the listener serves —
// the poster endpoint (POST) and the subscriber endpoint (GET) — plus the
// per-target dispatch loop that drains a target's buffer into its stream
// writer (spec §4.4, §4.6, §4.7).
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/guyzmo/ssemux/internal/event"
	"github.com/guyzmo/ssemux/internal/metrics"
	"github.com/guyzmo/ssemux/internal/registry"
	"github.com/guyzmo/ssemux/internal/sseerr"
	"github.com/guyzmo/ssemux/internal/stream"
)

// conn bundles a stream writer with the wake channel its dispatch loop
// listens on, and the done channel the handler blocks on. It is the
// registry.Closer this server's registry is instantiated over.
type conn struct {
	writer *stream.Writer
	wake   chan struct{}
	done   chan struct{}
}

func (c *conn) Close() error {
	return c.writer.Close()
}

// Server holds the process-lifetime state fixed at startup: the active
// event variant and its id source, the subscription registry, and the
// configured keepalive interval.
type Server struct {
	Policy    event.Policy
	IDs       *event.Counter
	Keepalive time.Duration
	Logger    *zap.Logger

	reg *registry.Registry[*conn]
}

// New constructs a Server for one variant policy.
func New(policy event.Policy, keepalive time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Policy:    policy,
		IDs:       new(event.Counter),
		Keepalive: keepalive,
		Logger:    logger,
		reg:       registry.New[*conn](),
	}
}

// Router wires the poster and subscriber routes. Callers typically mount
// this under chi middleware (request id, recovery, logging, metrics) via
// internal/httpapi.NewRouter.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/{action}/{target}", s.handlePost)
	r.Get("/{action}/{target}", s.handleGet)
	return r
}

// handlePost implements the poster endpoint (spec §4.6).
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	target := chi.URLParam(r, "target")

	w.Header().Set("Accept", s.Policy.ContentType())

	if !s.reg.IsConnected(target) {
		http.Error(w, "Target is not connected", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	ev, err := event.New(s.Policy, s.IDs, target, action, body)
	if err != nil {
		switch {
		case errors.Is(err, sseerr.ErrUnknownAction):
			http.Error(w, "Unknown action requested", http.StatusNotFound)
		case errors.Is(err, sseerr.ErrMalformedPayload):
			http.Error(w, "Data is not properly formatted: "+err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	if err := s.reg.Enqueue(target, ev); err != nil {
		// Target disconnected between the IsConnected check and here
		// (e.g. raced with a client disconnect): same response as if it
		// had never been connected.
		http.Error(w, "Target is not connected", http.StatusNotFound)
		return
	}

	if c, ok := s.reg.Lookup(target); ok {
		select {
		case c.wake <- struct{}{}:
		default:
			// A dispatch pass is already pending; it will see this event
			// too once it re-drains the buffer.
		}
	}

	w.WriteHeader(http.StatusOK)
}

// handleGet implements the subscriber endpoint (spec §4.7).
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	target := chi.URLParam(r, "target")

	if action != event.ActionPoll {
		http.Redirect(w, r, "/", http.StatusMovedPermanently)
		return
	}

	sw, err := stream.New(w, r)
	if err != nil {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	c := &conn{
		writer: sw,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if err := s.reg.Open(target, c); err != nil {
		http.Error(w, "Target is already connected", sseerr.HTTPStatus(err))
		return
	}
	// Send the status line and headers now, so the subscriber sees the
	// stream open before any event is written.
	w.WriteHeader(http.StatusOK)
	w.(http.Flusher).Flush()
	metrics.SetConnectedTargets(s.reg.Len())
	defer func() {
		s.reg.Close(target)
		metrics.SetConnectedTargets(s.reg.Len())
	}()

	sw.StartKeepalive(s.Keepalive, func(err error) {
		s.Logger.Warn("keepalive write fault, closing subscription",
			zap.String("target", target), zap.Error(err))
		s.reg.Close(target)
	})

	go s.dispatchLoop(r.Context(), target, c)

	select {
	case <-r.Context().Done():
	case <-c.done:
	}
}

// dispatchLoop drains target's buffer each time it is woken, until the
// request context ends or a close action is processed (spec §4.4).
func (s *Server) dispatchLoop(ctx context.Context, target string, c *conn) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			if !s.reg.IsConnected(target) {
				return
			}
			if s.drainOnce(target, c) {
				return
			}
		}
	}
}

// drainOnce runs one dispatch pass: it drains every event currently
// buffered for target and emits, redirects, or discards each per its
// action. It reports whether the subscription was terminated (a close
// action was processed).
func (s *Server) drainOnce(target string, c *conn) (terminated bool) {
	start := time.Now()
	events := s.reg.Drain(target)
	var emitted []string

	for _, ev := range events {
		switch ev.Action {
		case event.ActionRetry:
			n, err := strconv.Atoi(string(ev.Payload))
			if err != nil {
				s.Logger.Warn("invalid retry value, dropping",
					zap.String("target", target), zap.ByteString("payload", ev.Payload))
				metrics.ObserveDropped("invalid_retry")
				continue
			}
			c.writer.SetRetry(n)
		case event.ActionClose:
			s.reg.Close(target)
			metrics.ObserveDispatch(time.Since(start), emitted...)
			return true
		default:
			if err := c.writer.Emit(ev); err != nil {
				s.Logger.Warn("write fault, closing subscription",
					zap.String("target", target), zap.Error(err))
				metrics.ObserveDropped("write_fault")
				s.reg.Close(target)
				metrics.ObserveDispatch(time.Since(start), emitted...)
				return true
			}
			emitted = append(emitted, ev.Action)
		}
	}
	metrics.ObserveDispatch(time.Since(start), emitted...)
	return false
}
