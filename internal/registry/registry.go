// Package registry implements the subscription registry: the mapping
// from target token to (FIFO buffer, connection handle) described in
// spec §3/§4.2.
//
// The original source (original_source/eventsource/listener.py) keyed its
// "_connected" map by handler identity with the target as the VALUE,
// which makes is_connected(target) an O(n) scan over every open handler.
// Per the explicit design note in spec §9, this registry is keyed by
// target directly; is_connected, enqueue, and close are all O(1) map
// operations.
package registry

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/guyzmo/ssemux/internal/event"
	"github.com/guyzmo/ssemux/internal/sseerr"
)

// Closer is the minimal capability the registry needs from a connection
// handle: the ability to tear itself down. internal/stream.Writer
// implements this.
type Closer interface {
	Close() error
}

// Registry maps target tokens to an open connection and its pending
// event FIFO. The zero value is not usable; use New.
type Registry[C Closer] struct {
	mu   sync.Mutex
	subs map[string]*subscription[C]
}

type subscription[C Closer] struct {
	conn   C
	buffer *list.List // of *event.Event, oldest at Front
}

// New returns an empty registry.
func New[C Closer]() *Registry[C] {
	return &Registry[C]{subs: make(map[string]*subscription[C])}
}

// Open registers conn as the sole subscriber for target. It is an atomic
// check-and-insert: if target already has an open subscription, Open
// returns a wrapped sseerr.ErrAlreadyConnected and conn is not stored.
func (r *Registry[C]) Open(target string, conn C) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[target]; ok {
		return fmt.Errorf("%w: target %q", sseerr.ErrAlreadyConnected, target)
	}
	r.subs[target] = &subscription[C]{conn: conn, buffer: list.New()}
	return nil
}

// Close unregisters target, if present, and closes its connection. Close
// is idempotent: closing an already-absent target is a no-op. It is the
// single convergence point for the three cancellation sources named in
// spec §5 (explicit close action, client disconnect, write fault).
func (r *Registry[C]) Close(target string) {
	r.mu.Lock()
	sub, ok := r.subs[target]
	if ok {
		delete(r.subs, target)
	}
	r.mu.Unlock()

	if ok {
		_ = sub.conn.Close()
	}
}

// IsConnected reports whether target currently has an open subscription.
func (r *Registry[C]) IsConnected(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[target]
	return ok
}

// Enqueue appends ev to target's buffer in arrival order. Returns a
// wrapped sseerr.ErrUnknownTarget if target has no open subscription.
func (r *Registry[C]) Enqueue(target string, ev *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[target]
	if !ok {
		return fmt.Errorf("%w: target %q", sseerr.ErrUnknownTarget, target)
	}
	sub.buffer.PushBack(ev)
	return nil
}

// Drain removes and returns every currently-buffered event for target, in
// FIFO order. Returns nil if target is not connected or its buffer is
// empty. Used by the dispatch loop (spec §4.4).
func (r *Registry[C]) Drain(target string) []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[target]
	if !ok {
		return nil
	}
	var out []*event.Event
	for el := sub.buffer.Front(); el != nil; {
		next := el.Next()
		out = append(out, el.Value.(*event.Event))
		sub.buffer.Remove(el)
		el = next
	}
	return out
}

// Lookup returns the connection registered for target, if any.
func (r *Registry[C]) Lookup(target string) (conn C, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[target]
	if !ok {
		return conn, false
	}
	return sub.conn, true
}

// Len reports how many targets currently have an open subscription. Used
// by internal/metrics for the connected-targets gauge.
func (r *Registry[C]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
