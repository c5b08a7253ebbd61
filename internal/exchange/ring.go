// Package exchange keeps a bounded log of proxied request/response exchanges.
// It stores metadata only: no request or response bodies.
package exchange

import (
	"sync"
	"time"
)

// Entry describes one proxied exchange.
type Entry struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Target     string    `json:"target,omitempty"`
	Status     int       `json:"status"`
	Payload    string    `json:"payload,omitempty"` // structured|raw
	BodyBytes  int       `json:"body_bytes"`
	DurationMs int64     `json:"duration_ms"`
	Failure    string    `json:"failure,omitempty"` // service failure reason
	Timestamp  time.Time `json:"timestamp"`
}

// Ring is a fixed-size circular buffer of entries safe for concurrent use.
type Ring struct {
	mu   sync.RWMutex
	buf  []Entry
	subs []chan Entry
	size int
	head int
	full bool
}

// NewRing creates a Ring holding at most size entries; size must be positive.
func NewRing(size int) *Ring {
	return &Ring{buf: make([]Entry, size), size: size}
}

// Add appends e, evicting the oldest entry when full, and fans it out to subscribers.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.head] = e
	r.head = (r.head + 1) % r.size
	if r.head == 0 {
		r.full = true
	}
	r.broadcast(e)
}

// All returns entries oldest first.
func (r *Ring) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	if r.full {
		out = append(out, r.buf[r.head:]...)
	}
	out = append(out, r.buf[:r.head]...)
	return out
}

// Get looks up an entry by ID.
func (r *Ring) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.buf {
		if e.ID != "" && e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return r.size
	}
	return r.head
}

// Subscribe returns a channel receiving every entry added after the call,
// and a cancel func that unsubscribes and closes the channel.
// Slow subscribers miss entries rather than blocking Add.
func (r *Ring) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 100)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, c := range r.subs {
				if c == ch {
					r.subs = append(r.subs[:i], r.subs[i+1:]...)
					close(c)
					break
				}
			}
		})
	}
	return ch, cancel
}

// broadcast must be called with r.mu held.
func (r *Ring) broadcast(e Entry) {
	for _, ch := range r.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
