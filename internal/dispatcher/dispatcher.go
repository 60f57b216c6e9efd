// Package dispatcher routes decoded notification paths to one-shot
// waiters and wildcard-pattern handlers. It owns the waiter table and
// the handler table; nothing else in the fabric mutates them directly.
package dispatcher

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/nugget/muf/internal/events"
)

// HandlerFunc is invoked for every notification whose path matches a
// registered pattern. It receives the concrete, already-lowercased key
// path. Implementations must be safe to run concurrently with other
// handler invocations and with further dispatch.
type HandlerFunc func(keyPath string)

// handlerEntry pairs the original pattern text (used for map identity
// and logging) with its compiled matcher.
type handlerEntry struct {
	pattern string
	matcher glob.Glob
	fn      HandlerFunc
}

// Dispatcher holds the exact-path waiter table and the wildcard-
// pattern handler table. Every mutation and every HandleEvent call is
// safe for concurrent use; in the baseline single-watcher-goroutine
// design only one goroutine ever calls HandleEvent, but the tables
// guard themselves with a mutex regardless so tests and alternate
// Watcher implementations may call them from anywhere.
type Dispatcher struct {
	bus *events.Bus

	mu      sync.Mutex
	waiters map[string]chan string
	// handlers is keyed by lowercased pattern text so that
	// RegisterHandler replaces any prior binding for identical pattern
	// text, while still firing every distinct pattern that matches a
	// given path.
	handlers map[string]handlerEntry
}

// New creates an empty Dispatcher. bus may be nil — events are then
// simply not published, matching the nil-safe Bus contract.
func New(bus *events.Bus) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		waiters:  make(map[string]chan string),
		handlers: make(map[string]handlerEntry),
	}
}

// AddWaiter registers a fresh one-shot completion for the exact
// (already meaningful, case-insensitive) path and returns the channel
// the caller should await. The channel receives the normalized path
// exactly once, then is never written to again; callers should read at
// most one value from it.
//
// Only one waiter may exist per exact path at a time; a second
// AddWaiter call on the same path replaces the first, which will then
// never fire. Each request generates a unique id, so in practice this
// never collides for Messenger's use.
func (d *Dispatcher) AddWaiter(path string) <-chan string {
	normalized := strings.ToLower(path)
	ch := make(chan string, 1)
	d.mu.Lock()
	d.waiters[normalized] = ch
	d.mu.Unlock()
	return ch
}

// RemoveWaiter drops the waiter for path, if any. Idempotent.
func (d *Dispatcher) RemoveWaiter(path string) {
	normalized := strings.ToLower(path)
	d.mu.Lock()
	delete(d.waiters, normalized)
	d.mu.Unlock()
}

// RegisterHandler compiles pattern and installs fn for it, replacing
// any previous handler registered under the same pattern text.
func (d *Dispatcher) RegisterHandler(pattern string, fn HandlerFunc) error {
	normalized := strings.ToLower(pattern)
	matcher, err := glob.Compile(normalized, '/')
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.handlers[normalized] = handlerEntry{pattern: normalized, matcher: matcher, fn: fn}
	d.mu.Unlock()
	return nil
}

// UnregisterHandler removes the handler registered under pattern, if
// any. Idempotent.
func (d *Dispatcher) UnregisterHandler(pattern string) {
	normalized := strings.ToLower(pattern)
	d.mu.Lock()
	delete(d.handlers, normalized)
	d.mu.Unlock()
}

// HandleEvent is called by the Watcher's receive loop for every
// decoded notification path. It normalizes the path, completes a
// matching waiter (if any, popping it so it fires exactly once), and
// spawns a goroutine per matching handler pattern so that slow or
// blocking handler code never stalls the caller (the watcher's single
// receive loop).
func (d *Dispatcher) HandleEvent(keyPath string) {
	target := strings.ToLower(keyPath)

	d.mu.Lock()
	ch, hasWaiter := d.waiters[target]
	if hasWaiter {
		delete(d.waiters, target)
	}
	var matched []handlerEntry
	for _, entry := range d.handlers {
		if entry.matcher.Match(target) {
			matched = append(matched, entry)
		}
	}
	d.mu.Unlock()

	if hasWaiter {
		select {
		case ch <- target:
		default:
			// Already satisfied (should not happen: the channel is
			// buffered 1 and popped under the same lock), discard.
		}
		d.bus.Publish(events.Event{Source: events.SourceDispatcher, Kind: events.KindWaiterFired, Data: map[string]any{"path": target}})
	}

	for _, entry := range matched {
		fn := entry.fn
		pattern := entry.pattern
		go func() {
			d.bus.Publish(events.Event{Source: events.SourceDispatcher, Kind: events.KindHandlerInvoked, Data: map[string]any{"path": target, "pattern": pattern}})
			fn(target)
		}()
	}
}

// WaiterCount reports the number of pending waiters. Exposed for
// tests verifying waiters never leak on timeout.
func (d *Dispatcher) WaiterCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.waiters)
}

// HandlerCount reports the number of registered handler patterns.
func (d *Dispatcher) HandlerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}
