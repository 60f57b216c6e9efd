// Package events provides a publish/subscribe event bus for operational
// observability into the fabric itself. Events flow from the internal
// components that move notifications around (Dispatcher, Watcher,
// Messenger) and from the connwatch store supervisor to subscribers such as the monitor unit's
// WebSocket feed or a test assertion. The bus is nil-safe: calling
// Publish on a nil *Bus is a no-op, so a Dispatcher or Watcher built
// without observability wired in needs no guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which fabric component published an event.
const (
	// SourceDispatcher identifies waiter/handler routing events.
	SourceDispatcher = "dispatcher"
	// SourceWatcher identifies receive-loop lifecycle events.
	SourceWatcher = "watcher"
	// SourceMessenger identifies request/response events.
	SourceMessenger = "messenger"
	// SourceState identifies state-manager send/watch events.
	SourceState = "state"
	// SourceClient identifies client facade lifecycle events.
	SourceClient = "client"
	// SourceHealth identifies connwatch service-health transitions.
	SourceHealth = "health"
)

// Kind constants describe the type of event within a source.
const (
	// KindWaiterFired signals a registered waiter was completed by a
	// matching notification. Data: path.
	KindWaiterFired = "waiter_fired"
	// KindHandlerInvoked signals a registered pattern handler was
	// spawned for a matching notification. Data: path, pattern.
	KindHandlerInvoked = "handler_invoked"

	// KindWatcherStart signals the receive loop began running.
	KindWatcherStart = "watcher_start"
	// KindWatcherStop signals the receive loop exited.
	KindWatcherStop = "watcher_stop"
	// KindTransientError signals the receive loop caught a
	// non-cancellation error and is retrying. Data: error.
	KindTransientError = "transient_error"
	// KindNotification signals a raw decoded notification reached the
	// dispatcher. Data: path, channel.
	KindNotification = "notification"

	// KindRequestSent signals Messenger.Request published a request.
	// Data: target, id, ttl_seconds.
	KindRequestSent = "request_sent"
	// KindRequestOK signals a request completed with a response.
	// Data: target, id, elapsed_ms.
	KindRequestOK = "request_ok"
	// KindRequestTimeout signals a request's deadline elapsed with no
	// terminal. Data: target, id, elapsed_ms.
	KindRequestTimeout = "request_timeout"
	// KindRequestRemoteError signals a request's err key won the race.
	// Data: target, id.
	KindRequestRemoteError = "request_remote_error"
	// KindHandlerFailed signals a listen handler returned an error; the
	// adapter has already turned it into a send(err,...). A handler
	// panic is not recovered and does not produce this event.
	// Data: sender, id, error.
	KindHandlerFailed = "handler_failed"

	// KindAuthFailed signals the store rejected credentials.
	KindAuthFailed = "auth_failed"

	// KindHealthReady signals a connwatch-probed service transitioned
	// to reachable (first contact or recovery). Data: service.
	KindHealthReady = "health_ready"
	// KindHealthDown signals a connwatch-probed service transitioned
	// to unreachable. Data: service, error.
	KindHealthDown = "health_down"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
