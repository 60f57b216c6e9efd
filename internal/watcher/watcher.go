// Package watcher owns the fabric's single keyspace-notification
// subscription and the background goroutine that drains it, per spec
// §4.4. All it does with a decoded notification is hand it to a
// Dispatcher; the matching and fan-out logic lives there.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nugget/muf/internal/dispatcher"
	"github.com/nugget/muf/internal/events"
	"github.com/nugget/muf/internal/protocol"
)

// Subscriber is the slice of Connection the Watcher depends on. It is
// an interface so tests can exercise the receive loop and lifecycle
// against a fake without a real Redis server.
type Subscriber interface {
	Subscribe(ctx context.Context, pattern string) (*redis.PubSub, error)
}

// retryDelay is how long the receive loop sleeps after a transient
// error before trying to read the next message again (the
// transport-transient case).
const retryDelay = time.Second

// Watcher runs the single background receive loop for a Client. Start
// and Stop are both idempotent.
type Watcher struct {
	conn       Subscriber
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	bus        *events.Bus

	mu       sync.Mutex
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New creates a Watcher bound to conn and dispatcher d. logger and bus
// may be nil; a nil logger falls back to slog.Default().
func New(conn Subscriber, d *dispatcher.Dispatcher, logger *slog.Logger, bus *events.Bus) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{conn: conn, dispatcher: d, logger: logger, bus: bus}
}

// Start subscribes to the broad muf/*/*/* keyspace pattern and launches
// the background receive loop. Calling Start while already running is
// a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pubsub != nil {
		return nil
	}

	pattern := protocol.BuildKeyspacePattern("*", "*", "*")
	pubsub, err := w.conn.Subscribe(ctx, pattern)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.pubsub = pubsub
	w.cancel = cancel
	w.loopDone = make(chan struct{})

	go w.receiveLoop(loopCtx, pubsub, w.loopDone)

	w.bus.Publish(events.Event{Timestamp: time.Now(), Source: events.SourceWatcher, Kind: events.KindWatcherStart})
	return nil
}

// Stop cancels the receive loop, waits for it to exit, and releases
// the subscription. Idempotent; safe to call when never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	pubsub := w.pubsub
	cancel := w.cancel
	done := w.loopDone
	w.pubsub = nil
	w.cancel = nil
	w.loopDone = nil
	w.mu.Unlock()

	if pubsub == nil {
		return nil
	}

	cancel()
	<-done
	err := pubsub.Close()
	w.bus.Publish(events.Event{Timestamp: time.Now(), Source: events.SourceWatcher, Kind: events.KindWatcherStop})
	return err
}

// receiveLoop pulls the next notification indefinitely, ignoring
// subscription-confirmation messages, and hands each decoded key path
// to the dispatcher. Cancellation is treated as normal termination; any
// other error is logged at debug and retried after retryDelay, for
// resilience across momentary store disconnects.
func (w *Watcher) receiveLoop(ctx context.Context, pubsub *redis.PubSub, done chan<- struct{}) {
	defer close(done)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				// Channel closed out from under us (e.g. connection
				// reset deep inside go-redis). Treat as transient and
				// back off before the context check notices we should
				// exit, or the caller reconnects.
				w.logger.Debug("watcher: subscription channel closed, retrying", "delay", retryDelay.String())
				w.bus.Publish(events.Event{
					Timestamp: time.Now(),
					Source:    events.SourceWatcher,
					Kind:      events.KindTransientError,
					Data:      map[string]any{"error": "subscription channel closed"},
				})
				if !w.sleep(ctx, retryDelay) {
					return
				}
				continue
			}
			if msg == nil {
				continue
			}
			w.handleMessage(msg)
		}
	}
}

func (w *Watcher) handleMessage(msg *redis.Message) {
	keyPath := protocol.KeyFromChannel(msg.Channel)
	w.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceWatcher,
		Kind:      events.KindNotification,
		Data:      map[string]any{"path": keyPath, "channel": msg.Channel},
	})
	w.dispatcher.HandleEvent(keyPath)
}

func (w *Watcher) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// WaitForKey arms a waiter for path and blocks until it fires or
// timeout elapses. On timeout it removes the waiter so the dispatcher
// table never accumulates stale entries.
func (w *Watcher) WaitForKey(ctx context.Context, path string, timeout time.Duration) bool {
	ch := w.dispatcher.AddWaiter(path)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		w.dispatcher.RemoveWaiter(path)
		return false
	case <-ctx.Done():
		w.dispatcher.RemoveWaiter(path)
		return false
	}
}

// CancelWait removes a pending waiter for path without waiting on it,
// for callers that armed WaitForKey speculatively (e.g. Messenger
// racing a res and an err waiter) and need to discard whichever one
// didn't win.
func (w *Watcher) CancelWait(path string) {
	w.dispatcher.RemoveWaiter(path)
}

// RegisterHandler installs fn for every future notification whose path
// matches pattern, replacing any handler previously registered for the
// same pattern text.
func (w *Watcher) RegisterHandler(pattern string, fn dispatcher.HandlerFunc) error {
	return w.dispatcher.RegisterHandler(pattern, fn)
}

// UnregisterHandler removes the handler for pattern, if any.
func (w *Watcher) UnregisterHandler(pattern string) {
	w.dispatcher.UnregisterHandler(pattern)
}

// ErrNotRunning is returned by operations that require an active
// subscription when none exists. Reserved for future strict callers;
// the current Watcher API tolerates calling WaitForKey/RegisterHandler
// before Start (the dispatcher table exists independently of the
// subscription).
var ErrNotRunning = errors.New("muf: watcher is not running")
