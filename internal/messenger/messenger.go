// Package messenger implements request/response correlation: a
// client-side Request that arms both possible terminals before
// publishing, and a server-side Listen that serves inbound requests
// concurrently.
package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/muf/internal/dispatcher"
	"github.com/nugget/muf/internal/events"
	"github.com/nugget/muf/internal/protocol"
)

// ErrTimeout is returned by Request when neither a response nor an
// error key appears before the deadline.
type ErrTimeout struct {
	Target  string
	Timeout time.Duration
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("muf: request to %q timed out after %s", e.Target, e.Timeout)
}

// RemoteError is returned by Request when the target published an err
// key instead of a res key. Message is the decoded payload text.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("muf: remote error: %s", e.Message)
}

// Getter is the subset of store.Connection Messenger needs to read a
// terminal payload back.
type Getter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Waiter is the subset of Watcher Messenger needs to arm and await the
// two possible request terminals, and to discard whichever one loses
// the race.
type Waiter interface {
	WaitForKey(ctx context.Context, path string, timeout time.Duration) bool
	CancelWait(path string)
}

// Sender is the subset of state.Manager Messenger's Listen adapter
// uses to publish a res/err reply.
type Sender interface {
	Send(ctx context.Context, unit, status, id string, payload []byte, ttl *time.Duration) (string, error)
}

// Registrar is the subset of Watcher Messenger's Listen needs to
// install its request-serving adapter.
type Registrar interface {
	RegisterHandler(pattern string, fn dispatcher.HandlerFunc) error
}

// RequestHandler is user code invoked for every inbound request.
// Returning a non-nil payload publishes it as the response; returning
// an error publishes the error's text as the err payload instead.
type RequestHandler func(senderUnit, messageID string, payload []byte) ([]byte, error)

// Messenger correlates outbound requests with their terminal
// response/error keys and serves inbound requests on the listening side.
type Messenger struct {
	conn      Getter
	waiter    Waiter
	sender    Sender
	registrar Registrar
	logger    *slog.Logger
	bus       *events.Bus
}

// New creates a Messenger. logger and bus may be nil.
func New(conn Getter, waiter Waiter, sender Sender, registrar Registrar, logger *slog.Logger, bus *events.Bus) *Messenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Messenger{conn: conn, waiter: waiter, sender: sender, registrar: registrar, logger: logger, bus: bus}
}

// Request sends payload from selfUnit to targetUnit and awaits the
// first of {response, error, timeout}. The request is published under
// selfUnit's own req namespace, not targetUnit's — targetUnit only
// determines which server is expected to be listening, not the path
// written to.
//
// The waiters for the res and err paths are armed before the request
// is published, guaranteeing no notification can arrive between
// publish and subscribe.
func (m *Messenger) Request(ctx context.Context, selfUnit, targetUnit string, payload []byte, timeout time.Duration) ([]byte, error) {
	messageID := uuid.NewString()

	resPath, err := protocol.BuildPath(selfUnit, protocol.StatusRes, messageID)
	if err != nil {
		return nil, err
	}
	errPath, err := protocol.BuildPath(selfUnit, protocol.StatusErr, messageID)
	if err != nil {
		return nil, err
	}

	type armResult struct {
		fired bool
	}
	resCh := make(chan armResult, 1)
	errCh := make(chan armResult, 1)

	go func() { resCh <- armResult{fired: m.waiter.WaitForKey(ctx, resPath, timeout)} }()
	go func() { errCh <- armResult{fired: m.waiter.WaitForKey(ctx, errPath, timeout)} }()

	ttl := timeout
	if _, err := m.sender.Send(ctx, selfUnit, protocol.StatusReq, messageID, payload, &ttl); err != nil {
		return nil, err
	}
	m.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceMessenger,
		Kind:      events.KindRequestSent,
		Data:      map[string]any{"target": targetUnit, "id": messageID, "ttl_seconds": int(ttl.Seconds())},
	})

	start := time.Now()
	select {
	case r := <-resCh:
		if !r.fired {
			// The res waiter timed out; give the err waiter a last
			// chance to have already fired (it raced concurrently).
			select {
			case r2 := <-errCh:
				if r2.fired {
					return m.resolveErr(ctx, errPath, targetUnit, messageID)
				}
			default:
			}
			m.waiter.CancelWait(errPath)
			return nil, m.timeoutErr(targetUnit, messageID, timeout, start)
		}
		// res won; the err waiter's own goroutine is still blocked on its
		// timeout, so drop its table entry now rather than wait for that
		// timeout to elapse.
		m.waiter.CancelWait(errPath)
		result, err := m.conn.Get(ctx, resPath)
		if err != nil {
			return nil, err
		}
		m.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceMessenger,
			Kind:      events.KindRequestOK,
			Data:      map[string]any{"target": targetUnit, "id": messageID, "elapsed_ms": time.Since(start).Milliseconds()},
		})
		if result == nil {
			return []byte{}, nil
		}
		return result, nil

	case r := <-errCh:
		if !r.fired {
			select {
			case r2 := <-resCh:
				if r2.fired {
					result, err := m.conn.Get(ctx, resPath)
					if err != nil {
						return nil, err
					}
					if result == nil {
						result = []byte{}
					}
					return result, nil
				}
			default:
			}
			m.waiter.CancelWait(resPath)
			return nil, m.timeoutErr(targetUnit, messageID, timeout, start)
		}
		m.waiter.CancelWait(resPath)
		return m.resolveErr(ctx, errPath, targetUnit, messageID)
	}
}

func (m *Messenger) resolveErr(ctx context.Context, errPath, targetUnit, messageID string) ([]byte, error) {
	errMsg, err := m.conn.Get(ctx, errPath)
	if err != nil {
		return nil, err
	}
	text := "unknown"
	if errMsg != nil {
		text = string(errMsg)
	}
	m.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceMessenger,
		Kind:      events.KindRequestRemoteError,
		Data:      map[string]any{"target": targetUnit, "id": messageID},
	})
	return nil, &RemoteError{Message: text}
}

func (m *Messenger) timeoutErr(targetUnit, messageID string, timeout time.Duration, start time.Time) error {
	m.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceMessenger,
		Kind:      events.KindRequestTimeout,
		Data:      map[string]any{"target": targetUnit, "id": messageID, "elapsed_ms": time.Since(start).Milliseconds()},
	})
	return &ErrTimeout{Target: targetUnit, Timeout: timeout}
}

// Listen registers the server-side adapter for the broadcast request
// pattern muf/*/req/*. Every matching notification that decodes to
// status "req" is passed to handler in its own goroutine, so the
// server processes requests in parallel.
func (m *Messenger) Listen(handler RequestHandler) error {
	pattern := protocol.BuildPathPattern("*", protocol.StatusReq, "*")
	adapter := func(keyPath string) {
		sender, status, msgID, ok := protocol.ParsePath(keyPath)
		if !ok || status != protocol.StatusReq {
			return
		}

		reqData, err := m.conn.Get(context.Background(), keyPath)
		if err != nil || reqData == nil {
			return
		}

		result, err := handler(sender, msgID, reqData)
		if err != nil {
			m.bus.Publish(events.Event{
				Timestamp: time.Now(),
				Source:    events.SourceMessenger,
				Kind:      events.KindHandlerFailed,
				Data:      map[string]any{"sender": sender, "id": msgID, "error": err.Error()},
			})
			if _, sendErr := m.sender.Send(context.Background(), sender, protocol.StatusErr, msgID, []byte(err.Error()), nil); sendErr != nil {
				m.logger.Error("listen: failed to publish error reply", "sender", sender, "id", msgID, "error", sendErr)
			}
			return
		}
		if result != nil {
			if _, sendErr := m.sender.Send(context.Background(), sender, protocol.StatusRes, msgID, result, nil); sendErr != nil {
				m.logger.Error("listen: failed to publish response", "sender", sender, "id", msgID, "error", sendErr)
			}
		}
	}
	return m.registrar.RegisterHandler(pattern, adapter)
}
