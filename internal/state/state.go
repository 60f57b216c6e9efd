// Package state implements the thin send/get/watch policy layer over
// Connection and Watcher.
package state

import (
	"context"
	"strings"
	"time"

	"github.com/nugget/muf/internal/dispatcher"
	"github.com/nugget/muf/internal/protocol"
)

// Store is the subset of store.Connection State depends on.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, payload []byte, ttlSeconds int) error
}

// Registrar is the subset of Watcher State needs to install the
// internal adapter behind WatchState.
type Registrar interface {
	RegisterHandler(pattern string, fn dispatcher.HandlerFunc) error
}

// Handler is the user-supplied callback for WatchState. It is invoked
// with the sender unit, message id, and payload found at the path that
// just changed.
type Handler func(senderUnit, messageID string, payload []byte)

// Manager is the fabric's state manager: Send/GetState/WatchState
// over a path-keyed record store.
type Manager struct {
	conn      Store
	registrar Registrar
}

// New creates a Manager over conn (used for Get/SetEx) and registrar
// (used by WatchState to install its adapter).
func New(conn Store, registrar Registrar) *Manager {
	return &Manager{conn: conn, registrar: registrar}
}

// Send writes payload at unit/status/id, selecting the default TTL for
// status when ttl is nil, and returns the path it wrote.
func (m *Manager) Send(ctx context.Context, unit, status, id string, payload []byte, ttl *time.Duration) (string, error) {
	statusNorm := strings.ToLower(status)
	effectiveTTL := protocol.DefaultTTLFor(statusNorm)
	if ttl != nil {
		effectiveTTL = *ttl
	}

	path, err := protocol.BuildPath(unit, statusNorm, id)
	if err != nil {
		return "", err
	}
	if err := m.conn.SetEx(ctx, path, payload, int(effectiveTTL.Seconds())); err != nil {
		return "", err
	}
	return path, nil
}

// GetState reads the payload at unit/status/id once, defaulting status
// to "keep". Returns (nil, nil) if nothing is stored there.
func (m *Manager) GetState(ctx context.Context, unit, id, status string) ([]byte, error) {
	if status == "" {
		status = protocol.StatusKeep
	}
	path, err := protocol.BuildPath(unit, status, id)
	if err != nil {
		return nil, err
	}
	return m.conn.Get(ctx, path)
}

// WatchState registers handler as the callback for changes to
// unit/status/id (defaulting status to "keep"). unit, status, and id
// may each be "*" (or any glob token the dispatcher's matcher
// understands), since WatchState reuses the same pattern-matching
// table as Listen.
func (m *Manager) WatchState(ctx context.Context, unit, id string, handler Handler, status string) error {
	if status == "" {
		status = protocol.StatusKeep
	}
	pattern := protocol.BuildPathPattern(unit, status, id)

	adapter := func(keyPath string) {
		sender, _, msgID, ok := protocol.ParsePath(keyPath)
		_ = ok // the Dispatcher only invokes this on a glob match against a root/unit/status/id pattern whose '*' does not cross '/', so a matching path has the four-segment shape
		payload, err := m.conn.Get(ctx, keyPath)
		if err != nil || payload == nil {
			return
		}
		handler(sender, msgID, payload)
	}

	return m.registrar.RegisterHandler(pattern, adapter)
}
