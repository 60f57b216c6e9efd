// Package client assembles Connection, Watcher, State, and Messenger
// into a single facade: one Client per unit, constructed once,
// Start'ed and Stop'ed around the unit's working lifetime.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nugget/muf/internal/config"
	"github.com/nugget/muf/internal/dispatcher"
	"github.com/nugget/muf/internal/events"
	"github.com/nugget/muf/internal/messenger"
	"github.com/nugget/muf/internal/protocol"
	"github.com/nugget/muf/internal/state"
	"github.com/nugget/muf/internal/store"
	"github.com/nugget/muf/internal/watcher"
)

// Config carries everything a Client needs to reach its store and
// identify itself on the fabric.
type Config struct {
	Unit    string
	Store   store.Options
	Logger  *slog.Logger
	// OnStoreReady and OnStoreDown, if set, are forwarded to the
	// connwatch-based supervisor this Client starts alongside its
	// Connection.
	OnStoreReady func()
	OnStoreDown  func(error)
}

// Client is the fabric facade a unit's code holds for its whole
// lifetime. All of its methods are safe for concurrent use once
// Start has returned.
type Client struct {
	unit   string
	logger *slog.Logger
	bus    *events.Bus

	conn       *store.Connection
	dispatcher *dispatcher.Dispatcher
	watcher    *watcher.Watcher
	state      *state.Manager
	messenger  *messenger.Messenger

	// credentialFingerprint is a non-reversible digest of the store
	// password, logged alongside connection attempts so an operator
	// can tell "same password as last time" from "different password"
	// in the logs without the secret ever appearing in them.
	credentialFingerprint string

	onReady func()
	onDown  func(error)

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// New builds a Client from cfg. No network activity happens until
// Start is called. Unit is lowercased once here, matching every other
// corner of the fabric's case-insensitive naming.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bus := events.New()
	conn := store.New(cfg.Store)
	d := dispatcher.New(bus)
	w := watcher.New(conn, d, logger, bus)
	sm := state.New(conn, w)
	mg := messenger.New(conn, w, sm, w, logger, bus)

	return &Client{
		unit:                  strings.ToLower(strings.TrimSpace(cfg.Unit)),
		logger:                logger,
		bus:                   bus,
		conn:                  conn,
		dispatcher:            d,
		watcher:               w,
		state:                 sm,
		messenger:             mg,
		onReady:               cfg.OnStoreReady,
		onDown:                cfg.OnStoreDown,
		credentialFingerprint: config.FingerprintCredential(cfg.Store.Password),
	}
}

// Events returns the Client's event bus, for callers (e.g. a monitor
// command) wanting visibility into internal fabric activity.
func (c *Client) Events() *events.Bus {
	return c.bus
}

// Run is the scoped enter/exit form of Start/Stop: it starts the
// client, runs fn, and always stops the client afterward
// regardless of whether fn returns an error. The first error from
// Start, fn, or Stop is returned; a Stop error is only surfaced if fn
// itself succeeded, so a caller's own failure is never masked.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx)
	stopErr := c.Stop()
	if runErr != nil {
		return runErr
	}
	return stopErr
}

// Unit returns the lowercased unit name this Client was constructed
// with.
func (c *Client) Unit() string {
	return c.unit
}

// Start connects to the store, launches the background notification
// watcher, and starts the connwatch supervisor. Calling Start while
// already started is a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	c.logger.Debug("connecting to store", "unit", c.unit, "credential_fingerprint", c.credentialFingerprint)
	if err := c.conn.Connect(ctx); err != nil {
		return err
	}
	if err := c.watcher.Start(ctx); err != nil {
		return err
	}

	supCtx, cancel := context.WithCancel(ctx)
	store.Supervise(supCtx, c.conn, c.logger, c.bus, c.onReady, c.onDown)
	c.cancel = cancel

	c.started = true
	c.logger.Info("client started", "unit", c.unit)
	return nil
}

// Stop halts the watcher and the connwatch supervisor and closes the
// store connection. Calling Stop while already stopped, or before
// Start, is a no-op.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if err := c.watcher.Stop(); err != nil {
		c.logger.Warn("watcher stop", "error", err)
	}
	err := c.conn.Disconnect()
	c.logger.Info("client stopped", "unit", c.unit)
	return err
}

// WatchPath installs fn for every future notification whose path
// matches pattern, passing the full lowercased path rather than the
// (unit, id, payload) triple WatchState's adapter unpacks. It exists
// for tooling like the monitor command that needs the status segment
// too, and is a thin pass-through to the Watcher's Dispatcher, the
// same primitive WatchState and Listen are themselves built on.
func (c *Client) WatchPath(pattern string, fn func(path string)) error {
	return c.watcher.RegisterHandler(pattern, fn)
}

// Send writes payload at c.Unit()/status/id, selecting the default TTL
// for status when ttl is nil. It is the low-level primitive Request
// and WatchState's answering side build on.
func (c *Client) Send(ctx context.Context, status, id string, payload []byte, ttl *time.Duration) (string, error) {
	return c.state.Send(ctx, c.unit, status, id, payload, ttl)
}

// GetState reads the payload most recently written at unit/id/status,
// defaulting status to "keep".
func (c *Client) GetState(ctx context.Context, unit, id, status string) ([]byte, error) {
	return c.state.GetState(ctx, unit, id, status)
}

// WatchState registers handler for every future write matching
// unit/id/status, defaulting status to "keep". unit and id may be "*".
func (c *Client) WatchState(ctx context.Context, unit, id string, handler state.Handler, status string) error {
	return c.state.WatchState(ctx, unit, id, handler, status)
}

// Request sends payload to targetUnit and blocks for the first of a
// response, a remote error, or timeout.
func (c *Client) Request(ctx context.Context, targetUnit string, payload []byte, timeout time.Duration) ([]byte, error) {
	return c.messenger.Request(ctx, c.unit, targetUnit, payload, timeout)
}

// Listen registers handler to answer every inbound request addressed
// to any unit — callers that want to serve only their own traffic
// should check senderUnit/messageID themselves, matching the fabric's
// broadcast handler table.
func (c *Client) Listen(handler messenger.RequestHandler) error {
	return c.messenger.Listen(handler)
}

// PostPath parses a fully-qualified path (e.g. "muf/sensor-01/req/m1")
// and writes payload there, selecting status's default TTL when ttl is
// nil. Unlike Send, the unit segment need not be c.Unit() — it exists
// for tools like the terminal command that post to arbitrary paths on
// the fabric.
func (c *Client) PostPath(ctx context.Context, path string, payload []byte, ttl *time.Duration) error {
	unit, status, id, ok := protocol.ParsePath(path)
	if !ok {
		return fmt.Errorf("muf: %q is not a valid fabric path", path)
	}
	_, err := c.state.Send(ctx, unit, status, id, payload, ttl)
	return err
}

// GetStatePath renders the canonical state path for unit/id/status,
// without performing any I/O. Exposed for callers (e.g. the monitor
// command) that want to display or log a path consistent with the
// rest of the fabric's naming.
func GetStatePath(unit, id, status string) (string, error) {
	if status == "" {
		status = protocol.StatusKeep
	}
	return protocol.BuildPath(unit, status, id)
}
