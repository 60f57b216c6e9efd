// Package store holds the fabric's only connection to the outside
// world: a Redis session providing typed get/set-with-ttl and a
// keyspace-notification subscription handle. Get and SetEx callers see
// only bytes and TTLs; the subscription handle is go-redis's own
// *redis.PubSub, so the Watcher that consumes it also imports go-redis.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrAuthFailed is returned by Connect (and, transitively, by any
// auto-connecting Get/SetEx/Subscribe) when the store rejects the
// configured credentials. It is fatal and is never retried internally.
var ErrAuthFailed = errors.New("muf: store authentication failed")

// Options addresses a store instance. Username and Password are
// optional; when empty the store's default ACL user is used.
type Options struct {
	Host     string
	Port     int
	DB       int
	Username string
	Password string
}

// addr renders host:port, defaulting to localhost:6379.
func (o Options) addr() string {
	host := o.Host
	if host == "" {
		host = "localhost"
	}
	port := o.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Connection lazily constructs and owns the single Redis session used
// by a Client. Connect is idempotent; Get and SetEx auto-connect.
type Connection struct {
	opts Options

	mu     sync.Mutex
	client *redis.Client
}

// New creates a Connection. No network activity happens until Connect,
// Get, SetEx, or Subscribe is first called.
func New(opts Options) *Connection {
	return &Connection{opts: opts}
}

// Connect establishes the Redis session and verifies credentials with
// a PING. Calling Connect again while already connected is a no-op.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Connection) connectLocked(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.opts.addr(),
		DB:       c.opts.DB,
		Username: c.opts.Username,
		Password: c.opts.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if isAuthError(err) {
			return fmt.Errorf("%w: %s", ErrAuthFailed, err)
		}
		return fmt.Errorf("muf: connect to %s: %w", c.opts.addr(), err)
	}
	c.client = client
	return nil
}

// Disconnect closes the Redis session. Safe to call when already
// disconnected.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// Get reads the payload at key, returning (nil, nil) if the key does
// not exist. Auto-connects if idle.
func (c *Connection) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	val, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("muf: get %s: %w", key, err)
	}
	return val, nil
}

// SetEx writes payload at key with the given TTL in whole seconds.
// With ttlSeconds <= 0, go-redis sends no expiry, so the key is stored
// without a TTL; callers (State) supply the TTL. Auto-connects if idle.
func (c *Connection) SetEx(ctx context.Context, key string, payload []byte, ttlSeconds int) error {
	client, err := c.ensure(ctx)
	if err != nil {
		return err
	}
	if err := client.Set(ctx, key, payload, time.Duration(ttlSeconds)*time.Second).Err(); err != nil {
		return fmt.Errorf("muf: set %s: %w", key, err)
	}
	return nil
}

// Subscribe opens a pattern subscription for keyspace notifications
// matching pattern (e.g. "__keyspace@0__:muf/*/*/*"). The caller owns
// the returned *redis.PubSub and must Close it. Auto-connects if idle.
func (c *Connection) Subscribe(ctx context.Context, pattern string) (*redis.PubSub, error) {
	client, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	pubsub := client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		if isAuthError(err) {
			return nil, fmt.Errorf("%w: %s", ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("muf: subscribe %s: %w", pattern, err)
	}
	return pubsub, nil
}

// Ping round-trips a PING against the store. Used by the connwatch-
// based supervisor to probe liveness without touching application
// keys.
func (c *Connection) Ping(ctx context.Context) error {
	client, err := c.ensure(ctx)
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

func (c *Connection) ensure(ctx context.Context) (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	return c.client, nil
}

func isAuthError(err error) bool {
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "NOAUTH") ||
		strings.Contains(msg, "WRONGPASS") ||
		strings.Contains(msg, "INVALID USERNAME-PASSWORD PAIR") ||
		strings.Contains(msg, "AUTHENTICATION REQUIRED")
}
