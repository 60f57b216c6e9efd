package store

import (
	"context"
	"log/slog"

	"github.com/nugget/muf/internal/connwatch"
	"github.com/nugget/muf/internal/events"
)

// Supervise starts a background connwatch.Watcher that probes the
// connection with Ping on an exponential-backoff-then-poll schedule.
// onReady/onDown and bus may all be nil. The returned *connwatch.Watcher
// is stopped when ctx is cancelled, or explicitly via its Stop method.
func Supervise(ctx context.Context, conn *Connection, logger *slog.Logger, bus *events.Bus, onReady func(), onDown func(error)) *connwatch.Watcher {
	mgr := connwatch.NewManager(logger)
	return mgr.Watch(ctx, connwatch.WatcherConfig{
		Name: "redis",
		Probe: func(probeCtx context.Context) error {
			return conn.Ping(probeCtx)
		},
		Backoff: connwatch.DefaultBackoffConfig(),
		OnReady: onReady,
		OnDown:  onDown,
		Logger:  logger,
		Bus:     bus,
	})
}
