package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nugget/muf/internal/events"
)

// wsFeed republishes a Client's event bus to any number of WebSocket
// viewers, so a browser-based dashboard can follow fabric activity
// over HTTP.
type wsFeed struct {
	bus      *events.Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func newWSFeed(bus *events.Bus, logger *slog.Logger) *wsFeed {
	return &wsFeed{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Monitoring dashboard: same-origin and local tooling only,
			// so a permissive CheckOrigin trades nothing away here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams every
// subsequent bus event to it as a JSON object until the client
// disconnects or the bus subscription is dropped.
func (f *wsFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := f.bus.Subscribe(64)
	defer f.bus.Unsubscribe(sub)

	// Detect client-initiated close without blocking the write loop.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
