package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nugget/muf/internal/client"
	"github.com/nugget/muf/internal/protocol"
)

// caseResult is one row of the report.
type caseResult struct {
	Name     string
	Passed   bool
	Detail   string
	Duration time.Duration
}

// caseFunc is a single check. It returns a human-readable detail
// string on success and an error describing the failure otherwise.
type caseFunc func(ctx context.Context, c *client.Client) (string, error)

// cases is the fixed table check-unit runs, in order.
var cases = []struct {
	Name string
	Run  caseFunc
}{
	{"state management (send/get_state)", testStateManagement},
	{"request/response with echo-service", testEchoMessaging},
	{"state watching", testStateWatching},
}

// testStateManagement verifies a send under this unit's own keep
// namespace round-trips through get_state.
func testStateManagement(ctx context.Context, c *client.Client) (string, error) {
	data := []byte("system_ok_2026")
	if _, err := c.Send(ctx, protocol.StatusKeep, "health_check", data, nil); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	got, err := c.GetState(ctx, c.Unit(), "health_check", protocol.StatusKeep)
	if err != nil {
		return "", fmt.Errorf("get_state: %w", err)
	}
	if string(got) != string(data) {
		return "", fmt.Errorf("expected %q, got %q", data, got)
	}
	return fmt.Sprintf("retrieved %q", got), nil
}

// testEchoMessaging verifies a request to "echo-service" (see
// cmd/echo-unit) comes back within 5 seconds.
func testEchoMessaging(ctx context.Context, c *client.Client) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := c.Request(reqCtx, "echo-service", []byte("muf_integration_test"), 5*time.Second)
	if err != nil {
		return "", fmt.Errorf("request timed out or failed: %w", err)
	}
	return fmt.Sprintf("echo received: %q", resp), nil
}

// testStateWatching verifies a watch_state handler registered before
// the matching send fires within 3 seconds.
func testStateWatching(ctx context.Context, c *client.Client) (string, error) {
	received := make(chan []byte, 1)
	if err := c.WatchState(ctx, c.Unit(), "notify_test", func(sender, messageID string, payload []byte) {
		received <- payload
	}, protocol.StatusKeep); err != nil {
		return "", fmt.Errorf("watch_state: %w", err)
	}

	if _, err := c.Send(ctx, protocol.StatusKeep, "notify_test", []byte("event_triggered"), nil); err != nil {
		return "", fmt.Errorf("send: %w", err)
	}

	select {
	case payload := <-received:
		return fmt.Sprintf("handler invoked with %q", payload), nil
	case <-time.After(3 * time.Second):
		return "", fmt.Errorf("handler did not fire within 3s")
	}
}
