package dispatcher

import (
	"sync"
	"testing"
	"time"

	"github.com/nugget/muf/internal/events"
)

func TestAddWaiterFiresOnMatchingEvent(t *testing.T) {
	d := New(events.New())
	ch := d.AddWaiter("muf/a/res/m1")

	d.HandleEvent("muf/a/res/m1")

	select {
	case got := <-ch:
		if got != "muf/a/res/m1" {
			t.Fatalf("got %q, want muf/a/res/m1", got)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never fired")
	}
	if d.WaiterCount() != 0 {
		t.Fatalf("expected waiter popped after firing, got %d remaining", d.WaiterCount())
	}
}

// TestAddWaiterCaseInsensitive verifies a waiter armed with a
// mixed-case path still fires for a lowercase notification.
func TestAddWaiterCaseInsensitive(t *testing.T) {
	d := New(events.New())
	ch := d.AddWaiter("MUF/A/RES/M1")

	d.HandleEvent("muf/a/res/m1")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("waiter never fired despite case-insensitive match")
	}
}

func TestRemoveWaiterIsIdempotent(t *testing.T) {
	d := New(events.New())
	d.AddWaiter("muf/a/res/m1")
	d.RemoveWaiter("muf/a/res/m1")
	d.RemoveWaiter("muf/a/res/m1") // must not panic or double-count

	if d.WaiterCount() != 0 {
		t.Fatalf("expected 0 waiters, got %d", d.WaiterCount())
	}
}

func TestHandleEventWithoutWaiterDoesNothing(t *testing.T) {
	d := New(events.New())
	// No waiter registered for this path; HandleEvent must not panic.
	d.HandleEvent("muf/nobody/res/m1")
}

func TestRegisterHandlerMatchesWildcard(t *testing.T) {
	d := New(events.New())

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)

	if err := d.RegisterHandler("muf/*/req/*", func(path string) {
		mu.Lock()
		got = append(got, path)
		mu.Unlock()
		done <- struct{}{}
	}); err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}

	d.HandleEvent("muf/echo/req/m1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "muf/echo/req/m1" {
		t.Fatalf("got %v, want [muf/echo/req/m1]", got)
	}
}

// TestRegisterHandlerReplacesPriorBinding verifies registering the
// same pattern text twice leaves exactly one binding, and only the
// latest fires.
func TestRegisterHandlerReplacesPriorBinding(t *testing.T) {
	d := New(events.New())

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)

	if err := d.RegisterHandler("muf/*/keep/*", func(string) { first <- struct{}{} }); err != nil {
		t.Fatalf("RegisterHandler (first): %v", err)
	}
	if err := d.RegisterHandler("muf/*/keep/*", func(string) { second <- struct{}{} }); err != nil {
		t.Fatalf("RegisterHandler (second): %v", err)
	}
	if d.HandlerCount() != 1 {
		t.Fatalf("expected 1 handler pattern after replacement, got %d", d.HandlerCount())
	}

	d.HandleEvent("muf/a/keep/x")

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("replacement handler never fired")
	}
	select {
	case <-first:
		t.Fatal("original handler fired after being replaced")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestHandleEventFansOutToEveryMatchingPattern verifies the dispatcher
// fires every matching pattern, once per pattern, not just the first.
func TestHandleEventFansOutToEveryMatchingPattern(t *testing.T) {
	d := New(events.New())

	broad := make(chan struct{}, 1)
	narrow := make(chan struct{}, 1)

	if err := d.RegisterHandler("muf/*/*/*", func(string) { broad <- struct{}{} }); err != nil {
		t.Fatal(err)
	}
	if err := d.RegisterHandler("muf/a/keep/*", func(string) { narrow <- struct{}{} }); err != nil {
		t.Fatal(err)
	}

	d.HandleEvent("muf/a/keep/x")

	for _, ch := range []chan struct{}{broad, narrow} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("expected both overlapping patterns to fire")
		}
	}
}

func TestUnregisterHandlerStopsFutureMatches(t *testing.T) {
	d := New(events.New())
	fired := make(chan struct{}, 1)

	if err := d.RegisterHandler("muf/*/keep/*", func(string) { fired <- struct{}{} }); err != nil {
		t.Fatal(err)
	}
	d.UnregisterHandler("muf/*/keep/*")
	d.UnregisterHandler("muf/*/keep/*") // idempotent

	d.HandleEvent("muf/a/keep/x")

	select {
	case <-fired:
		t.Fatal("handler fired after being unregistered")
	case <-time.After(100 * time.Millisecond):
	}
	if d.HandlerCount() != 0 {
		t.Fatalf("expected 0 handlers, got %d", d.HandlerCount())
	}
}
