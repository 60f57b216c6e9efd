package store

import "testing"

func TestOptionsAddrDefaults(t *testing.T) {
	o := Options{}
	if got := o.addr(); got != "localhost:6379" {
		t.Fatalf("got %q, want localhost:6379", got)
	}
}

func TestOptionsAddrExplicit(t *testing.T) {
	o := Options{Host: "redis.internal", Port: 6380}
	if got := o.addr(); got != "redis.internal:6380" {
		t.Fatalf("got %q, want redis.internal:6380", got)
	}
}

func TestIsAuthErrorRecognizesKnownMessages(t *testing.T) {
	cases := []string{
		"NOAUTH Authentication required.",
		"WRONGPASS invalid username-password pair",
		"invalid username-password pair or user is disabled.",
		"NOPERM Authentication required",
	}
	for _, msg := range cases {
		if !isAuthError(fakeErr(msg)) {
			t.Errorf("isAuthError(%q) = false, want true", msg)
		}
	}
}

func TestIsAuthErrorIgnoresUnrelatedErrors(t *testing.T) {
	if isAuthError(fakeErr("connection refused")) {
		t.Error("isAuthError(connection refused) = true, want false")
	}
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
