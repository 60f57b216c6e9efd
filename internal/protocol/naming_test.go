package protocol

import "testing"

func TestBuildPathLowercases(t *testing.T) {
	got, err := BuildPath("A", "REQ", "X")
	if err != nil {
		t.Fatalf("BuildPath: %v", err)
	}
	want := "muf/a/req/x"
	if got != want {
		t.Errorf("BuildPath(A,REQ,X) = %q, want %q", got, want)
	}
}

func TestBuildPathRejectsEmpty(t *testing.T) {
	cases := [][3]string{
		{"", "req", "x"},
		{"a", "", "x"},
		{"a", "req", ""},
	}
	for _, c := range cases {
		if _, err := BuildPath(c[0], c[1], c[2]); err == nil {
			t.Errorf("BuildPath(%q,%q,%q) = nil error, want ErrEmptySegment", c[0], c[1], c[2])
		}
	}
}

func TestParsePathRoundTrip(t *testing.T) {
	cases := []struct{ unit, status, id string }{
		{"a", "req", "m1"},
		{"TERMINAL", "KEEP", "Notify_Test"},
		{"echo", "res", "00000000-0000-0000-0000-000000000000"},
	}
	for _, c := range cases {
		path, err := BuildPath(c.unit, c.status, c.id)
		if err != nil {
			t.Fatalf("BuildPath: %v", err)
		}
		unit, status, id, ok := ParsePath(path)
		if !ok {
			t.Fatalf("ParsePath(%q) returned ok=false", path)
		}
		if unit != lower(c.unit) || status != lower(c.status) || id != lower(c.id) {
			t.Errorf("ParsePath(%q) = (%q,%q,%q), want (%q,%q,%q)", path, unit, status, id, lower(c.unit), lower(c.status), lower(c.id))
		}
	}
}

func TestParsePathRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"foo/bar",
		"muf/a/req",
		"muf/a/req/m1/extra",
		"notmuf/a/req/m1",
	}
	for _, path := range cases {
		if _, _, _, ok := ParsePath(path); ok {
			t.Errorf("ParsePath(%q) = ok, want rejected", path)
		}
	}
}

func TestParsePathIsIdempotentOnRebuiltPath(t *testing.T) {
	unit, status, id, ok := ParsePath("MUF/Alpha/KEEP/ID-1")
	if !ok {
		t.Fatal("expected ok")
	}
	rebuilt, err := BuildPath(unit, status, id)
	if err != nil {
		t.Fatalf("BuildPath: %v", err)
	}
	if rebuilt != "muf/alpha/keep/id-1" {
		t.Errorf("rebuilt = %q", rebuilt)
	}
}

func TestBuildKeyspacePatternDefaultsToWildcard(t *testing.T) {
	got := BuildKeyspacePattern("", "", "")
	want := "__keyspace@0__:muf/*/*/*"
	if got != want {
		t.Errorf("BuildKeyspacePattern() = %q, want %q", got, want)
	}
}

func TestKeyFromChannelHandlesBinaryAndTextForms(t *testing.T) {
	cases := []struct{ channel, want string }{
		{"__keyspace@0__:muf/a/req/m1", "muf/a/req/m1"},
		{"__keyspace@0__:MUF/A/REQ/M1", "muf/a/req/m1"},
		{"somevariantprefix:muf/b/res/m2", "muf/b/res/m2"},
		{"muf/c/keep/m3", "muf/c/keep/m3"},
	}
	for _, c := range cases {
		if got := KeyFromChannel(c.channel); got != c.want {
			t.Errorf("KeyFromChannel(%q) = %q, want %q", c.channel, got, c.want)
		}
	}
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}
