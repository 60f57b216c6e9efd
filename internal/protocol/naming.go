package protocol

import (
	"fmt"
	"strings"
)

// ErrEmptySegment is returned by BuildPath when any of unit, status, or
// id is empty. Segments are not trimmed, so whitespace-only segments
// are accepted.
var ErrEmptySegment = fmt.Errorf("muf: path segment must not be empty")

// BuildPath renders the canonical path root/unit/status/id. Every
// segment is lowercased; all three caller-supplied segments must be
// non-empty (the root never is).
func BuildPath(unit, status, id string) (string, error) {
	u := strings.ToLower(unit)
	s := strings.ToLower(status)
	m := strings.ToLower(id)
	if u == "" || s == "" || m == "" {
		return "", ErrEmptySegment
	}
	return strings.Join([]string{Root, u, s, m}, Separator), nil
}

// MustBuildPath panics on an invalid path. Reserved for call sites that
// have already validated their inputs (e.g. a freshly generated uuid).
func MustBuildPath(unit, status, id string) string {
	p, err := BuildPath(unit, status, id)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePath decodes a path into its three addressable segments. It
// lowercases the whole input first, then requires exactly four
// slash-separated segments whose first equals Root. Any other shape
// returns ok=false, and the core silently drops the notification that
// produced it.
func ParsePath(path string) (unit, status, id string, ok bool) {
	if path == "" {
		return "", "", "", false
	}
	normalized := strings.ToLower(path)
	parts := strings.Split(normalized, Separator)
	if len(parts) != 4 || parts[0] != Root {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}

// BuildPathPattern renders a path pattern with the same shape BuildPath
// produces, except segments may contain glob tokens ("*", "?") and
// empty segments default to "*" rather than being rejected. This is
// the pattern form the Dispatcher's handler table matches decoded key
// paths against — it never carries the keyspace-notification prefix.
func BuildPathPattern(unit, status, id string) string {
	if unit == "" {
		unit = "*"
	}
	if status == "" {
		status = "*"
	}
	if id == "" {
		id = "*"
	}
	return strings.Join([]string{strings.ToLower(Root), strings.ToLower(unit), strings.ToLower(status), strings.ToLower(id)}, Separator)
}

// BuildKeyspacePattern builds the subscription channel-pattern used to
// receive notifications for every write matching the path pattern.
// Segments default to "*" (any unit/status/id); callers may also pass
// "?" or any glob-style token understood by the dispatcher's matcher.
// The concrete form is an implementation detail of the store: here it
// is Redis's keyspace-notification channel naming, KeyspacePrefix
// ("__keyspace@0__:") followed by the path. The prefix is always db
// 0's; the pattern does not match notifications from other db indexes.
func BuildKeyspacePattern(unit, status, id string) string {
	return KeyspacePrefix + BuildPathPattern(unit, status, id)
}

// KeyFromChannel extracts the key-path portion of a keyspace
// notification channel name, tolerating both the binary and text forms
// Redis may hand back. It splits on the first ':' — the separator
// between the "__keyspace@<db>__" prefix and the key — rather than
// assuming any particular prefix, so it survives a db-index other than
// the one KeyspacePrefix names. The result is lowercased.
func KeyFromChannel(channel string) string {
	normalized := strings.ToLower(channel)
	if idx := strings.Index(normalized, ":"); idx >= 0 {
		return normalized[idx+1:]
	}
	return normalized
}
