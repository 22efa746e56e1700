// Package tag implements a single event tag, a list of strings with literal
// ordering and positional meaning.
package tag

import "strings"

// The tag position meanings so they are clear when reading.
const (
	Key = iota
	Value
	Relay
	Marker
)

// Marker strings for e (reference) tags.
const (
	MarkerRoot    = "root"
	MarkerReply   = "reply"
	MarkerMention = "mention"
)

// T is a list of strings with a literal ordering. Not a set, there can be
// repeating elements.
type T []string

// StartsWith checks a tag has the same initial set of elements. The last
// element of the prefix is matched as a string prefix of its counterpart.
func (t T) StartsWith(prefix []string) bool {
	prefixLen := len(prefix)
	if prefixLen > len(t) {
		return false
	}
	for i := 0; i < prefixLen-1; i++ {
		if prefix[i] != t[i] {
			return false
		}
	}
	return strings.HasPrefix(t[prefixLen-1], prefix[prefixLen-1])
}

// Key returns the first element of the tag.
func (t T) Key() string {
	if len(t) > Key {
		return t[Key]
	}
	return ""
}

// Value returns the second element of the tag.
func (t T) Value() string {
	if len(t) > Value {
		return t[Value]
	}
	return ""
}

// Relay returns the third element of e and p tags, the relay hint.
func (t T) Relay() string {
	if (t.Key() == "e" || t.Key() == "p") && len(t) > Relay {
		return t[Relay]
	}
	return ""
}

// Marker returns the fourth element of an e tag, one of the Marker constants
// when present.
func (t T) Marker() string {
	if t.Key() == "e" && len(t) > Marker {
		return t[Marker]
	}
	return ""
}
