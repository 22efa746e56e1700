// Package filter implements the query form sent to relays in REQ envelopes.
// Relays reply with matching events followed by an end-of-stored-events
// marker, then keep the query open for live matches.
package filter

import (
	"encoding/json"

	"github.com/nircnet/nirc/pkg/nostr/event"
	"github.com/nircnet/nirc/pkg/nostr/kind"
	"github.com/nircnet/nirc/pkg/nostr/timestamp"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// T is a single filter. Within one filter all conditions are ANDed; a list
// of filters in one subscription is ORed.
type T struct {
	IDs     []string     `json:"ids,omitempty"`
	Kinds   []kind.T     `json:"kinds,omitempty"`
	Authors []string     `json:"authors,omitempty"`
	Tags    TagMap       `json:"-"`
	Since   *timestamp.T `json:"since,omitempty"`
	Until   *timestamp.T `json:"until,omitempty"`
	Limit   int          `json:"limit,omitempty"`
}

// TagMap holds tag conditions keyed by bare tag name; they travel on the
// wire as "#<name>" keys beside the fixed fields.
type TagMap map[string][]string

// S is a list of filters, the payload of one REQ.
type S []T

func (s S) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Match returns true if any filter in the list accepts the event.
func (s S) Match(ev *event.T) bool {
	for i := range s {
		if s[i].Matches(ev) {
			return true
		}
	}
	return false
}

func (f T) String() string {
	b, _ := json.Marshal(f)
	return string(b)
}

// Matches checks the event against every condition of the filter.
func (f T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}
	if f.IDs != nil && !slices.Contains(f.IDs, ev.ID.String()) {
		return false
	}
	if f.Kinds != nil && !slices.Contains(f.Kinds, ev.Kind) {
		return false
	}
	if f.Authors != nil && !slices.Contains(f.Authors, ev.PubKey) {
		return false
	}
	for name, values := range f.Tags {
		if values != nil && !ev.Tags.ContainsAny(name, values...) {
			return false
		}
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	return true
}

// MarshalJSON flattens the tag map into "#<name>" keys beside the fixed
// fields, the NIP-01 wire form.
func (f T) MarshalJSON() ([]byte, error) {
	type fixed T
	b, err := json.Marshal(fixed(f))
	if err != nil {
		return nil, err
	}
	if len(f.Tags) == 0 {
		return b, nil
	}
	m := make(map[string]json.RawMessage)
	if err = json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for name, values := range f.Tags {
		vb, _ := json.Marshal(values)
		m["#"+name] = vb
	}
	return json.Marshal(m)
}

// UnmarshalJSON gathers "#"-prefixed keys back into the tag map.
func (f *T) UnmarshalJSON(b []byte) (err error) {
	type fixed T
	if err = json.Unmarshal(b, (*fixed)(f)); err != nil {
		return
	}
	var m map[string]json.RawMessage
	if err = json.Unmarshal(b, &m); err != nil {
		return
	}
	for name, raw := range m {
		if len(name) < 2 || name[0] != '#' {
			continue
		}
		var values []string
		if err = json.Unmarshal(raw, &values); err != nil {
			return
		}
		if f.Tags == nil {
			f.Tags = make(TagMap)
		}
		f.Tags[name[1:]] = values
	}
	return nil
}

// Equal reports whether two filters describe the same query.
func Equal(a, b T) bool {
	if !similar(a.Kinds, b.Kinds) ||
		!similar(a.IDs, b.IDs) ||
		!similar(a.Authors, b.Authors) {
		return false
	}
	if len(a.Tags) != len(b.Tags) {
		return false
	}
	for name, av := range a.Tags {
		bv, ok := b.Tags[name]
		if !ok || !similar(av, bv) {
			return false
		}
	}
	if !pointerEqual(a.Since, b.Since) || !pointerEqual(a.Until, b.Until) {
		return false
	}
	return a.Limit == b.Limit
}

func similar[E constraints.Ordered](as, bs []E) bool {
	if len(as) != len(bs) {
		return false
	}
	for _, a := range as {
		if !slices.Contains(bs, a) {
			return false
		}
	}
	return true
}

func pointerEqual[E comparable](a, b *E) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
