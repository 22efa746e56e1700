// Package envelopes implements the wire frames exchanged with relays: JSON
// arrays whose first element is a string label. Each label gets its own
// concrete type and inbound frames are parsed exactly once, at the transport
// boundary; anything unknown or malformed parses to nil and is dropped
// there.
package envelopes

import (
	"encoding/json"

	"github.com/nircnet/nirc/pkg/nostr/event"
	"github.com/nircnet/nirc/pkg/nostr/filter"
	"github.com/nircnet/nirc/pkg/nostr/wire"
	"github.com/tidwall/gjson"
)

// E is implemented by every envelope variant.
type E interface {
	Label() string
	MarshalJSON() ([]byte, error)
}

// Labels as they appear as the first array element.
const (
	LEvent  = "EVENT"
	LReq    = "REQ"
	LClose  = "CLOSE"
	LEOSE   = "EOSE"
	LOK     = "OK"
	LNotice = "NOTICE"
	LAuth   = "AUTH"
	LClosed = "CLOSED"
)

// Event delivers an event: ["EVENT", subscriptionID, event] inbound, or
// ["EVENT", event] when publishing.
type Event struct {
	SubscriptionID string
	Event          *event.T
}

func (env *Event) Label() string { return LEvent }

func (env *Event) MarshalJSON() (b []byte, err error) {
	b = append(b, `["EVENT",`...)
	if env.SubscriptionID != "" {
		b = wire.EscapeString(b, env.SubscriptionID)
		b = append(b, ',')
	}
	b = append(b, env.Event.Serialize()...)
	return append(b, ']'), nil
}

// EOSE marks the end of stored events for a subscription: ["EOSE", subID].
type EOSE string

func (env EOSE) Label() string { return LEOSE }

func (env EOSE) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{LEOSE, string(env)})
}

// OK reports acceptance of a published event: ["OK", eventID, bool, reason].
// Advisory only for this client.
type OK struct {
	EventID string
	OK      bool
	Reason  string
}

func (env *OK) Label() string { return LOK }

func (env *OK) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{LOK, env.EventID, env.OK, env.Reason})
}

// Notice is a human-readable message from the relay: ["NOTICE", text].
type Notice string

func (env Notice) Label() string { return LNotice }

func (env Notice) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{LNotice, string(env)})
}

// Req opens a subscription: ["REQ", subID, filter...].
type Req struct {
	SubscriptionID string
	Filters        filter.S
}

func (env *Req) Label() string { return LReq }

func (env *Req) MarshalJSON() (b []byte, err error) {
	b = append(b, `["REQ",`...)
	b = wire.EscapeString(b, env.SubscriptionID)
	for i := range env.Filters {
		b = append(b, ',')
		var fb []byte
		if fb, err = json.Marshal(env.Filters[i]); err != nil {
			return nil, err
		}
		b = append(b, fb...)
	}
	return append(b, ']'), nil
}

// Close cancels a subscription: ["CLOSE", subID].
type Close string

func (env Close) Label() string { return LClose }

func (env Close) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{LClose, string(env)})
}

// ParseMessage parses one inbound frame into its envelope variant, or nil
// for anything unknown or malformed. AUTH and CLOSED labels are recognized
// but unused by this client, so they also parse to nil here and get dropped
// with a trace log by the caller.
func ParseMessage(message []byte) E {
	parsed := gjson.ParseBytes(message)
	if !parsed.IsArray() {
		return nil
	}
	arr := parsed.Array()
	if len(arr) < 2 || arr[0].Type != gjson.String {
		return nil
	}

	switch arr[0].Str {
	case LEvent:
		// inbound events always carry the subscription id.
		if len(arr) < 3 || arr[1].Type != gjson.String {
			return nil
		}
		ev := &event.T{}
		if err := ev.UnmarshalJSON([]byte(arr[2].Raw)); err != nil {
			return nil
		}
		return &Event{SubscriptionID: arr[1].Str, Event: ev}
	case LEOSE:
		if arr[1].Type != gjson.String {
			return nil
		}
		return EOSE(arr[1].Str)
	case LOK:
		if len(arr) < 3 || arr[1].Type != gjson.String {
			return nil
		}
		env := &OK{EventID: arr[1].Str, OK: arr[2].Bool()}
		if len(arr) > 3 {
			env.Reason = arr[3].Str
		}
		return env
	case LNotice:
		return Notice(arr[1].Str)
	case LClose:
		return Close(arr[1].Str)
	case LReq:
		// relays do not send REQ; parse it anyway so tests can round-trip.
		env := &Req{SubscriptionID: arr[1].Str}
		for _, raw := range arr[2:] {
			var f filter.T
			if err := json.Unmarshal([]byte(raw.Raw), &f); err != nil {
				return nil
			}
			env.Filters = append(env.Filters, f)
		}
		return env
	}
	return nil
}
