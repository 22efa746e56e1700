package event

import (
	"encoding/json"

	"github.com/nircnet/nirc/pkg/nostr/eventid"
	"github.com/nircnet/nirc/pkg/nostr/kind"
	"github.com/nircnet/nirc/pkg/nostr/tag"
	"github.com/nircnet/nirc/pkg/nostr/tags"
	"github.com/nircnet/nirc/pkg/nostr/timestamp"
)

// ChannelMetadata is the structured content of channel creation and channel
// metadata events.
type ChannelMetadata struct {
	Name    string `json:"name"`
	About   string `json:"about,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// ProfileMetadata is the structured content of a kind 0 event.
type ProfileMetadata struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
}

// New stamps, fills and signs an event of the given kind. This is the one
// constructor every outbound event goes through.
func New(k kind.T, content string, tg tags.T, sk string) (ev *T, err error) {
	if tg == nil {
		tg = tags.T{}
	}
	ev = &T{
		CreatedAt: timestamp.Now(),
		Kind:      k,
		Tags:      tg,
		Content:   content,
	}
	if err = ev.Sign(sk); chk.D(err) {
		return nil, err
	}
	return
}

// NewChannelCreation makes a kind 40 event rooting a new channel. The id of
// the returned event is the channel id.
func NewChannelCreation(meta ChannelMetadata, sk string) (ev *T, err error) {
	b, _ := json.Marshal(meta)
	return New(kind.ChannelCreation, string(b), nil, sk)
}

// NewChannelMessage makes a kind 42 event e-tagged to its channel with the
// root marker, and optionally to a message it replies to with the reply
// marker.
func NewChannelMessage(channelID eventid.T, content, sk string,
	relayHint string, replyTo eventid.T) (ev *T, err error) {

	tg := tags.T{{"e", channelID.String(), relayHint, tag.MarkerRoot}}
	if replyTo != "" {
		tg = append(tg, tag.T{"e", replyTo.String(), relayHint,
			tag.MarkerReply})
	}
	return New(kind.ChannelMessage, content, tg, sk)
}

// NewProfileMetadata makes a kind 0 event carrying the given profile.
func NewProfileMetadata(meta ProfileMetadata, sk string) (ev *T, err error) {
	b, _ := json.Marshal(meta)
	return New(kind.ProfileMetadata, string(b), nil, sk)
}

// ParseChannelMetadata decodes the content of a channel creation or channel
// metadata event. Malformed content yields nil, never an error: garbage
// metadata from the network is ordinary input.
func ParseChannelMetadata(ev *T) (meta *ChannelMetadata) {
	m := &ChannelMetadata{}
	if err := json.Unmarshal([]byte(ev.Content), m); err != nil {
		log.T.F("unparseable channel metadata on %s: %v", ev.ID, err)
		return nil
	}
	return m
}

// ParseProfileMetadata decodes the content of a kind 0 event, nil on
// malformed content.
func ParseProfileMetadata(ev *T) (meta *ProfileMetadata) {
	m := &ProfileMetadata{}
	if err := json.Unmarshal([]byte(ev.Content), m); err != nil {
		log.T.F("unparseable profile metadata on %s: %v", ev.ID, err)
		return nil
	}
	return m
}

// RootReference returns the id of the event this event is rooted at: the
// first e tag carrying the root marker, or failing that the first e tag of
// any shape. The fallback is a compatibility policy for clients that never
// adopted positional markers; with multiple unmarked e tags it can pick a
// reply rather than the root, and that ambiguity is accepted.
func RootReference(ev *T) eventid.T {
	for _, t := range ev.Tags {
		if t.Key() == "e" && t.Marker() == tag.MarkerRoot {
			return eventid.T(t.Value())
		}
	}
	for _, t := range ev.Tags {
		if t.Key() == "e" {
			return eventid.T(t.Value())
		}
	}
	return ""
}

// ReplyReference returns the id of the message this event replies to, only
// when explicitly marked.
func ReplyReference(ev *T) eventid.T {
	for _, t := range ev.Tags {
		if t.Key() == "e" && t.Marker() == tag.MarkerReply {
			return eventid.T(t.Value())
		}
	}
	return ""
}
