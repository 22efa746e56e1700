package event_test

import (
	"testing"

	"github.com/nircnet/nirc/pkg/nostr/event"
	"github.com/nircnet/nirc/pkg/nostr/eventid"
	"github.com/nircnet/nirc/pkg/nostr/kind"
	"github.com/nircnet/nirc/pkg/nostr/tag"
	"github.com/nircnet/nirc/pkg/nostr/tags"
	"github.com/nircnet/nirc/pkg/nostr/timestamp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	TestSecHex = "1797f6f1d10593548b566ba32e81577aa4bc990eb0f16556bf884f1af4b17c25"
	TestPubHex = "4fdb07df4a683e3ee9b2a9d117e01bfe2548d7e8c0d4cb56d77e9c23091c3fc3"
)

const TestContent = `This event contains { braces } and [ brackets ] that must be properly
handled, as well as a line break, a dangling space and a
	tab.`

func TestSignAndVerify(t *testing.T) {
	ev, err := event.New(kind.TextNote, TestContent, nil, TestSecHex)
	require.NoError(t, err)
	assert.Equal(t, TestPubHex, ev.PubKey)
	assert.Equal(t, ev.GetID(), ev.ID)

	valid, err := ev.CheckSignature()
	require.NoError(t, err)
	assert.True(t, valid)

	// tampering with the content must invalidate the signature.
	ev.Content += "!"
	valid, err = ev.CheckSignature()
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestCanonicalEncoding(t *testing.T) {
	ev := &event.T{
		PubKey:    TestPubHex,
		CreatedAt: timestamp.T(1700000000),
		Kind:      kind.ChannelMessage,
		Tags:      tags.T{{"e", "abcd", "", tag.MarkerRoot}},
		Content:   "a \"quoted\"\nline",
	}
	want := `[0,"` + TestPubHex + `",1700000000,42,` +
		`[["e","abcd","","root"]],"a \"quoted\"\nline"]`
	assert.Equal(t, want, string(ev.ToCanonical(nil)))
}

func TestSerializeRoundTrip(t *testing.T) {
	ev, err := event.New(kind.ChannelMessage, TestContent,
		tags.T{{"e", "00ff", "wss://relay.example.com", tag.MarkerRoot}},
		TestSecHex)
	require.NoError(t, err)

	var back event.T
	require.NoError(t, back.UnmarshalJSON(ev.Serialize()))
	assert.Equal(t, ev.ID, back.ID)
	assert.Equal(t, ev.Tags, back.Tags)
	assert.Equal(t, ev.Content, back.Content)
	valid, err := back.CheckSignature()
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestChannelMessageReferences(t *testing.T) {
	root := eventid.T("aa01")
	reply := eventid.T("bb02")
	ev, err := event.NewChannelMessage(root, "hi", TestSecHex, "", reply)
	require.NoError(t, err)
	assert.Equal(t, root, event.RootReference(ev))
	assert.Equal(t, reply, event.ReplyReference(ev))
}

// A message whose e tags carry no positional markers falls back to the first
// e tag as the root. When such a message carries multiple unmarked e tags,
// the first one wins even if it is actually a reply reference; this
// ambiguity is a deliberate compatibility behavior, documented here.
func TestRootReferenceFallback(t *testing.T) {
	ev := &event.T{
		Kind: kind.ChannelMessage,
		Tags: tags.T{
			{"p", "deadbeef"},
			{"e", "cc03"},
			{"e", "dd04"},
		},
	}
	assert.Equal(t, eventid.T("cc03"), event.RootReference(ev))
	assert.Equal(t, eventid.T(""), event.ReplyReference(ev))

	// no e tags at all: nothing to root on.
	ev.Tags = tags.T{{"p", "deadbeef"}}
	assert.Equal(t, eventid.T(""), event.RootReference(ev))
}

func TestParseChannelMetadata(t *testing.T) {
	ev := &event.T{Content: `{"name":"bitcoin","about":"number go up"}`}
	meta := event.ParseChannelMetadata(ev)
	require.NotNil(t, meta)
	assert.Equal(t, "bitcoin", meta.Name)

	ev.Content = `{"name":`
	assert.Nil(t, event.ParseChannelMetadata(ev))
}

func TestParseProfileMetadataMalformed(t *testing.T) {
	ev := &event.T{Content: "not json"}
	assert.Nil(t, event.ParseProfileMetadata(ev))
}
