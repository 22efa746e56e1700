package command_test

import (
	"testing"

	"github.com/nircnet/nirc/pkg/command"
	"github.com/nircnet/nirc/pkg/nostr/eventid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hexPub  = "4fdb07df4a683e3ee9b2a9d117e01bfe2548d7e8c0d4cb56d77e9c23091c3fc3"
	npubVec = "npub10elfcs4fr0l0r8af98jlmgdh9c8tcxjvz9qkw038js35mp4dma8qzvjptg"
	npubHex = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"
)

// recorder captures every callback the processor fires.
type recorder struct {
	joined    []string
	parted    []eventid.T
	messages  []string
	actions   []string
	dms       [][2]string
	nicks     []string
	views     []command.View
	status    []string
	imported  []string
	importOK  bool
	relays    []string
	resolved  map[string]string
	userNames []string
}

func (r *recorder) ctx(view command.View) *command.Context {
	return &command.Context{
		View:   view,
		Nick:   "alice",
		PubKey: hexPub,
		JoinChannel: func(s string) { r.joined = append(r.joined, s) },
		PartChannel: func(id eventid.T) { r.parted = append(r.parted, id) },
		SendMessage: func(id eventid.T, c string) {
			r.messages = append(r.messages, c)
		},
		SendAction: func(id eventid.T, a string) {
			r.actions = append(r.actions, a)
		},
		SendDM: func(pk, c string) { r.dms = append(r.dms, [2]string{pk, c}) },
		SetNick: func(n string) { r.nicks = append(r.nicks, n) },
		SetView: func(v command.View) { r.views = append(r.views, v) },
		Status:  func(s string) { r.status = append(r.status, s) },
		ImportKey: func(sec string) bool {
			r.imported = append(r.imported, sec)
			return r.importOK
		},
		ConnectRelay: func(url string) { r.relays = append(r.relays, url) },
		ResolveUser: func(nick string) (string, bool) {
			pk, ok := r.resolved[nick]
			return pk, ok
		},
		ChannelUserNames: func(id eventid.T) []string { return r.userNames },
	}
}

func inChannel() command.View {
	return command.View{Kind: command.ViewChannel, ChannelID: "c0ffee"}
}

func statusView() command.View {
	return command.View{Kind: command.ViewStatus}
}

func TestNonCommandInput(t *testing.T) {
	r := &recorder{}
	assert.Equal(t, command.Error, command.Process("hello", r.ctx(statusView())).Kind)
	assert.Equal(t, command.Error, command.Process("/", r.ctx(statusView())).Kind)
	assert.Equal(t, command.Error, command.Process("/bogus", r.ctx(statusView())).Kind)
}

func TestJoin(t *testing.T) {
	r := &recorder{}
	res := command.Process("/join #gophers", r.ctx(statusView()))
	assert.Equal(t, command.Handled, res.Kind)
	assert.Equal(t, []string{"#gophers"}, r.joined)

	// short alias.
	command.Process("/j lobby", r.ctx(statusView()))
	assert.Equal(t, []string{"#gophers", "lobby"}, r.joined)

	res = command.Process("/join", r.ctx(statusView()))
	assert.Equal(t, command.Error, res.Kind)
	assert.Contains(t, res.Message, "Usage")
}

func TestPartNeedsChannel(t *testing.T) {
	r := &recorder{}
	res := command.Process("/part", r.ctx(statusView()))
	assert.Equal(t, command.Error, res.Kind)
	assert.Equal(t, "Not in a channel", res.Message)

	res = command.Process("/part", r.ctx(inChannel()))
	assert.Equal(t, command.Handled, res.Kind)
	assert.Equal(t, []eventid.T{"c0ffee"}, r.parted)

	command.Process("/leave", r.ctx(inChannel()))
	assert.Len(t, r.parted, 2)
}

func TestMsgTargetForms(t *testing.T) {
	r := &recorder{resolved: map[string]string{"bob": "b0b"}}

	// hex pubkey target.
	res := command.Process("/msg "+hexPub+" hi there", r.ctx(statusView()))
	require.Equal(t, command.Handled, res.Kind)
	require.Len(t, r.dms, 1)
	assert.Equal(t, [2]string{hexPub, "hi there"}, r.dms[0])
	require.Len(t, r.views, 1)
	assert.Equal(t, command.ViewDM, r.views[0].Kind)
	assert.Equal(t, hexPub, r.views[0].PubKey)

	// npub target decodes to hex before reaching the store.
	res = command.Process("/msg "+npubVec+" yo", r.ctx(statusView()))
	require.Equal(t, command.Handled, res.Kind)
	assert.Equal(t, [2]string{npubHex, "yo"}, r.dms[1])

	// nickname target goes through profile resolution.
	res = command.Process("/msg bob sup", r.ctx(statusView()))
	require.Equal(t, command.Handled, res.Kind)
	assert.Equal(t, [2]string{"b0b", "sup"}, r.dms[2])

	res = command.Process("/msg stranger hello", r.ctx(statusView()))
	assert.Equal(t, command.Error, res.Kind)
	assert.Equal(t, "Unknown user: stranger", res.Message)

	res = command.Process("/msg bob", r.ctx(statusView()))
	assert.Equal(t, command.Error, res.Kind)
	assert.Contains(t, res.Message, "Usage")
}

func TestNick(t *testing.T) {
	r := &recorder{}
	assert.Equal(t, command.Handled,
		command.Process("/nick carol", r.ctx(statusView())).Kind)
	assert.Equal(t, []string{"carol"}, r.nicks)
	assert.Equal(t, command.Error,
		command.Process("/nick", r.ctx(statusView())).Kind)
}

func TestActions(t *testing.T) {
	r := &recorder{}
	command.Process("/me waves", r.ctx(inChannel()))
	command.Process("/slap", r.ctx(inChannel()))
	command.Process("/slap bob", r.ctx(inChannel()))
	command.Process("/hug", r.ctx(inChannel()))
	assert.Equal(t, []string{
		"waves",
		"slaps everyone around a bit with a large trout",
		"slaps bob around a bit with a large trout",
		"hugs everyone",
	}, r.actions)

	for _, in := range []string{"/me waves", "/slap", "/hug"} {
		assert.Equal(t, command.Error,
			command.Process(in, r.ctx(statusView())).Kind, in)
	}
	assert.Equal(t, command.Error,
		command.Process("/me", r.ctx(inChannel())).Kind)
}

func TestWho(t *testing.T) {
	r := &recorder{}
	command.Process("/who", r.ctx(inChannel()))
	require.Len(t, r.status, 1)
	assert.Equal(t, "No users seen in this channel yet", r.status[0])

	r = &recorder{userNames: []string{"alice", "bob"}}
	command.Process("/w", r.ctx(inChannel()))
	require.Len(t, r.status, 1)
	assert.Equal(t, "Users in channel: alice, bob", r.status[0])

	assert.Equal(t, command.Error,
		command.Process("/who", r.ctx(statusView())).Kind)
}

func TestClear(t *testing.T) {
	r := &recorder{}
	assert.Equal(t, command.Clear,
		command.Process("/clear", r.ctx(inChannel())).Kind)
}

func TestHelpGoesToStatus(t *testing.T) {
	r := &recorder{}
	assert.Equal(t, command.Handled,
		command.Process("/help", r.ctx(statusView())).Kind)
	assert.True(t, len(r.status) > 10)
}

func TestKey(t *testing.T) {
	r := &recorder{importOK: true}
	assert.Equal(t, command.Handled,
		command.Process("/key nsec1xyz", r.ctx(statusView())).Kind)
	assert.Equal(t, []string{"nsec1xyz"}, r.imported)

	r = &recorder{importOK: false}
	res := command.Process("/key garbage", r.ctx(statusView()))
	assert.Equal(t, command.Error, res.Kind)
	assert.Equal(t, "Invalid nsec key", res.Message)

	assert.Equal(t, command.Error,
		command.Process("/key", r.ctx(statusView())).Kind)
}

func TestRelay(t *testing.T) {
	r := &recorder{}
	res := command.Process("/relay wss://nostr.wine", r.ctx(statusView()))
	assert.Equal(t, command.Handled, res.Kind)
	assert.Equal(t, []string{"wss://nostr.wine"}, r.relays)
	require.Len(t, r.status, 1)
	assert.Contains(t, r.status[0], "wss://nostr.wine")

	assert.Equal(t, command.Error,
		command.Process("/relay", r.ctx(statusView())).Kind)
}
