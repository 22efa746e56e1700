// Package store is the single owner of client-visible state: channels,
// message logs, direct message conversations, profiles and presence. Every
// mutation, whether from a user action or an inbound relay event, is
// serialized through one mutex so the dedup and ordering invariants hold
// under concurrent delivery from many relay sessions.
package store

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/nircnet/nirc/pkg/identity"
	"github.com/nircnet/nirc/pkg/nostr/event"
	"github.com/nircnet/nirc/pkg/nostr/eventid"
	"github.com/nircnet/nirc/pkg/nostr/filter"
	"github.com/nircnet/nirc/pkg/nostr/kind"
	"github.com/nircnet/nirc/pkg/nostr/nip17"
	"github.com/nircnet/nirc/pkg/nostr/timestamp"
	"github.com/nircnet/nirc/pkg/slog"
	"golang.org/x/exp/slices"
)

var log, chk = slog.New(os.Stderr)

// DefaultRelays is used when the caller connects without naming any.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
	"wss://relay.snort.social",
	"wss://nostr.wine",
}

// actionPrefix marks a channel message as a /me style action.
const actionPrefix = "ACTION "

const (
	channelDiscoveryLimit = 200
	metadataLimit         = 500
	giftWrapLimit         = 100
	channelHistoryLimit   = 200
)

// Relays is the transport surface the store drives. Satisfied by *pool.P.
type Relays interface {
	Connect(url string) string
	Subscribe(ff filter.S, onEvent func(ev *event.T, relayURL string),
		onEOSE func(relayURL, subscriptionID string)) string
	Unsubscribe(id string)
	Publish(ev *event.T)
}

// Channel is a discovered group conversation, keyed by its creation event.
type Channel struct {
	ID        eventid.T
	Name      string
	About     string
	Creator   string
	CreatedAt timestamp.T
}

// Message is one entry of a channel log or the status log.
type Message struct {
	ID        eventid.T
	PubKey    string
	Content   string
	CreatedAt timestamp.T
	ChannelID eventid.T
	Nick      string
	Action    bool
	System    bool
}

// DirectMessage is one entry of a private conversation.
type DirectMessage struct {
	ID        eventid.T
	From      string
	To        string
	Content   string
	CreatedAt timestamp.T
	Nick      string
}

// Profile is the cached metadata for a pubkey, superseded last-write-wins
// on event timestamps.
type Profile struct {
	PubKey      string
	Name        string
	DisplayName string
	About       string
	Picture     string
	NIP05       string
	LastSeen    timestamp.T
}

// Option configures a store.
type Option func(*T)

// WithStatusSink registers the collaborator's human-readable status line
// receiver. Entries land in the status log regardless.
func WithStatusSink(sink func(line string)) Option {
	return func(s *T) { s.statusSink = sink }
}

// T is the reducer. Construct with New, then InitIdentity and
// ConnectToRelays.
type T struct {
	relays       Relays
	identityFile string
	statusSink   func(string)

	mx           sync.Mutex
	id           *identity.T
	channels     map[eventid.T]*Channel
	joined       map[eventid.T]struct{}
	messages     map[eventid.T][]*Message
	dms          map[string][]*DirectMessage
	contacts     map[string]*Profile
	profiles     map[string]*Profile
	channelUsers map[eventid.T]map[string]struct{}
	channelSubs  map[eventid.T]string
	statusLog    []*Message
	statusSerial int64
}

// New creates an empty store over the given relay surface. identityFile is
// where the keypair and nickname live between runs.
func New(relays Relays, identityFile string, opts ...Option) *T {
	s := &T{
		relays:       relays,
		identityFile: identityFile,
		channels:     make(map[eventid.T]*Channel),
		joined:       make(map[eventid.T]struct{}),
		messages:     make(map[eventid.T][]*Message),
		dms:          make(map[string][]*DirectMessage),
		contacts:     make(map[string]*Profile),
		profiles:     make(map[string]*Profile),
		channelUsers: make(map[eventid.T]map[string]struct{}),
		channelSubs:  make(map[eventid.T]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Status("Welcome to nirc, a nostr IRC client")
	return s
}

// Status appends a line to the status log and forwards it to the sink.
func (s *T) Status(line string) {
	s.mx.Lock()
	s.statusSerial++
	s.statusLog = append(s.statusLog, &Message{
		ID:        eventid.T(fmt.Sprintf("status-%d", s.statusSerial)),
		PubKey:    "system",
		Content:   line,
		CreatedAt: timestamp.Now(),
		System:    true,
	})
	sink := s.statusSink
	s.mx.Unlock()
	if sink != nil {
		sink(line)
	}
}

// Statusf is Status with formatting.
func (s *T) Statusf(format string, a ...interface{}) {
	s.Status(fmt.Sprintf(format, a...))
}

// InitIdentity loads the persisted identity, creating and persisting a
// fresh one on first run. Calling it when an identity is already live is a
// no-op.
func (s *T) InitIdentity() (err error) {
	s.mx.Lock()
	if s.id != nil {
		s.mx.Unlock()
		return
	}
	s.mx.Unlock()

	id, loadErr := identity.Load(s.identityFile)
	if loadErr != nil {
		if !os.IsNotExist(loadErr) {
			log.W.F("unreadable identity file %s: %v", s.identityFile, loadErr)
		}
		if id, err = identity.New(""); chk.E(err) {
			return
		}
		if err = id.Save(s.identityFile); chk.E(err) {
			return
		}
	}
	s.mx.Lock()
	s.id = id
	s.mx.Unlock()
	s.Statusf("Your nick is %s", id.Nick)
	s.Statusf("Your npub: %s", id.Npub)
	return
}

// Identity returns the live identity, nil before InitIdentity.
func (s *T) Identity() *identity.T {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.id
}

// SetNick renames the identity, persists it, and announces the new name to
// the network as a metadata event.
func (s *T) SetNick(nick string) {
	s.mx.Lock()
	id := s.id
	s.mx.Unlock()
	if id == nil {
		return
	}
	id.Rename(nick)
	if err := id.Save(s.identityFile); chk.E(err) {
		s.Status("Could not save identity")
		return
	}
	ev, err := event.NewProfileMetadata(event.ProfileMetadata{
		Name:        id.Nick,
		DisplayName: id.Nick,
	}, id.SecretKey)
	if !chk.E(err) {
		s.relays.Publish(ev)
	}
	s.Statusf("Nick changed to %s", id.Nick)
}

// ImportKey replaces the identity with one derived from an nsec or hex
// secret key, reporting success. The previous identity is overwritten on
// disk.
func (s *T) ImportKey(secret string) bool {
	id, err := identity.Import(secret, "")
	if err != nil {
		return false
	}
	if err = id.Save(s.identityFile); chk.E(err) {
		return false
	}
	s.mx.Lock()
	s.id = id
	s.mx.Unlock()
	s.Statusf("Identity imported. Nick: %s", id.Nick)
	return true
}

// ConnectToRelays starts sessions for the given endpoints, or the default
// list when none are given, and opens the standing subscriptions: channel
// discovery, profile metadata, and this identity's gift wraps.
func (s *T) ConnectToRelays(urls ...string) {
	if len(urls) == 0 {
		urls = DefaultRelays
	}
	for _, url := range urls {
		s.relays.Connect(url)
	}
	s.Statusf("Connecting to %d relays...", len(urls))

	s.relays.Subscribe(filter.S{{
		Kinds: []kind.T{kind.ChannelCreation},
		Limit: channelDiscoveryLimit,
	}}, s.onChannelCreation, nil)

	s.relays.Subscribe(filter.S{{
		Kinds: []kind.T{kind.ProfileMetadata},
		Limit: metadataLimit,
	}}, s.onMetadata, nil)

	s.mx.Lock()
	id := s.id
	s.mx.Unlock()
	if id != nil {
		s.relays.Subscribe(filter.S{{
			Kinds: []kind.T{kind.GiftWrap},
			Tags:  filter.TagMap{"p": []string{id.PublicKey}},
			Limit: giftWrapLimit,
		}}, s.onGiftWrap, nil)
	}
}

// JoinChannel joins by channel id or by name, with or without the leading
// #, case-insensitively. An unknown name is created as a new channel.
func (s *T) JoinChannel(nameOrID string) {
	s.mx.Lock()
	if ch, ok := s.channels[eventid.T(nameOrID)]; ok {
		s.joined[ch.ID] = struct{}{}
		s.mx.Unlock()
		s.subscribeChannel(ch.ID)
		s.Statusf("Joined #%s", ch.Name)
		return
	}
	name := strings.TrimPrefix(nameOrID, "#")
	for _, ch := range s.channels {
		if strings.EqualFold(ch.Name, name) {
			s.joined[ch.ID] = struct{}{}
			s.mx.Unlock()
			s.subscribeChannel(ch.ID)
			s.Statusf("Joined #%s", ch.Name)
			return
		}
	}
	s.mx.Unlock()
	s.CreateChannel(name, "")
}

// CreateChannel publishes a channel creation event and joins the result
// immediately, without waiting for any relay to echo it back.
func (s *T) CreateChannel(name, about string) {
	s.mx.Lock()
	id := s.id
	s.mx.Unlock()
	if id == nil {
		return
	}
	if about == "" {
		about = fmt.Sprintf("nirc channel: #%s", name)
	}
	ev, err := event.NewChannelCreation(event.ChannelMetadata{
		Name:  name,
		About: about,
	}, id.SecretKey)
	if chk.E(err) {
		return
	}
	s.relays.Publish(ev)

	chID := ev.GetID()
	s.mx.Lock()
	s.channels[chID] = &Channel{
		ID:        chID,
		Name:      name,
		About:     about,
		Creator:   id.PublicKey,
		CreatedAt: ev.CreatedAt,
	}
	s.joined[chID] = struct{}{}
	s.mx.Unlock()
	s.subscribeChannel(chID)
	s.Statusf("Created and joined #%s", name)
}

// PartChannel leaves a channel and stops its message subscription. The
// accumulated log is kept; rejoining resumes where it left off.
func (s *T) PartChannel(channelID eventid.T) {
	s.mx.Lock()
	delete(s.joined, channelID)
	subID, hadSub := s.channelSubs[channelID]
	delete(s.channelSubs, channelID)
	ch := s.channels[channelID]
	s.mx.Unlock()
	if hadSub {
		s.relays.Unsubscribe(subID)
	}
	if ch != nil {
		s.Statusf("Left #%s", ch.Name)
	}
}

// SendMessage publishes a channel message and echoes it into the local log
// immediately. The copy relays send back later is deduplicated by id.
func (s *T) SendMessage(channelID eventid.T, content string) {
	s.sendToChannel(channelID, content, false)
}

// SendAction publishes a /me style action to a channel.
func (s *T) SendAction(channelID eventid.T, action string) {
	s.sendToChannel(channelID, action, true)
}

func (s *T) sendToChannel(channelID eventid.T, text string, action bool) {
	s.mx.Lock()
	id := s.id
	s.mx.Unlock()
	if id == nil {
		return
	}
	content := text
	if action {
		content = actionPrefix + text
	}
	ev, err := event.NewChannelMessage(channelID, content, id.SecretKey,
		"", "")
	if chk.E(err) {
		return
	}
	s.relays.Publish(ev)

	s.mx.Lock()
	defer s.mx.Unlock()
	s.messages[channelID] = append(s.messages[channelID], &Message{
		ID:        ev.GetID(),
		PubKey:    id.PublicKey,
		Content:   text,
		CreatedAt: ev.CreatedAt,
		ChannelID: channelID,
		Nick:      id.Nick,
		Action:    action,
	})
	s.addChannelUser(channelID, id.PublicKey)
}

// SendDM wraps the plaintext for the recipient and publishes the envelope,
// echoing the cleartext into the local conversation.
func (s *T) SendDM(pubKey, content string) {
	s.mx.Lock()
	id := s.id
	s.mx.Unlock()
	if id == nil {
		return
	}
	gift, err := nip17.Wrap(id.SecretKey, pubKey, content)
	if chk.E(err) {
		s.Status("Could not encrypt message")
		return
	}
	s.relays.Publish(gift)

	s.mx.Lock()
	defer s.mx.Unlock()
	s.dms[pubKey] = append(s.dms[pubKey], &DirectMessage{
		ID:        gift.GetID(),
		From:      id.PublicKey,
		To:        pubKey,
		Content:   content,
		CreatedAt: timestamp.Now(),
		Nick:      id.Nick,
	})
	s.ensureContact(pubKey)
}

// subscribeChannel opens the message subscription for one channel,
// replacing any previous one for the same channel.
func (s *T) subscribeChannel(channelID eventid.T) {
	subID := s.relays.Subscribe(filter.S{{
		Kinds: []kind.T{kind.ChannelMessage},
		Tags:  filter.TagMap{"e": []string{string(channelID)}},
		Limit: channelHistoryLimit,
	}}, s.onChannelMessage, nil)
	s.mx.Lock()
	prev, had := s.channelSubs[channelID]
	s.channelSubs[channelID] = subID
	s.mx.Unlock()
	if had {
		s.relays.Unsubscribe(prev)
	}
}

// onChannelCreation records newly discovered channels. The first creation
// event seen for an id wins; later ones are ignored.
func (s *T) onChannelCreation(ev *event.T, _ string) {
	meta := event.ParseChannelMetadata(ev)
	if meta == nil {
		return
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if _, ok := s.channels[ev.ID]; ok {
		return
	}
	s.channels[ev.ID] = &Channel{
		ID:        ev.ID,
		Name:      meta.Name,
		About:     meta.About,
		Creator:   ev.PubKey,
		CreatedAt: ev.CreatedAt,
	}
}

// onChannelMessage routes an inbound message to its channel log. Events
// with no resolvable channel reference are dropped. Presence is recorded
// even when the message itself is a duplicate.
func (s *T) onChannelMessage(ev *event.T, _ string) {
	chID := event.RootReference(ev)
	if chID == "" {
		return
	}
	action := strings.HasPrefix(ev.Content, actionPrefix)
	content := ev.Content
	if action {
		content = content[len(actionPrefix):]
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	s.addChannelUser(chID, ev.PubKey)
	logg := s.messages[chID]
	for _, m := range logg {
		if m.ID == ev.ID {
			return
		}
	}
	logg = append(logg, &Message{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		Content:   content,
		CreatedAt: ev.CreatedAt,
		ChannelID: chID,
		Nick:      s.displayName(ev.PubKey),
		Action:    action,
	})
	sortByCreatedAt(logg)
	s.messages[chID] = logg
}

// onGiftWrap unwraps an inbound envelope with the local secret. Envelopes
// for other recipients, and anything structurally or cryptographically
// wrong, unwraps to nil and is dropped without comment.
func (s *T) onGiftWrap(ev *event.T, _ string) {
	s.mx.Lock()
	id := s.id
	s.mx.Unlock()
	if id == nil {
		return
	}
	dm := nip17.Unwrap(id.SecretKey, ev)
	if dm == nil {
		return
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	conv := s.dms[dm.FromPubKey]
	for _, m := range conv {
		if m.ID == ev.ID {
			return
		}
	}
	conv = append(conv, &DirectMessage{
		ID:        ev.ID,
		From:      dm.FromPubKey,
		To:        id.PublicKey,
		Content:   dm.Content,
		CreatedAt: dm.CreatedAt,
		Nick:      s.displayName(dm.FromPubKey),
	})
	slices.SortStableFunc(conv, func(a, b *DirectMessage) int {
		return compareTimestamps(a.CreatedAt, b.CreatedAt)
	})
	s.dms[dm.FromPubKey] = conv
	s.ensureContact(dm.FromPubKey)
}

// onMetadata applies a profile update when it is newer than what is
// cached. Stale and unparseable metadata is ignored.
func (s *T) onMetadata(ev *event.T, _ string) {
	meta := event.ParseProfileMetadata(ev)
	if meta == nil {
		return
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	existing, ok := s.profiles[ev.PubKey]
	if ok && existing.LastSeen >= ev.CreatedAt {
		return
	}
	s.profiles[ev.PubKey] = &Profile{
		PubKey:      ev.PubKey,
		Name:        meta.Name,
		DisplayName: meta.DisplayName,
		About:       meta.About,
		Picture:     meta.Picture,
		NIP05:       meta.NIP05,
		LastSeen:    ev.CreatedAt,
	}
}

// addChannelUser and ensureContact require s.mx held.

func (s *T) addChannelUser(channelID eventid.T, pubKey string) {
	users, ok := s.channelUsers[channelID]
	if !ok {
		users = make(map[string]struct{})
		s.channelUsers[channelID] = users
	}
	users[pubKey] = struct{}{}
}

func (s *T) ensureContact(pubKey string) {
	if _, ok := s.contacts[pubKey]; ok {
		return
	}
	s.contacts[pubKey] = &Profile{
		PubKey: pubKey,
		Name:   s.displayName(pubKey),
	}
}

// displayName requires s.mx held.
func (s *T) displayName(pubKey string) string {
	if p, ok := s.profiles[pubKey]; ok && p.Name != "" {
		return p.Name
	}
	return identity.ShortenPubKey(pubKey)
}

func sortByCreatedAt(logg []*Message) {
	slices.SortStableFunc(logg, func(a, b *Message) int {
		return compareTimestamps(a.CreatedAt, b.CreatedAt)
	})
}

func compareTimestamps(a, b timestamp.T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Snapshot accessors. Each returns a copy; callers never see live
// collections.

// Channels returns every discovered channel, sorted by name.
func (s *T) Channels() []Channel {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, *ch)
	}
	slices.SortFunc(out, func(a, b Channel) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Channel returns one channel by id.
func (s *T) Channel(id eventid.T) (Channel, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if ch, ok := s.channels[id]; ok {
		return *ch, true
	}
	return Channel{}, false
}

// Joined reports whether the channel is currently joined.
func (s *T) Joined(id eventid.T) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	_, ok := s.joined[id]
	return ok
}

// JoinedChannels returns the joined channels, sorted by name.
func (s *T) JoinedChannels() []Channel {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]Channel, 0, len(s.joined))
	for id := range s.joined {
		if ch, ok := s.channels[id]; ok {
			out = append(out, *ch)
		}
	}
	slices.SortFunc(out, func(a, b Channel) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Messages returns the log for one channel in createdAt order.
func (s *T) Messages(channelID eventid.T) []Message {
	s.mx.Lock()
	defer s.mx.Unlock()
	logg := s.messages[channelID]
	out := make([]Message, 0, len(logg))
	for _, m := range logg {
		out = append(out, *m)
	}
	return out
}

// DirectMessages returns one conversation, keyed by the counterparty's
// pubkey, in createdAt order.
func (s *T) DirectMessages(pubKey string) []DirectMessage {
	s.mx.Lock()
	defer s.mx.Unlock()
	conv := s.dms[pubKey]
	out := make([]DirectMessage, 0, len(conv))
	for _, m := range conv {
		out = append(out, *m)
	}
	return out
}

// Contacts returns everyone a conversation exists with, sorted by name.
func (s *T) Contacts() []Profile {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]Profile, 0, len(s.contacts))
	for _, p := range s.contacts {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Profile) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Profile returns the cached metadata for a pubkey.
func (s *T) Profile(pubKey string) (Profile, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if p, ok := s.profiles[pubKey]; ok {
		return *p, true
	}
	return Profile{}, false
}

// ChannelUsers returns the pubkeys seen speaking in a channel, sorted.
func (s *T) ChannelUsers(channelID eventid.T) []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	users := s.channelUsers[channelID]
	out := make([]string, 0, len(users))
	for pk := range users {
		out = append(out, pk)
	}
	slices.Sort(out)
	return out
}

// StatusLog returns the status window contents.
func (s *T) StatusLog() []Message {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]Message, 0, len(s.statusLog))
	for _, m := range s.statusLog {
		out = append(out, *m)
	}
	return out
}
