// Package kind is the event kind code type and the codes this client speaks.
package kind

// T is the nostr protocol code for the type of event.
type T int

const (
	// ProfileMetadata is a JSON object in the content with a user's profile
	// fields (NIP-01).
	ProfileMetadata T = 0

	// TextNote is a plain text note (NIP-01).
	TextNote T = 1

	// Seal is the signed, encrypted carrier of a direct message rumor
	// (NIP-59).
	Seal T = 13

	// PrivateDirectMessage is the unsigned rumor inside a seal (NIP-17).
	PrivateDirectMessage T = 14

	// ChannelCreation roots a public chat channel; the event id is the
	// channel id (NIP-28).
	ChannelCreation T = 40

	// ChannelMetadata updates a channel's name/about/picture (NIP-28).
	ChannelMetadata T = 41

	// ChannelMessage is a message posted to a channel, e-tagged to the
	// creation event (NIP-28).
	ChannelMessage T = 42

	// ChannelHideMessage and ChannelMuteUser are client-side moderation
	// events (NIP-28).
	ChannelHideMessage T = 43
	ChannelMuteUser    T = 44

	// GiftWrap is the outer envelope of a private direct message, signed by
	// a single-use key (NIP-59).
	GiftWrap T = 1059

	// RelayList is a user's preferred relays (NIP-65).
	RelayList T = 10002
)
