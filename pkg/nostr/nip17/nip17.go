// Package nip17 implements private direct messages: an unsigned rumor
// sealed to the recipient with the sender's key, then gift wrapped under a
// single-use ephemeral key so relays and observers can link the outer event
// to neither the sender nor the conversation.
package nip17

import (
	"encoding/json"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/nircnet/nirc/pkg/nostr/event"
	"github.com/nircnet/nirc/pkg/nostr/eventid"
	"github.com/nircnet/nirc/pkg/nostr/keys"
	"github.com/nircnet/nirc/pkg/nostr/kind"
	"github.com/nircnet/nirc/pkg/nostr/nip44"
	"github.com/nircnet/nirc/pkg/nostr/tag"
	"github.com/nircnet/nirc/pkg/nostr/tags"
	"github.com/nircnet/nirc/pkg/nostr/timestamp"
	"github.com/nircnet/nirc/pkg/slog"
	"lukechampine.com/frand"
)

var log, _ = slog.New(os.Stderr)

// timestamps on seals and wraps are backdated by up to this much so that
// correlating them does not reveal when the rumor was actually written.
const maxTimestampJitter = 2 * 24 * 60 * 60

// DirectMessage is the plaintext recovered from a gift wrap.
type DirectMessage struct {
	FromPubKey string
	Content    string
	CreatedAt  timestamp.T
}

// rumor is the unsigned inner message. It is an event shape without a sig
// field; it must never be signed, or a leaked seal key would produce a
// provable transcript.
type rumor struct {
	ID        eventid.T   `json:"id"`
	PubKey    string      `json:"pubkey"`
	CreatedAt timestamp.T `json:"created_at"`
	Kind      kind.T      `json:"kind"`
	Tags      tags.T      `json:"tags"`
	Content   string      `json:"content"`
}

func (r *rumor) computeID() eventid.T {
	ev := &event.T{
		PubKey:    r.PubKey,
		CreatedAt: r.CreatedAt,
		Kind:      r.Kind,
		Tags:      r.Tags,
		Content:   r.Content,
	}
	return ev.GetID()
}

func backdated() timestamp.T {
	return timestamp.Now() - timestamp.T(frand.Intn(maxTimestampJitter))
}

// Wrap produces the gift wrap event for a plaintext addressed to
// recipientPub. The outer event is signed by a fresh single-use key; the
// sender's identity appears only inside the two encryption layers.
func Wrap(senderSec, recipientPub, plaintext string) (gift *event.T,
	err error) {

	var senderKey *btcec.PrivateKey
	if senderKey, err = keys.SecKeyFromHex(senderSec); err != nil {
		return
	}
	var recipientKey *btcec.PublicKey
	if recipientKey, err = keys.PubKeyFromHex(recipientPub); err != nil {
		return
	}
	var senderPub string
	if senderPub, err = keys.GetPublicKey(senderSec); err != nil {
		return
	}

	// rumor: the real message, never signed.
	r := &rumor{
		PubKey:    senderPub,
		CreatedAt: timestamp.Now(),
		Kind:      kind.PrivateDirectMessage,
		Tags:      tags.T{tag.T{"p", recipientPub}},
		Content:   plaintext,
	}
	r.ID = r.computeID()
	rumorJSON, _ := json.Marshal(r)

	// seal: rumor encrypted sender->recipient, signed by the sender.
	sealKey := nip44.GenerateConversationKey(senderKey, recipientKey)
	var sealed string
	if sealed, err = nip44.Encrypt(sealKey, string(rumorJSON), nil); err != nil {
		return
	}
	seal := &event.T{
		CreatedAt: backdated(),
		Kind:      kind.Seal,
		Tags:      tags.T{},
		Content:   sealed,
	}
	if err = seal.SignWithSecKey(senderKey); err != nil {
		return
	}

	// wrap: seal encrypted ephemeral->recipient, signed by the ephemeral
	// key, p-tagged so the recipient can subscribe for it.
	ephemeralSec := keys.GeneratePrivateKey()
	var ephemeralKey *btcec.PrivateKey
	if ephemeralKey, err = keys.SecKeyFromHex(ephemeralSec); err != nil {
		return
	}
	wrapKey := nip44.GenerateConversationKey(ephemeralKey, recipientKey)
	var wrapped string
	if wrapped, err = nip44.Encrypt(wrapKey, seal.String(), nil); err != nil {
		return
	}
	gift = &event.T{
		CreatedAt: backdated(),
		Kind:      kind.GiftWrap,
		Tags:      tags.T{tag.T{"p", recipientPub}},
		Content:   wrapped,
	}
	if err = gift.SignWithSecKey(ephemeralKey); err != nil {
		return nil, err
	}
	return
}

// Unwrap reverses Wrap with the recipient's secret key. Any failure -
// foreign envelope, wrong key, tampered layer, sender mismatch - returns
// nil: malformed and misaddressed wraps are ordinary network noise, not
// errors.
func Unwrap(recipientSec string, gift *event.T) (dm *DirectMessage) {
	if gift == nil || gift.Kind != kind.GiftWrap {
		return nil
	}
	recipientKey, err := keys.SecKeyFromHex(recipientSec)
	if err != nil {
		return nil
	}
	wrapperPub, err := keys.PubKeyFromHex(gift.PubKey)
	if err != nil {
		log.T.F("gift wrap %s has undecodable pubkey", gift.ID)
		return nil
	}

	// outer layer: recipient <- ephemeral wrapper.
	wrapKey := nip44.GenerateConversationKey(recipientKey, wrapperPub)
	sealJSON, err := nip44.Decrypt(wrapKey, gift.Content)
	if err != nil {
		log.T.F("gift wrap %s does not open for us: %v", gift.ID, err)
		return nil
	}
	seal := &event.T{}
	if err = seal.UnmarshalJSON([]byte(sealJSON)); err != nil {
		return nil
	}
	if seal.Kind != kind.Seal {
		return nil
	}
	if valid, _ := seal.CheckSignature(); !valid {
		log.T.F("gift wrap %s carries a seal with a bad signature", gift.ID)
		return nil
	}

	// inner layer: recipient <- sender.
	senderPub, err := keys.PubKeyFromHex(seal.PubKey)
	if err != nil {
		return nil
	}
	sealKey := nip44.GenerateConversationKey(recipientKey, senderPub)
	rumorJSON, err := nip44.Decrypt(sealKey, seal.Content)
	if err != nil {
		return nil
	}
	r := &rumor{}
	if err = json.Unmarshal([]byte(rumorJSON), r); err != nil {
		return nil
	}

	// the seal signer must be the rumor author, or the message is forged.
	if r.PubKey != seal.PubKey {
		log.T.F("gift wrap %s rumor author does not match seal signer",
			gift.ID)
		return nil
	}

	return &DirectMessage{
		FromPubKey: r.PubKey,
		Content:    r.Content,
		CreatedAt:  r.CreatedAt,
	}
}
