// Package event implements the primary datatype of nostr, the signed,
// content-addressed event, with its canonical encoding, signing and
// verification.
package event

import (
	"encoding/json"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"
	"github.com/nircnet/nirc/pkg/hex"
	"github.com/nircnet/nirc/pkg/nostr/eventid"
	"github.com/nircnet/nirc/pkg/nostr/kind"
	"github.com/nircnet/nirc/pkg/nostr/tags"
	"github.com/nircnet/nirc/pkg/nostr/timestamp"
	"github.com/nircnet/nirc/pkg/nostr/wire"
	"github.com/nircnet/nirc/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// T is the primary datatype of nostr. This is the form of the structure that
// defines its JSON string based format.
type T struct {

	// ID is the SHA256 hash of the canonical encoding of the event.
	ID eventid.T `json:"id"`

	// PubKey is the public key of the event creator in hexadecimal format.
	PubKey string `json:"pubkey"`

	// CreatedAt is the UNIX timestamp of the event according to the event
	// creator (never trust a timestamp!)
	CreatedAt timestamp.T `json:"created_at"`

	// Kind is the nostr protocol code for the type of event. See kind.T.
	Kind kind.T `json:"kind"`

	// Tags are a list of tags, which are a list of strings usually
	// structured as a 3 layer scheme indicating specific features of an
	// event.
	Tags tags.T `json:"tags"`

	// Content is an arbitrary string that can contain anything, but usually
	// conforming to a specification relating to the Kind and the Tags.
	Content string `json:"content"`

	// Sig is the signature on the ID hash that validates as coming from the
	// PubKey.
	Sig string `json:"sig"`
}

// Ascending is a slice of events that sorts in ascending chronological order.
type Ascending []*T

func (ev Ascending) Len() int           { return len(ev) }
func (ev Ascending) Less(i, j int) bool { return ev[i].CreatedAt < ev[j].CreatedAt }
func (ev Ascending) Swap(i, j int)      { ev[i], ev[j] = ev[j], ev[i] }

func tagStrings(t tags.T) [][]string {
	out := make([][]string, len(t))
	for i := range t {
		out[i] = t[i]
	}
	return out
}

// ToCanonical appends the canonical form of the event to dst, the exact byte
// string that is hashed to produce the event ID:
//
//	[0,"pubkey",created_at,kind,tags,"content"]
func (ev *T) ToCanonical(dst []byte) []byte {
	dst = append(dst, "[0,"...)
	dst = wire.EscapeString(dst, ev.PubKey)
	dst = append(dst, ',')
	dst = wire.AppendInt(dst, ev.CreatedAt.I64())
	dst = append(dst, ',')
	dst = wire.AppendInt(dst, int64(ev.Kind))
	dst = append(dst, ',')
	dst = wire.AppendStringArrays(dst, tagStrings(ev.Tags))
	dst = append(dst, ',')
	dst = wire.EscapeString(dst, ev.Content)
	return append(dst, ']')
}

// Serialize renders the event in its wire object form.
func (ev *T) Serialize() []byte {
	dst := []byte(`{"id":`)
	dst = wire.EscapeString(dst, ev.ID.String())
	dst = append(dst, `,"pubkey":`...)
	dst = wire.EscapeString(dst, ev.PubKey)
	dst = append(dst, `,"created_at":`...)
	dst = wire.AppendInt(dst, ev.CreatedAt.I64())
	dst = append(dst, `,"kind":`...)
	dst = wire.AppendInt(dst, int64(ev.Kind))
	dst = append(dst, `,"tags":`...)
	dst = wire.AppendStringArrays(dst, tagStrings(ev.Tags))
	dst = append(dst, `,"content":`...)
	dst = wire.EscapeString(dst, ev.Content)
	dst = append(dst, `,"sig":`...)
	dst = wire.EscapeString(dst, ev.Sig)
	return append(dst, '}')
}

func (ev *T) MarshalJSON() ([]byte, error) { return ev.Serialize(), nil }

// UnmarshalJSON does not need byte-exact encoding so it can lean on the
// standard library.
func (ev *T) UnmarshalJSON(b []byte) error {
	type raw T
	return json.Unmarshal(b, (*raw)(ev))
}

func (ev *T) String() string { return string(ev.Serialize()) }

// GetIDBytes returns the raw SHA256 hash of the canonical form of the event.
func (ev *T) GetIDBytes() []byte {
	h := sha256.Sum256(ev.ToCanonical(nil))
	return h[:]
}

// GetID serializes and returns the event ID as a hexadecimal string.
func (ev *T) GetID() eventid.T {
	return eventid.T(hex.Enc(ev.GetIDBytes()))
}

// CheckSignature recomputes the event ID from the canonical form and checks
// that the signature verifies against it and the event pubkey. A malformed
// pubkey or signature returns an error; a cleanly failing verification
// returns valid=false with no error.
func (ev *T) CheckSignature() (valid bool, err error) {

	// decode pubkey hex to bytes.
	var pkBytes []byte
	if pkBytes, err = hex.Dec(ev.PubKey); chk.D(err) {
		err = log.D.Err("event pubkey '%s' is invalid hex: %v", ev.PubKey, err)
		return
	}

	// parse pubkey bytes.
	var pk *btcec.PublicKey
	if pk, err = schnorr.ParsePubKey(pkBytes); chk.D(err) {
		err = log.D.Err("event has invalid pubkey '%s': %v", ev.PubKey, err)
		return
	}

	// decode signature hex to bytes.
	var sigBytes []byte
	if sigBytes, err = hex.Dec(ev.Sig); chk.D(err) {
		err = log.D.Err("signature '%s' is invalid hex: %v", ev.Sig, err)
		return
	}

	// parse signature bytes.
	var sig *schnorr.Signature
	if sig, err = schnorr.ParseSignature(sigBytes); chk.D(err) {
		err = log.D.Err("failed to parse signature: %v", err)
		return
	}

	// the ID in the event is advisory; the hash of the canonical form is
	// what was signed.
	valid = sig.Verify(ev.GetIDBytes(), pk)
	return
}

// Sign signs an event with a given secret key encoded in hexadecimal,
// filling in ID, PubKey and Sig.
func (ev *T) Sign(skStr string) (err error) {
	if len(skStr) != 64 {
		return log.D.Err("invalid secret key length, 64 required, got %d",
			len(skStr))
	}

	var skBytes []byte
	if skBytes, err = hex.Dec(skStr); chk.D(err) {
		return log.D.Err("sign called with invalid secret key: %v", err)
	}

	sec, _ := btcec.PrivKeyFromBytes(skBytes)
	return ev.SignWithSecKey(sec)
}

// SignWithSecKey signs an event with a given *btcec.PrivateKey.
func (ev *T) SignWithSecKey(sec *btcec.PrivateKey) (err error) {
	ev.PubKey = hex.Enc(schnorr.SerializePubKey(sec.PubKey()))

	id := ev.GetIDBytes()
	var sig *schnorr.Signature
	if sig, err = schnorr.Sign(sec, id); chk.D(err) {
		return
	}

	ev.ID = eventid.T(hex.Enc(id))
	ev.Sig = hex.Enc(sig.Serialize())
	return nil
}
