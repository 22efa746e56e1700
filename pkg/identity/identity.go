// Package identity manages the user's keypair and nickname: generation,
// import from nsec or hex, deterministic nickname derivation, and
// persistence to the profile file.
package identity

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/nircnet/nirc/pkg/nostr/keys"
	"github.com/nircnet/nirc/pkg/nostr/nip19"
	"github.com/nircnet/nirc/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// The nickname word lists. Derivation is a pure function of the public key
// so the same key always greets the network under the same name.
var (
	adjectives = []string{
		"Swift", "Bold", "Calm", "Dark", "Keen", "Wise", "Wild", "Cool",
		"Fast", "Sly", "Warm", "Deep", "Soft", "Loud", "Grim", "Pure",
	}
	nouns = []string{
		"Fox", "Owl", "Cat", "Wolf", "Bear", "Hawk", "Lynx", "Crow",
		"Deer", "Frog", "Moth", "Seal", "Wren", "Newt", "Crab", "Pike",
	}
)

// T is a complete local identity: the keypair in every form the client
// needs plus the nickname it speaks under.
type T struct {
	SecretKey string // hex
	PublicKey string // hex
	Npub      string
	Nsec      string
	Nick      string
}

// file is the on-disk shape. Only the secret key and nickname are stored;
// everything else is derived on load.
type file struct {
	SecretKeyHex string `json:"secret_key_hex"`
	Nick         string `json:"nick"`
}

// DeriveNick maps a hex public key to its default nickname, an
// adjective-noun pair and a three digit number drawn from the key's first
// four bytes.
func DeriveNick(pubHex string) string {
	if len(pubHex) < 8 {
		return "Anon" + pubHex
	}
	hash, err := strconv.ParseUint(pubHex[:8], 16, 64)
	if err != nil {
		return "Anon"
	}
	adj := adjectives[hash%uint64(len(adjectives))]
	noun := nouns[(hash>>4)%uint64(len(nouns))]
	num := hash%900 + 100
	return adj + noun + strconv.FormatUint(num, 10)
}

// ShortenPubKey renders a pubkey for display as its first eight and last
// four hex digits.
func ShortenPubKey(pubHex string) string {
	if len(pubHex) < 12 {
		return pubHex
	}
	return pubHex[:8] + "..." + pubHex[len(pubHex)-4:]
}

// fromSecretKey derives the full identity from a hex secret key. An empty
// nick selects the derived default.
func fromSecretKey(skHex, nick string) (id *T, err error) {
	var pkHex string
	if pkHex, err = keys.GetPublicKey(skHex); chk.E(err) {
		return
	}
	var npub, nsec string
	if npub, err = nip19.EncodePublicKey(pkHex); chk.E(err) {
		return
	}
	if nsec, err = nip19.EncodeSecretKey(skHex); chk.E(err) {
		return
	}
	if nick == "" {
		nick = DeriveNick(pkHex)
	}
	return &T{
		SecretKey: skHex,
		PublicKey: pkHex,
		Npub:      npub,
		Nsec:      nsec,
		Nick:      nick,
	}, nil
}

// New generates a fresh identity. An empty nick selects the derived
// default.
func New(nick string) (*T, error) {
	return fromSecretKey(keys.GeneratePrivateKey(), nick)
}

// Import builds an identity from an nsec or 64 digit hex secret key.
func Import(nsecOrHex, nick string) (id *T, err error) {
	skHex := strings.TrimSpace(nsecOrHex)
	if strings.HasPrefix(skHex, nip19.PrefixSec) {
		var prefix string
		if prefix, skHex, err = nip19.Decode(nsecOrHex); chk.E(err) {
			return
		}
		if prefix != nip19.PrefixSec {
			return nil, errors.New("not a secret key: " + prefix)
		}
	}
	if len(skHex) != 64 {
		return nil, errors.New("secret key must be 64 hex digits or nsec")
	}
	// round-trip through the parser to reject non-hex input early.
	if _, err = keys.SecKeyFromHex(skHex); err != nil {
		return nil, err
	}
	return fromSecretKey(skHex, nick)
}

// Rename changes the nickname. An empty name restores the derived default.
func (id *T) Rename(nick string) {
	if nick == "" {
		nick = DeriveNick(id.PublicKey)
	}
	id.Nick = nick
}

// Save writes the identity to filename, readable only by the owner.
func (id *T) Save(filename string) (err error) {
	if id == nil {
		err = errors.New("cannot save nil identity")
		log.E.Ln(err)
		return
	}
	var b []byte
	if b, err = json.MarshalIndent(file{
		SecretKeyHex: id.SecretKey,
		Nick:         id.Nick,
	}, "", "    "); chk.E(err) {
		return
	}
	if err = os.WriteFile(filename, b, 0600); chk.E(err) {
		return
	}
	return
}

// Load reads an identity back from filename. A missing file is reported
// with os.IsNotExist so callers can fall through to New.
func Load(filename string) (id *T, err error) {
	var b []byte
	if b, err = os.ReadFile(filename); err != nil {
		return
	}
	var f file
	if err = json.Unmarshal(b, &f); chk.E(err) {
		return
	}
	return fromSecretKey(f.SecretKeyHex, f.Nick)
}
