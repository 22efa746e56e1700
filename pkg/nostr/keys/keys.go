// Package keys generates and derives the secp256k1 keys that identify every
// event author on the network. Keys move around this codebase as 64
// character hex strings, the same form they take on the wire.
package keys

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nircnet/nirc/pkg/hex"
)

// GeneratePrivateKey returns a fresh secret key as 64 hex characters, or an
// empty string if the system entropy source fails.
func GeneratePrivateKey() string {
	params := btcec.S256().Params()
	one := new(big.Int).SetInt64(1)

	// read extra bytes and reduce mod N-1 to avoid modulo bias.
	b := make([]byte, params.BitSize/8+8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return ""
	}

	k := new(big.Int).SetBytes(b)
	n := new(big.Int).Sub(params.N, one)
	k.Mod(k, n)
	k.Add(k, one)

	return fmt.Sprintf("%064x", k.Bytes())
}

// GetPublicKey derives the x-only public key of a secret key, both hex
// encoded.
func GetPublicKey(sk string) (string, error) {
	b, err := hex.Dec(sk)
	if err != nil {
		return "", err
	}
	if len(b) != 32 {
		return "", fmt.Errorf("secret key must be 32 bytes, got %d", len(b))
	}

	_, pk := btcec.PrivKeyFromBytes(b)
	return hex.Enc(schnorr.SerializePubKey(pk)), nil
}

// SecKeyFromHex parses a hex secret key.
func SecKeyFromHex(sk string) (*btcec.PrivateKey, error) {
	b, err := hex.Dec(sk)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(b))
	}
	sec, _ := btcec.PrivKeyFromBytes(b)
	return sec, nil
}

// PubKeyFromHex parses a hex encoded x-only public key.
func PubKeyFromHex(pk string) (*btcec.PublicKey, error) {
	b, err := hex.Dec(pk)
	if err != nil {
		return nil, err
	}
	return schnorr.ParsePubKey(b)
}

// IsValidPublicKeyHex reports whether pk looks like a lower-case hex encoded
// 32 byte value.
func IsValidPublicKeyHex(pk string) bool {
	if strings.ToLower(pk) != pk {
		return false
	}
	dec, _ := hex.Dec(pk)
	return len(dec) == 32
}
