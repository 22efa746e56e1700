// Package nip19 implements the bech32 presentation forms of keys: npub for
// public keys and nsec for secret keys. These are display and input
// encodings only; everything internal stays hex.
package nip19

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/nircnet/nirc/pkg/hex"
)

const (
	PrefixPub = "npub"
	PrefixSec = "nsec"
)

// Decode turns a bech32 entity into its prefix and hex encoded payload.
func Decode(bech32String string) (prefix, value string, err error) {
	var bits5 []byte
	if prefix, bits5, err = bech32.DecodeNoLimit(bech32String); err != nil {
		return "", "", err
	}

	var data []byte
	if data, err = bech32.ConvertBits(bits5, 5, 8, false); err != nil {
		return prefix, "", fmt.Errorf(
			"failed translating data into 8 bits: %w", err)
	}

	switch prefix {
	case PrefixPub, PrefixSec:
		if len(data) < 32 {
			return prefix, "", fmt.Errorf(
				"data is less than 32 bytes (%d)", len(data))
		}
		return prefix, hex.Enc(data[0:32]), nil
	default:
		return prefix, "", fmt.Errorf("unknown prefix '%s'", prefix)
	}
}

func encode(prefix, hexKey string) (s string, err error) {
	var b []byte
	if b, err = hex.Dec(hexKey); err != nil {
		return "", fmt.Errorf("failed to decode key hex: %w", err)
	}
	if len(b) != 32 {
		return "", fmt.Errorf("key must be 32 bytes, got %d", len(b))
	}
	var bits5 []byte
	if bits5, err = bech32.ConvertBits(b, 8, 5, true); err != nil {
		return "", err
	}
	return bech32.Encode(prefix, bits5)
}

// EncodePublicKey returns the npub form of a hex public key.
func EncodePublicKey(pkHex string) (string, error) {
	return encode(PrefixPub, pkHex)
}

// EncodeSecretKey returns the nsec form of a hex secret key.
func EncodeSecretKey(skHex string) (string, error) {
	return encode(PrefixSec, skHex)
}
