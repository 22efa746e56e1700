// Package nip44 implements the versioned encrypted payload format used
// between two keys: an ECDH conversation key feeds hkdf, which keys
// chacha20 and an hmac-sha256 authenticator over the padded plaintext.
package nip44

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// Version 2 is the only payload version this package reads or writes.
const Version = 2

const (
	// MinPlaintextSize is 1 byte, padded to 32.
	MinPlaintextSize = 0x0001
	// MaxPlaintextSize is 64kb - 1, padded to 64kb.
	MaxPlaintextSize = 0xffff
)

// Options tweaks Encrypt, used by tests to pin the salt.
type Options struct {
	Salt []byte
}

// GenerateConversationKey derives the symmetric key for the pair of keys.
// It is symmetric: conversationKey(a, B) == conversationKey(b, A).
func GenerateConversationKey(sec *btcec.PrivateKey,
	pub *btcec.PublicKey) []byte {

	shared := btcec.GenerateSharedSecret(sec, pub)
	return hkdf.Extract(sha256.New, shared, []byte("nip44-v2"))
}

// Encrypt seals plaintext under the conversation key, producing the base64
// version-prefixed payload.
func Encrypt(conversationKey []byte, plaintext string,
	opts *Options) (cipherString string, err error) {

	var salt []byte
	if opts != nil && opts.Salt != nil {
		salt = opts.Salt
	} else if salt, err = randomBytes(32); err != nil {
		return
	}
	if len(salt) != 32 {
		return "", errors.New("salt must be 32 bytes")
	}

	var enc, nonce, auth []byte
	if enc, nonce, auth, err = messageKeys(conversationKey, salt); err != nil {
		return
	}
	var padded []byte
	if padded, err = pad(plaintext); err != nil {
		return
	}
	var ciphertext []byte
	if ciphertext, err = chacha(enc, nonce, padded); err != nil {
		return
	}
	var mac []byte
	if mac, err = sha256Hmac(auth, ciphertext, salt); err != nil {
		return
	}

	var concat []byte
	concat = append(concat, byte(Version))
	concat = append(concat, salt...)
	concat = append(concat, ciphertext...)
	concat = append(concat, mac...)
	return base64.StdEncoding.EncodeToString(concat), nil
}

// Decrypt opens a payload produced by Encrypt with the same conversation
// key.
func Decrypt(conversationKey []byte, cipherString string) (plaintext string,
	err error) {

	cLen := len(cipherString)
	if cLen < 132 || cLen > 87472 {
		return "", fmt.Errorf("invalid payload length: %d", cLen)
	}
	if cipherString[0:1] == "#" {
		return "", errors.New("unknown version")
	}
	var dcd []byte
	if dcd, err = base64.StdEncoding.DecodeString(cipherString); err != nil {
		return "", errors.New("invalid base64")
	}
	if int(dcd[0]) != Version {
		return "", fmt.Errorf("unknown version %d", dcd[0])
	}
	dLen := len(dcd)
	if dLen < 99 || dLen > 65603 {
		return "", fmt.Errorf("invalid data length: %d", dLen)
	}

	salt, ciphertext, mac := dcd[1:33], dcd[33:dLen-32], dcd[dLen-32:]
	var enc, nonce, auth []byte
	if enc, nonce, auth, err = messageKeys(conversationKey, salt); err != nil {
		return
	}
	var expectedMac []byte
	if expectedMac, err = sha256Hmac(auth, ciphertext, salt); err != nil {
		return
	}
	if !hmac.Equal(mac, expectedMac) {
		return "", errors.New("invalid hmac")
	}

	var padded []byte
	if padded, err = chacha(enc, nonce, ciphertext); err != nil {
		return
	}
	unpaddedLen := binary.BigEndian.Uint16(padded[0:2])
	if unpaddedLen < MinPlaintextSize ||
		len(padded) != 2+calcPadding(int(unpaddedLen)) {
		return "", errors.New("invalid padding")
	}
	unpadded := padded[2 : int(unpaddedLen)+2]
	if len(unpadded) == 0 || len(unpadded) != int(unpaddedLen) {
		return "", errors.New("invalid padding")
	}
	return string(unpadded), nil
}

func chacha(key, nonce, message []byte) (dst []byte, err error) {
	var cipher *chacha20.Cipher
	if cipher, err = chacha20.NewUnauthenticatedCipher(key, nonce); err != nil {
		return
	}
	dst = make([]byte, len(message))
	cipher.XORKeyStream(dst, message)
	return
}

func randomBytes(n int) (buf []byte, err error) {
	buf = make([]byte, n)
	if _, err = rand.Read(buf); err != nil {
		return nil, err
	}
	return
}

func sha256Hmac(key, ciphertext, aad []byte) ([]byte, error) {
	if len(aad) != 32 {
		return nil, errors.New("aad data must be 32 bytes")
	}
	h := hmac.New(sha256.New, key)
	h.Write(aad)
	h.Write(ciphertext)
	return h.Sum(nil), nil
}

func messageKeys(conversationKey, salt []byte) (enc, nonce, auth []byte,
	err error) {

	if len(conversationKey) != 32 {
		return nil, nil, nil, errors.New("conversation key must be 32 bytes")
	}
	if len(salt) != 32 {
		return nil, nil, nil, errors.New("salt must be 32 bytes")
	}
	r := hkdf.Expand(sha256.New, conversationKey, salt)
	enc = make([]byte, 32)
	nonce = make([]byte, 12)
	auth = make([]byte, 32)
	for _, b := range [][]byte{enc, nonce, auth} {
		if _, err = io.ReadFull(r, b); err != nil {
			return nil, nil, nil, err
		}
	}
	return
}

func pad(s string) ([]byte, error) {
	sb := []byte(s)
	if len(sb) < MinPlaintextSize || len(sb) > MaxPlaintextSize {
		return nil, errors.New("plaintext should be between 1b and 64kB")
	}
	padding := calcPadding(len(sb))
	result := make([]byte, 2, 2+padding)
	binary.BigEndian.PutUint16(result, uint16(len(sb)))
	result = append(result, sb...)
	return append(result, make([]byte, padding-len(sb))...), nil
}

// calcPadding rounds the length up to a chunk boundary that leaks only the
// order of magnitude of the message size.
func calcPadding(sLen int) int {
	if sLen <= 32 {
		return 32
	}
	nextPower := 1 << int(math.Floor(math.Log2(float64(sLen-1)))+1)
	chunk := int(math.Max(32, float64(nextPower/8)))
	return chunk * int(math.Floor(float64((sLen-1)/chunk))+1)
}
