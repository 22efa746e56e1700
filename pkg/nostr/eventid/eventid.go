// Package eventid is the event id type, the hex encoded SHA256 hash of the
// canonical form of an event.
package eventid

import (
	"github.com/nircnet/nirc/pkg/hex"
)

// T is the hex encoding of the SHA256 hash of the canonical event form.
type T string

func (ei T) String() string { return string(ei) }

// Bytes decodes the hash back to its raw 32 bytes.
func (ei T) Bytes() (b []byte, err error) { return hex.Dec(string(ei)) }

// Valid reports whether the id is 64 lowercase hex characters.
func (ei T) Valid() bool {
	if len(ei) != 64 {
		return false
	}
	for i := 0; i < len(ei); i++ {
		c := ei[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
