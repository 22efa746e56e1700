// Package hex provides short aliases for encoding/hex so that the very
// frequent key and event id conversions stay compact at the call site.
package hex

import "encoding/hex"

// Enc encodes a byte slice to a hexadecimal string.
func Enc(b []byte) string { return hex.EncodeToString(b) }

// Dec decodes a hexadecimal string to bytes.
func Dec(s string) ([]byte, error) { return hex.DecodeString(s) }
