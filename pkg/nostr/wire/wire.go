// Package wire implements the hand-rolled JSON fragments used for the
// canonical event encoding. The event id preimage must be byte-exact, so the
// escaping is done here per RFC8259 rather than through encoding/json, which
// escapes HTML characters by default.
package wire

import "strconv"

// EscapeString appends s to dst as a JSON string per RFC8259.
func EscapeString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			dst = append(dst, '\\', '"')
		case c == '\\':
			dst = append(dst, '\\', '\\')
		case c >= 0x20:
			dst = append(dst, c)
		case c == 0x08:
			dst = append(dst, '\\', 'b')
		case c < 0x09:
			dst = append(dst, '\\', 'u', '0', '0', '0', '0'+c)
		case c == 0x09:
			dst = append(dst, '\\', 't')
		case c == 0x0a:
			dst = append(dst, '\\', 'n')
		case c == 0x0c:
			dst = append(dst, '\\', 'f')
		case c == 0x0d:
			dst = append(dst, '\\', 'r')
		case c < 0x10:
			dst = append(dst, '\\', 'u', '0', '0', '0', 0x57+c)
		case c < 0x1a:
			dst = append(dst, '\\', 'u', '0', '0', '1', 0x20+c)
		default:
			dst = append(dst, '\\', 'u', '0', '0', '1', 0x47+c)
		}
	}
	return append(dst, '"')
}

// AppendInt appends a decimal integer.
func AppendInt(dst []byte, n int64) []byte {
	return strconv.AppendInt(dst, n, 10)
}

// AppendStringArray appends a JSON array of strings.
func AppendStringArray(dst []byte, ss []string) []byte {
	dst = append(dst, '[')
	for i, s := range ss {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = EscapeString(dst, s)
	}
	return append(dst, ']')
}

// AppendStringArrays appends a JSON array of arrays of strings, the wire
// form of an event's tag list.
func AppendStringArrays(dst []byte, sss [][]string) []byte {
	dst = append(dst, '[')
	for i, ss := range sss {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = AppendStringArray(dst, ss)
	}
	return append(dst, ']')
}
