// Package normalize canonicalizes relay URLs so that every spelling of the
// same endpoint maps to one pool entry.
package normalize

import (
	"net/url"
	"strings"
)

// URL lowercases and trims the input, converts http/https schemes to
// ws/wss, assumes wss:// when no scheme is given, and strips any trailing
// path slash. It returns "" for unparseable input.
func URL(u string) string {
	if u = strings.ToLower(strings.TrimSpace(u)); u == "" {
		return ""
	}
	if !(strings.HasPrefix(u, "http://") ||
		strings.HasPrefix(u, "https://") ||
		strings.HasPrefix(u, "ws://") ||
		strings.HasPrefix(u, "wss://")) {
		// bare hostnames get the common secure scheme.
		u = "wss://" + u
	}
	p, err := url.Parse(u)
	if err != nil {
		return ""
	}
	switch p.Scheme {
	case "https":
		p.Scheme = "wss"
	case "http":
		p.Scheme = "ws"
	}
	p.Path = strings.TrimRight(p.Path, "/")
	return p.String()
}
