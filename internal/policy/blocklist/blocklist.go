// Package blocklist rejects fetches to operator-denied hosts before any
// request leaves the process.
package blocklist

import (
	"net/url"
	"strings"
)

// Blocklist holds exact hosts and suffix wildcards from configuration.
// Patterns look like "example.org", "*.internal" or ".internal"; the latter
// two block the bare suffix and every subdomain of it.
type Blocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

// New compiles the given patterns. A nil Blocklist is returned when no
// usable pattern remains, and a nil Blocklist blocks nothing.
func New(patterns []string) *Blocklist {
	b := &Blocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *Blocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

// Blocked reports whether host matches any configured pattern.
func (b *Blocklist) Blocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// BlockedURL reports whether the URL's host is blocked. Unparseable URLs
// are not blocked here; the fetcher will reject them with a better error.
func (b *Blocklist) BlockedURL(rawURL string) bool {
	if b == nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return b.Blocked(u.Hostname())
}
