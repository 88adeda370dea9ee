package helpers

import (
	"net/url"
	"strings"
)

var schemePrefixes = []string{"https://", "http://"}

// NormalizeURL reduces a result URL to the key used for duplicate detection:
// lowercased, trimmed, without http(s) scheme, leading "www." or trailing
// slashes. It works on the raw string and never fails; input that does not
// look like a URL is returned with only those rewrites applied.
//
// The rewrites are repeated until the value is stable so the function is
// idempotent.
func NormalizeURL(raw string) string {
	current := raw
	for {
		next := normalizeOnce(current)
		if next == current {
			return next
		}
		current = next
	}
}

func normalizeOnce(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range schemePrefixes {
		if strings.HasPrefix(s, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimRight(s, "/")
}

// ExtractDomain returns the lowercased host of raw without default ports or a
// leading "www.", or "" when raw has no parseable host.
func ExtractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return strings.TrimPrefix(host, "www.")
}
