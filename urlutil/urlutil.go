// Package urlutil normalizes the URLs and identifiers exchanged between nodes.
package urlutil

import (
	"net/url"
	"strings"
)

// Standardize removes trailing slashes. Every stored or compared URL goes through it.
func Standardize(u string) string {
	return strings.TrimRight(u, "/")
}

// ExtractID turns an absolute resource URL into the id used as a local primary key.
// Input without a scheme is returned unchanged.
func ExtractID(u string) string {
	if !strings.Contains(u, "://") {
		return u
	}
	u = Standardize(u)
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}

// StripAllParam drops every query parameter whose key contains "all".
func StripAllParam(u string) string {
	base, query, found := strings.Cut(u, "?")
	if !found {
		return u
	}

	kept := make([]string, 0)
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if strings.Contains(key, "all") {
			continue
		}
		kept = append(kept, pair)
	}

	if len(kept) == 0 {
		return base
	}
	return base + "?" + strings.Join(kept, "&")
}

// Join appends path elements to a base URL, one slash between each.
func Join(base string, elems ...string) string {
	out := Standardize(base)
	for _, e := range elems {
		out += "/" + strings.Trim(e, "/")
	}
	return out
}

// Escape encodes a URL so it fits in a single path segment.
func Escape(u string) string {
	return url.PathEscape(u)
}

// HasPrefix reports whether u lives under base after standardizing both.
func HasPrefix(u, base string) bool {
	base = Standardize(base)
	u = Standardize(u)
	return u == base || strings.HasPrefix(u, base+"/") || strings.HasPrefix(u, base+"?")
}
