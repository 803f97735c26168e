// Package httpwire converts between raw HTTP/1.1 bytes and the
// structured Request and Response values the router works with.
//
// Parsing is deliberately strict and bounded: every limit a hostile
// client could exploit (head size, header count, path length, cookie
// and form sizes) is checked before any allocation proportional to it.
package httpwire

import (
	"net/textproto"
	"sort"
	"strings"
)

// Fields is a case-insensitive string mapping used for headers,
// cookies, and decoded form values.  Keys are lowercased on insert and
// lookup; the last write for a duplicate key wins.
type Fields map[string]string

// Set stores value under the normalized key.
func (f Fields) Set(key, value string) { f[strings.ToLower(key)] = value }

// Get returns the value for key, or "" when absent.
func (f Fields) Get(key string) string { return f[strings.ToLower(key)] }

// Lookup returns the value for key and whether it was present.
func (f Fields) Lookup(key string) (string, bool) {
	v, ok := f[strings.ToLower(key)]
	return v, ok
}

// Del removes key.
func (f Fields) Del(key string) { delete(f, strings.ToLower(key)) }

// Keys returns the stored (lowercase) keys in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// canonicalKey renders a stored key the way it goes on the wire
// ("content-type" → "Content-Type").
func canonicalKey(k string) string {
	return textproto.CanonicalMIMEHeaderKey(k)
}
