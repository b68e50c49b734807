// Copyright 2022 Fastly, Inc.

package fetch

import (
	"sort"
	"strings"
)

// Header is an ordered multimap of HTTP header fields. Like the Headers
// object of the Fetch standard, keys are canonicalized to their lowercase
// form, and every value appended under a key is retained in the order it was
// added.
type Header map[string][]string

// NewHeader returns an initialized and empty set of headers.
func NewHeader() Header {
	return map[string][]string{}
}

// Add appends value to the values associated with key. It never replaces
// existing values, so repeated fields such as Set-Cookie survive as
// independent entries.
func (h Header) Add(key, value string) {
	key = CanonicalHeaderKey(key)
	h[key] = append(h[key], value)
}

// Del deletes the values associated with key.
func (h Header) Del(key string) {
	delete(h, CanonicalHeaderKey(key))
}

// Get gets the first value associated with the given key. If there are no
// values associated with the key, Get returns "".
func (h Header) Get(key string) string {
	if values := h[CanonicalHeaderKey(key)]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// Has reports whether at least one value is associated with key.
func (h Header) Has(key string) bool {
	return len(h[CanonicalHeaderKey(key)]) > 0
}

// Set sets the header entries associated with key to the single element
// value, replacing any existing values.
func (h Header) Set(key, value string) {
	h[CanonicalHeaderKey(key)] = []string{value}
}

// Keys returns all keys in the header collection in sorted order.
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Values returns all values associated with the given key, in the order they
// were added. The returned slice is not a copy.
func (h Header) Values(key string) []string {
	return h[CanonicalHeaderKey(key)]
}

// Len returns the total number of header entries, counting every value of
// a repeated key separately.
func (h Header) Len() int {
	n := 0
	for _, values := range h {
		n += len(values)
	}
	return n
}

// Clone returns a deep copy of the headers.
func (h Header) Clone() Header {
	clone := make(Header, len(h))
	for key, values := range h {
		clone[key] = append([]string(nil), values...)
	}
	return clone
}

// CanonicalHeaderKey returns the canonical format of the header key s, which
// is s converted to lowercase.
func CanonicalHeaderKey(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			return strings.ToLower(s)
		}
	}
	return s
}
