package message

import (
	"net/textproto"

	"golang.org/x/net/http/httpguts"
)

// Headers is a case-insensitive, multi-value header map, canonicalized the
// same way net/textproto does (matching the teacher's header parsing).
// Response headers commonly repeat a name (Www-Authenticate, Set-Cookie);
// Get returns the first value and Values returns all of them.
type Headers struct {
	values map[string][]string
}

// NewHeaders returns an empty header map.
func NewHeaders() *Headers {
	return &Headers{values: make(map[string][]string)}
}

func canon(key string) string {
	return textproto.CanonicalMIMEHeaderKey(key)
}

// Set replaces all values for key.
func (h *Headers) Set(key, value string) {
	h.values[canon(key)] = []string{value}
}

// SetDefault sets key to value only if it is not already present.
func (h *Headers) SetDefault(key, value string) {
	k := canon(key)
	if _, ok := h.values[k]; !ok {
		h.values[k] = []string{value}
	}
}

// Add appends value to the list for key, preserving any existing values.
// A key or value that httpguts rejects as an invalid header field is
// dropped without error.
func (h *Headers) Add(key, value string) {
	if !httpguts.ValidHeaderFieldName(key) {
		return
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return
	}
	k := canon(key)
	h.values[k] = append(h.values[k], value)
}

// Get returns the first value for key, or "".
func (h *Headers) Get(key string) string {
	v := h.values[canon(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Values returns every value for key, in insertion order.
func (h *Headers) Values(key string) []string {
	return h.values[canon(key)]
}

// Has reports whether key has at least one value.
func (h *Headers) Has(key string) bool {
	return len(h.values[canon(key)]) > 0
}

// Del removes all values for key.
func (h *Headers) Del(key string) {
	delete(h.values, canon(key))
}

// Keys returns the canonical header names present, unordered.
func (h *Headers) Keys() []string {
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a deep copy.
func (h *Headers) Clone() *Headers {
	c := NewHeaders()
	for k, vs := range h.values {
		cp := make([]string, len(vs))
		copy(cp, vs)
		c.values[k] = cp
	}
	return c
}

// Merge overlays other on top of h: values present in other replace h's for
// the same key ("caller-supplied headers merge over defaults", spec §4.7).
func (h *Headers) Merge(other *Headers) {
	if other == nil {
		return
	}
	for k, vs := range other.values {
		cp := make([]string, len(vs))
		copy(cp, vs)
		h.values[k] = cp
	}
}
