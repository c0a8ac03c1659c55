/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package header

import "sync"

// ReceivedHeaders is a multimap from header name to one or more values,
// populated by the transport while parsing a response. Key comparison masks
// bit 5 of each byte, which makes it case-insensitive for ASCII letters but
// also equates "@[\]^" with "`{|}~"; harmless for real HTTP header names,
// and kept as-is.
type ReceivedHeaders struct {
	mu   sync.RWMutex
	keys []string
	vals map[string][]string // keyed by the first-seen spelling
}

// NewReceivedHeaders returns an empty ReceivedHeaders container.
func NewReceivedHeaders() *ReceivedHeaders {
	return &ReceivedHeaders{
		keys: make([]string, 0),
		vals: make(map[string][]string),
	}
}

// charEqual compares two bytes with bit 5 masked.
func charEqual(a, b byte) bool {
	return a|0x20 == b|0x20
}

// headerEqual compares two header names using the masked comparator.
func headerEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if !charEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// canonicalKey returns the first-seen spelling matching name, or name itself
// if this is the first occurrence.
func (h *ReceivedHeaders) canonicalKey(name string) string {
	for _, k := range h.keys {
		if headerEqual(k, name) {
			return k
		}
	}
	return name
}

// Add appends value under name, matching any previously-seen key that is
// header-equal to name.
func (h *ReceivedHeaders) Add(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ck := h.canonicalKey(name)
	if _, ok := h.vals[ck]; !ok {
		h.keys = append(h.keys, ck)
	}
	h.vals[ck] = append(h.vals[ck], value)
}

// HasHeader reports whether name is present under masked comparison.
func (h *ReceivedHeaders) HasHeader(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, k := range h.keys {
		if headerEqual(k, name) {
			return true
		}
	}
	return false
}

// GetFirstValue returns the first value stored for name, or "" if absent.
func (h *ReceivedHeaders) GetFirstValue(name string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, k := range h.keys {
		if headerEqual(k, name) {
			if v := h.vals[k]; len(v) > 0 {
				return v[0]
			}
			return ""
		}
	}
	return ""
}

// GetValues returns all values stored for name, in insertion order.
func (h *ReceivedHeaders) GetValues(name string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, k := range h.keys {
		if headerEqual(k, name) {
			out := make([]string, len(h.vals[k]))
			copy(out, h.vals[k])
			return out
		}
	}
	return nil
}

// Keys returns the distinct canonical keys observed, in first-seen order.
func (h *ReceivedHeaders) Keys() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// HasAmbiguousSymbol reports whether name contains one of the bit-5
// equivalence-class symbols "@[\]^`{|}~", which callers should flag rather
// than silently rely on.
func HasAmbiguousSymbol(name string) bool {
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '@', '[', '\\', ']', '^', '`', '{', '|', '}', '~':
			return true
		}
	}
	return false
}
