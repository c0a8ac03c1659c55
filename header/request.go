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

// Package header provides the request and received header containers used by
// the transport layer: an ordered, case-sensitive container for outbound
// requests and a case-insensitive multimap for inbound responses.
package header

import (
	"fmt"
	"strings"
	"sync"

	liberr "github.com/nabbar/httpcore/errors"
)

// MergeMode controls how RequestHeaders.Add behaves when the key already exists.
type MergeMode uint8

const (
	// NewHeader fails if the key already exists.
	NewHeader MergeMode = iota
	// ReplaceIfExists overwrites any existing value.
	ReplaceIfExists
	// KeepExisting leaves an existing value untouched.
	KeepExisting
)

// RequestHeaders is an ordered, case-sensitive, unique-key header container
// owned by the request that will be sent. It becomes immutable once Finalize
// is called.
type RequestHeaders struct {
	mu       sync.Mutex
	order    []string
	values   map[string]string
	finalize bool
}

// NewRequestHeaders returns an empty RequestHeaders container.
func NewRequestHeaders() *RequestHeaders {
	return &RequestHeaders{
		order:  make([]string, 0),
		values: make(map[string]string),
	}
}

// Add inserts key/value under the given merge mode. It returns whether the
// key already existed before this call.
func (h *RequestHeaders) Add(key, value string, mode MergeMode) (existed bool, err liberr.Error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.finalize {
		return false, ErrorFinalized.Error(nil)
	}

	_, existed = h.values[key]

	switch mode {
	case NewHeader:
		if existed {
			return true, ErrorDuplicateHeader.Error(nil)
		}
		h.order = append(h.order, key)
		h.values[key] = value
	case ReplaceIfExists:
		if !existed {
			h.order = append(h.order, key)
		}
		h.values[key] = value
	case KeepExisting:
		if !existed {
			h.order = append(h.order, key)
			h.values[key] = value
		}
	}

	return existed, nil
}

// Get returns the value stored for key and whether it was present.
func (h *RequestHeaders) Get(key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.values[key]
	return v, ok
}

// Finalize marks the container immutable; subsequent Add calls return ErrorFinalized.
func (h *RequestHeaders) Finalize() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.finalize = true
}

// Finalized reports whether the container has been finalized.
func (h *RequestHeaders) Finalized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.finalize
}

// Serialize renders the headers in wire form "Key: value\r\n", preserving
// insertion order.
func (h *RequestHeaders) Serialize() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder

	for _, k := range h.order {
		b.WriteString(fmt.Sprintf("%s: %s\r\n", k, h.values[k]))
	}

	return b.String()
}

// Len returns the number of distinct keys stored.
func (h *RequestHeaders) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.order)
}

// Walk iterates keys in insertion order, calling fct for each. Iteration
// stops early if fct returns false.
func (h *RequestHeaders) Walk(fct func(key, value string) bool) {
	h.mu.Lock()
	order := make([]string, len(h.order))
	copy(order, h.order)
	values := make(map[string]string, len(h.values))
	for k, v := range h.values {
		values[k] = v
	}
	h.mu.Unlock()

	for _, k := range order {
		if !fct(k, values[k]) {
			return
		}
	}
}
