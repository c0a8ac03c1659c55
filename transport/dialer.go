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

package transport

import (
	"context"
	"net"
	"strings"
	"sync"
)

// hostOverride is a minimal host:port -> host:port remap used to steer a
// request at a fixed address without touching system DNS.
type hostOverride struct {
	mu sync.RWMutex
	m  map[string]string
}

func newHostOverride() *hostOverride {
	return &hostOverride{m: make(map[string]string)}
}

// Add registers a mapping from "host:port" to a replacement "host:port".
// A "*.example.com:port" key matches any subdomain of example.com.
func (h *hostOverride) Add(from, to string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m[strings.ToLower(from)] = to
}

func (h *hostOverride) Del(from string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.m, strings.ToLower(from))
}

func (h *hostOverride) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.m)
}

func (h *hostOverride) resolve(address string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.m) == 0 {
		return address
	}

	key := strings.ToLower(address)
	if dst, ok := h.m[key]; ok {
		return dst
	}

	host, port, err := net.SplitHostPort(key)
	if err != nil {
		return address
	}

	for k, dst := range h.m {
		if !strings.HasPrefix(k, "*.") {
			continue
		}
		suffix, wantPort, werr := net.SplitHostPort(k)
		if werr != nil {
			continue
		}
		if wantPort != "*" && wantPort != port {
			continue
		}
		if strings.HasSuffix(host, strings.TrimPrefix(suffix, "*")) {
			return dst
		}
	}

	return address
}

// dialContext dials address after applying any host override, bounding
// connect time with policy's dialTimeout (DNSLookupGrace + MaxConnect).
func (h *hostOverride) dialContext(ctx context.Context, policy TimeoutPolicy, network, address string) (net.Conn, error) {
	d := &net.Dialer{Timeout: policy.dialTimeout()}
	return d.DialContext(ctx, network, h.resolve(address))
}
