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

// Package accountant enforces per-host, per-capability concurrency caps and
// fairness among services competing for the shared HTTP pipeline.
package accountant

import (
	"net/url"
	"strings"

	liberr "github.com/nabbar/httpcore/errors"
)

// Capability is a request's resource class, used to partition concurrency
// caps within a service.
type Capability string

const (
	CapabilityTexture   Capability = "texture"
	CapabilityMesh      Capability = "mesh"
	CapabilityInventory Capability = "inventory"
	CapabilityOther     Capability = "other"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// CanonicalService extracts the canonical service key (lowercased
// scheme://host:port, with the scheme's default port elided) from rawURL.
func CanonicalService(rawURL string) (string, liberr.Error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrorInvalidURL.Error(err)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()

	if port == "" || port == defaultPorts[scheme] {
		return scheme + "://" + host, nil
	}

	return scheme + "://" + host + ":" + port, nil
}
