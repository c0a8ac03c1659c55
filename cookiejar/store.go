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

// Package cookiejar implements the process-wide cookie store: a set of
// cookies keyed by (domain, path, name), a changed-cookies delta stream for
// persistence, and a full-snapshot path for outgoing requests so that
// concurrent senders never race over a single consumed delta.
package cookiejar

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	liberr "github.com/nabbar/httpcore/errors"
)

// Cookie is one stored cookie.
type Cookie struct {
	Domain     string
	Path       string
	Name       string
	Value      string
	Expiry     time.Time // zero value means a session cookie
	Secure     bool
	HostOnly   bool
	LastAccess time.Time
}

func (c Cookie) expired(now time.Time) bool {
	return !c.Expiry.IsZero() && now.After(c.Expiry)
}

type cookieKey struct {
	domain string
	path   string
	name   string
}

// Persister is the external collaborator responsible for the on-disk cookie
// file format; out of scope here beyond this interface.
type Persister interface {
	Load() ([]Cookie, error)
	Save([]Cookie) error
}

// Store is the process-wide cookie store.
type Store struct {
	mu        sync.Mutex
	cookies   map[cookieKey]*Cookie
	changed   map[cookieKey]bool
	persister Persister
}

// New returns an empty Store. Pass a Persister to enable
// AddPersistentCookies/WritePersistentCookies; nil disables persistence.
func New(p Persister) *Store {
	return &Store{
		cookies:   make(map[cookieKey]*Cookie),
		changed:   make(map[cookieKey]bool),
		persister: p,
	}
}

// Set inserts or replaces a cookie and marks it changed.
func (s *Store) Set(c Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := cookieKey{c.Domain, c.Path, c.Name}
	cp := c
	s.cookies[k] = &cp
	s.changed[k] = true
}

// Get returns the cookie for (domain, path, name) if present and not expired.
func (s *Store) Get(domain, path, name string) (Cookie, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := cookieKey{domain, path, name}
	c, ok := s.cookies[k]
	if !ok || c.expired(time.Now()) {
		return Cookie{}, false
	}
	return *c, true
}

// Clear removes every cookie.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cookies = make(map[cookieKey]*Cookie)
	s.changed = make(map[cookieKey]bool)
}

// Snapshot returns every non-expired cookie applicable to domain+path, sorted
// by name for determinism. Unlike GetChangedCookies this does not consume
// anything: every concurrent sender gets the full, current state, resolving
// the delta-race open question by never relying on a single-consumer stream
// for the send path.
func (s *Store) Snapshot(domain, path string) []Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]Cookie, 0, len(s.cookies))

	for k, c := range s.cookies {
		if c.expired(now) {
			continue
		}
		if !domainMatch(k.domain, domain) || !pathMatch(k.path, path) {
			continue
		}
		cp := *c
		cp.LastAccess = now
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetAllCookies returns every stored cookie regardless of expiry, used for
// the setCookiesFromHost(getAllCookies()) round-trip law.
func (s *Store) GetAllCookies() []Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Cookie, 0, len(s.cookies))
	for _, c := range s.cookies {
		out = append(out, *c)
	}
	return out
}

// SetCookiesFromHost re-applies a full cookie list. Passing the store's own
// GetAllCookies() output back in is a documented no-op: every cookie is set
// to the value it already has, so nothing is marked changed beyond what was
// already changed.
func (s *Store) SetCookiesFromHost(cookies []Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range cookies {
		k := cookieKey{c.Domain, c.Path, c.Name}
		if old, ok := s.cookies[k]; ok && *old == c {
			continue
		}
		cp := c
		s.cookies[k] = &cp
		s.changed[k] = true
	}
}

// GetChangedCookies returns the RFC-6265 Set-Cookie concatenation of every
// cookie mutated since the last call to GetChangedCookies, then clears the
// delta. A second call in a row returns "". This is the persistence-flush
// path; the per-request send path uses Snapshot instead so
// concurrent senders do not race over a single consumed stream.
func (s *Store) GetChangedCookies() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.changed) == 0 {
		return ""
	}

	parts := make([]string, 0, len(s.changed))
	for k := range s.changed {
		if c, ok := s.cookies[k]; ok {
			parts = append(parts, serializeSetCookie(*c))
		}
	}
	s.changed = make(map[cookieKey]bool)

	sort.Strings(parts)
	return strings.Join(parts, "\r\n")
}

// AddPersistentCookies loads cookies from the configured Persister, typically
// at login.
func (s *Store) AddPersistentCookies() liberr.Error {
	if s.persister == nil {
		return ErrorPersisterMissing.Error(nil)
	}

	cookies, err := s.persister.Load()
	if err != nil {
		return ErrorPersisterLoad.Error(err)
	}

	for _, c := range cookies {
		s.Set(c)
	}
	// loading is not a user mutation; do not mark these changed.
	s.mu.Lock()
	s.changed = make(map[cookieKey]bool)
	s.mu.Unlock()

	return nil
}

// WritePersistentCookies flushes every stored cookie through the configured
// Persister, typically at logout.
func (s *Store) WritePersistentCookies() liberr.Error {
	if s.persister == nil {
		return ErrorPersisterMissing.Error(nil)
	}

	if err := s.persister.Save(s.GetAllCookies()); err != nil {
		return ErrorPersisterSave.Error(err)
	}
	return nil
}

func serializeSetCookie(c Cookie) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Set-Cookie: %s=%s", c.Name, c.Value))

	if !c.Expiry.IsZero() {
		b.WriteString("; Expires=" + c.Expiry.UTC().Format(time.RFC1123))
	}
	if c.Path != "" {
		b.WriteString("; Path=" + c.Path)
	}
	if c.Domain != "" {
		b.WriteString("; Domain=" + c.Domain)
	}
	if c.Secure {
		b.WriteString("; Secure")
	}

	return b.String()
}

func domainMatch(cookieDomain, reqDomain string) bool {
	cookieDomain = strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	reqDomain = strings.ToLower(reqDomain)
	return cookieDomain == reqDomain || strings.HasSuffix(reqDomain, "."+cookieDomain)
}

func pathMatch(cookiePath, reqPath string) bool {
	if cookiePath == "" || cookiePath == "/" {
		return true
	}
	return strings.HasPrefix(reqPath, cookiePath)
}
