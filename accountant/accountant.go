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

package accountant

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const defaultMaxErrorCount = 3

// deferred is one queued approvement request, FIFO by EnqueuedAt, ties
// broken by ID.
type deferred struct {
	ID         string
	EnqueuedAt time.Time
}

type serviceEntry struct {
	mu         sync.Mutex
	sem        map[Capability]*semaphore.Weighted
	queue      map[Capability][]deferred
	blacklist  *blacklistEntry
	totalCount int64
	latency    time.Duration
}

func newServiceEntry(caps map[Capability]int64) *serviceEntry {
	e := &serviceEntry{
		sem:   make(map[Capability]*semaphore.Weighted),
		queue: make(map[Capability][]deferred),
	}
	for c, n := range caps {
		e.sem[c] = semaphore.NewWeighted(n)
	}
	return e
}

func (e *serviceEntry) semaphoreFor(cap Capability, defaultN int64) *semaphore.Weighted {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sem[cap]
	if !ok {
		s = semaphore.NewWeighted(defaultN)
		e.sem[cap] = s
	}
	return s
}

// Accountant enforces per-service, per-capability concurrency caps.
type Accountant struct {
	mu            sync.RWMutex
	services      map[string]*serviceEntry
	defaultCaps   map[Capability]int64
	maxErrorCount int
	now           func() time.Time
}

// New returns an Accountant with the given default per-capability
// concurrency caps. maxErrorCount of 0 defaults to 3.
func New(defaultCaps map[Capability]int64, maxErrorCount int) *Accountant {
	if maxErrorCount <= 0 {
		maxErrorCount = defaultMaxErrorCount
	}

	caps := make(map[Capability]int64, len(defaultCaps))
	for k, v := range defaultCaps {
		caps[k] = v
	}

	return &Accountant{
		services:      make(map[string]*serviceEntry),
		defaultCaps:   caps,
		maxErrorCount: maxErrorCount,
		now:           time.Now,
	}
}

func (a *Accountant) entry(service string) *serviceEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.services[service]
	if !ok {
		e = newServiceEntry(a.defaultCaps)
		a.services[service] = e
	}
	return e
}

func (a *Accountant) capDefault(cap Capability) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if n, ok := a.defaultCaps[cap]; ok {
		return n
	}
	return 1
}

// Approve returns a Token if outstanding[cap] < max_concurrent[cap] for
// service and the service is not blacklisted; otherwise it returns nil and
// ok=false, and the caller should retry on the next engine tick.
func (a *Accountant) Approve(service string, cap Capability) (*Token, bool) {
	e := a.entry(service)

	e.mu.Lock()
	bl := e.blacklist
	e.mu.Unlock()

	if bl.active(a.now()) {
		return nil, false
	}

	sem := e.semaphoreFor(cap, a.capDefault(cap))
	if !sem.TryAcquire(1) {
		return nil, false
	}

	e.mu.Lock()
	e.totalCount++
	e.mu.Unlock()

	return &Token{sem: sem, Service: service, Cap: cap}, true
}

// IsBlacklisted reports whether service is currently blacklisted.
func (a *Accountant) IsBlacklisted(service string) bool {
	e := a.entry(service)

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.blacklist.active(a.now())
}

// NoteFailure records a failure of the given reason for service. Once
// countsAsFailure(reason) pushes the consecutive count to maxErrorCount, the
// service is blacklisted for the reason's backoff duration.
func (a *Accountant) NoteFailure(service string, reason FailureReason) {
	if !countsAsFailure(reason) {
		return
	}

	e := a.entry(service)
	e.mu.Lock()
	defer e.mu.Unlock()

	count := 1
	if e.blacklist != nil {
		count = e.blacklist.errorCount + 1
	}

	if count >= a.maxErrorCount {
		d := blacklistDuration(reason)
		e.blacklist = &blacklistEntry{
			reason:       reason,
			errorCount:   count,
			timeoutUntil: a.now().Add(d.Time()),
		}
	} else {
		e.blacklist = &blacklistEntry{reason: reason, errorCount: count}
	}
}

// NoteSuccess resets the consecutive-failure counter for service.
func (a *Accountant) NoteSuccess(service string) {
	e := a.entry(service)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.blacklist = nil
}

// Defer enqueues a deferred approvement request for (service, cap).
func (a *Accountant) Defer(service string, cap Capability, id string, enqueuedAt time.Time) {
	e := a.entry(service)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue[cap] = append(e.queue[cap], deferred{ID: id, EnqueuedAt: enqueuedAt})
	sort.Slice(e.queue[cap], func(i, j int) bool {
		qi, qj := e.queue[cap][i], e.queue[cap][j]
		if qi.EnqueuedAt.Equal(qj.EnqueuedAt) {
			return qi.ID < qj.ID
		}
		return qi.EnqueuedAt.Before(qj.EnqueuedAt)
	})
}

// Next pops the front of the deferred queue for (service, cap), FIFO by
// enqueued-at with identity tie-breaking.
func (a *Accountant) Next(service string, cap Capability) (string, bool) {
	e := a.entry(service)
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.queue[cap]
	if len(q) == 0 {
		return "", false
	}

	id := q[0].ID
	e.queue[cap] = q[1:]
	return id, true
}
