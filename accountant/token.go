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
	"sync"

	"golang.org/x/sync/semaphore"
)

// Token is a stamped, non-transferable permit reserving one concurrent
// request slot on (service, capability). It must be resolved exactly once,
// either by Consume (the request was actually issued; the slot stays charged
// until Release) or by Return (the slot is given back immediately because the
// request was never issued).
type Token struct {
	once    sync.Once
	sem     *semaphore.Weighted
	Service string
	Cap     Capability
}

// Consume marks the token as backing a request that is about to be issued.
// The slot remains reserved until Release is called when that request
// finishes.
func (t *Token) Consume() {}

// Return gives the slot back immediately without ever issuing a request.
// Idempotent.
func (t *Token) Return() {
	t.once.Do(func() {
		t.sem.Release(1)
	})
}

// Release frees the slot backing a consumed token once its request has
// completed. Idempotent, and safe to call even if Return was already called.
func (t *Token) Release() {
	t.once.Do(func() {
		t.sem.Release(1)
	})
}
