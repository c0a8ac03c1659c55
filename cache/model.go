/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

package cache

import (
	"context"
	"time"

	libatm "github.com/nabbar/httpcore/atomic"
	cchitm "github.com/nabbar/httpcore/cache/item"
)

// cc is the generic implementation of Cache[K, V]. Each entry is a
// cchitm.CacheItem[V] holding its own expiration clock, stored in an
// atomic.MapTyped so reads/writes never block on a package-wide mutex the
// way the single-type-parameter cache this replaced did.
type cc[K comparable, V any] struct {
	context.Context

	n context.CancelFunc
	v libatm.MapTyped[K, cchitm.CacheItem[V]]
	e time.Duration
}

// Load returns the value stored for key, its remaining time to live, and
// whether it was found and still valid. An already-expired item is dropped
// from the map before returning false.
func (o *cc[K, V]) Load(key K) (val V, exp time.Duration, ok bool) {
	if o.Context.Err() != nil {
		return val, 0, false
	}

	itm, found := o.v.Load(key)
	if !found {
		return val, 0, false
	}

	if v, r, k := itm.LoadRemain(); k {
		return v, r, true
	}

	o.v.Delete(key)
	return val, 0, false
}

// Store saves val for key, resetting its expiration clock.
func (o *cc[K, V]) Store(key K, val V) {
	o.v.Store(key, cchitm.New[V](o.e, val))
}

// Delete removes the item stored for key, if any.
func (o *cc[K, V]) Delete(key K) {
	if itm, ok := o.v.LoadAndDelete(key); ok {
		itm.Clean()
	}
}

// LoadOrStore returns the current value for key if one is present and still
// valid. Otherwise it stores val under key and reports a miss: the zero
// value of V and a zero duration, not the value just stored.
func (o *cc[K, V]) LoadOrStore(key K, val V) (res V, exp time.Duration, loaded bool) {
	if o.Context.Err() != nil {
		return res, 0, false
	}

	if v, r, ok := o.Load(key); ok {
		return v, r, true
	}

	o.Store(key, val)
	return res, 0, false
}

// LoadAndDelete returns the value stored for key, if valid, and removes it.
func (o *cc[K, V]) LoadAndDelete(key K) (val V, loaded bool) {
	if o.Context.Err() != nil {
		return val, false
	}

	v, _, ok := o.Load(key)
	if !ok {
		return val, false
	}

	o.Delete(key)
	return v, true
}

// Swap stores val under key and returns whatever was previously stored
// there, if it was still valid. The new value is stored whether or not an
// old one existed; only the reported "loaded" result distinguishes the two.
func (o *cc[K, V]) Swap(key K, val V) (old V, exp time.Duration, loaded bool) {
	if o.Context.Err() != nil {
		return old, 0, false
	}

	v, r, ok := o.Load(key)
	o.Store(key, val)

	if !ok {
		var zero V
		return zero, 0, false
	}

	return v, r, true
}

// Walk calls fct for every valid, non-expired item in the cache, stopping
// early if fct returns false or the cache's context is done.
func (o *cc[K, V]) Walk(fct func(K, V, time.Duration) bool) {
	o.v.Range(func(key K, itm cchitm.CacheItem[V]) bool {
		if o.Context.Err() != nil {
			return false
		}

		v, r, ok := itm.LoadRemain()
		if !ok {
			o.v.Delete(key)
			return true
		}

		return fct(key, v, r)
	})
}

// Merge copies every valid item from c into the receiver, overwriting any
// existing entry with the same key.
func (o *cc[K, V]) Merge(c Cache[K, V]) {
	c.Walk(func(key K, val V, _ time.Duration) bool {
		o.Store(key, val)
		return true
	})
}

// Clone returns a new Cache with the same expiration policy and a copy of
// every valid item currently stored, tied to ctx (or the receiver's own
// context if ctx is nil). It fails if the receiver's context has already
// been cancelled.
func (o *cc[K, V]) Clone(ctx context.Context) (Cache[K, V], error) {
	if err := o.Context.Err(); err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = o.Context
	}

	n := New[K, V](ctx, o.e)

	o.Walk(func(key K, val V, _ time.Duration) bool {
		n.Store(key, val)
		return true
	})

	return n, nil
}
