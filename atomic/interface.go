/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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

package atomic

import (
	"sync"
	"sync/atomic"
)

// Value is a type-safe, lock-free box over sync/atomic.Value. Both of this
// module's uses (cache/item's last-stored-at timestamp and cached payload,
// see cache/item/model.go) only need Load/Store, so that is all this
// carries.
type Value[T any] interface {
	// Load returns the value stored in the underlying store for this Value,
	// or the zero value of T if nothing has been stored yet.
	Load() (val T)
	// Store sets the value in the underlying store for this Value.
	Store(val T)
}

// Map is a sync.Map-backed store keyed by K with any-typed values. It
// exposes only the operations this module's callers actually use
// (context's scoped-config map and cache's key index both drive Load,
// Store, Delete, LoadOrStore, LoadAndDelete and Range; see
// context/map.go and cache/model.go) -- no Swap/CompareAndSwap/
// CompareAndDelete, since nothing here needs compare-and-swap semantics
// on an any-typed map.
type Map[K comparable] interface {
	// Load returns the value stored for key, and whether it was present.
	Load(key K) (value any, ok bool)
	// Store overwrites the value stored for key.
	Store(key K, value any)
	// LoadOrStore returns the existing value for key if present, otherwise
	// it stores and returns the given value.
	LoadOrStore(key K, value any) (actual any, loaded bool)
	// LoadAndDelete deletes the value for key, returning the previous value
	// if any.
	LoadAndDelete(key K) (value any, loaded bool)
	// Delete removes the value stored for key.
	Delete(key K)
	// Range calls f for each key/value pair until f returns false.
	Range(f func(key K, value any) bool)
}

// MapTyped is Map with a concrete value type V, used where callers would
// otherwise have to type-assert every Load (cache's per-key item index and
// errors/pool's worker-id-to-error table both need this; see
// cache/interface.go and errors/pool/model.go).
type MapTyped[K comparable, V any] interface {
	// Load returns the value stored for key, and whether it was present.
	Load(key K) (value V, ok bool)
	// Store overwrites the value stored for key.
	Store(key K, value V)
	// LoadOrStore returns the existing value for key if present, otherwise
	// it stores and returns the given value.
	LoadOrStore(key K, value V) (actual V, loaded bool)
	// LoadAndDelete deletes the value for key, returning the previous value
	// if any.
	LoadAndDelete(key K) (value V, loaded bool)
	// Delete removes the value stored for key.
	Delete(key K)
	// Range calls f for each key/value pair until f returns false.
	Range(f func(key K, value V) bool)
}

// NewValue returns a new, empty Value[T]. Load returns the zero value of T
// until the first Store.
func NewValue[T any]() Value[T] {
	return &val[T]{av: new(atomic.Value)}
}

// NewMapAny returns a new Map with the given key type. It uses a sync.Map as the underlying store.
//
// Example:
//
//	m := NewMapAny[int]()
//	// m is a Map with key type int and underlying store sync.Map{}.
func NewMapAny[K comparable]() Map[K] {
	return &ma[K]{
		m: sync.Map{},
	}
}

// NewMapTyped returns a new Map with the given key type and value type.
// It uses a sync.Map as the underlying store.
//
// Example:
//
//	m := NewMapTyped[int, string]()
//	// m is a Map with key type int and value type string, and underlying store sync.Map{}.
func NewMapTyped[K comparable, V any]() MapTyped[K, V] {
	return &mt[K, V]{
		m: NewMapAny[K](),
	}
}
