/*
MIT License

Copyright (c) 2019 Nicolas JUHEL

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package context

import (
	"context"
	"time"
)

// ccx[T] backs this module's one real instantiation, Config[string] in
// logger/fields (fldModel wraps it as the scoped key/value store behind a
// log entry's structured fields), so every method here is a context.Context
// delegate plus a lookup into that per-key store rather than a generic
// untouched pass-through.

// GetContext returns the context.Context this Config wraps, used by Clone to
// seed a new Config when the caller passes a nil context.
func (c *ccx[T]) GetContext() context.Context {
	if c.x != nil {
		return c.x
	} else {
		return context.Background()
	}
}

// Deadline delegates to the wrapped context.Context.
func (c *ccx[T]) Deadline() (deadline time.Time, ok bool) {
	return c.x.Deadline()
}

// Done delegates to the wrapped context.Context.
func (c *ccx[T]) Done() <-chan struct{} {
	return c.x.Done()
}

// Err delegates to the wrapped context.Context.
func (c *ccx[T]) Err() error {
	return c.x.Err()
}

// Value resolves key against the field store first -- this is what lets a
// fldModel be handed to code that only expects a plain context.Context and
// still see its log fields via ctx.Value(fieldName) -- and only falls back
// to the wrapped context.Context when key isn't of type T or isn't stored.
func (c *ccx[T]) Value(key any) any {
	if i, k := key.(T); !k {
		return c.x.Value(key)
	} else if v, ok := c.Load(i); ok {
		return v
	} else {
		return c.x.Value(key)
	}
}

// IsolateParent returns a context that carries parent's values but is not
// canceled when parent is canceled and has no deadline.
func IsolateParent(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}
