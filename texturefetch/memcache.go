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

package texturefetch

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nabbar/httpcore/cache"
)

type cachedTexture struct {
	data     []byte
	fileSize int64
	complete bool
}

// MemCache is a CacheClient backed by the existing generic in-process cache:
// the default, in-memory stand-in so the pipeline is exercisable without a
// persistent cache service. Reads and writes both complete synchronously but
// still invoke onDone through a goroutine, matching the asynchronous contract
// every other CacheClient implementation must honour.
type MemCache struct {
	store  cache.Cache[uuid.UUID, cachedTexture]
	handle atomic.Uint64
}

// NewMemCache returns a MemCache whose entries never expire on their own;
// eviction is left to RemoveFromCache and process lifetime.
func NewMemCache(ctx context.Context) *MemCache {
	return &MemCache{store: cache.New[uuid.UUID, cachedTexture](ctx, 0)}
}

func (c *MemCache) nextHandle() uint64 {
	return c.handle.Add(1)
}

func (c *MemCache) ReadFromCache(id uuid.UUID, offset, size int64, onDone func(data []byte, fileSize int64, complete bool, err error)) uint64 {
	h := c.nextHandle()

	go func() {
		entry, _, ok := c.store.Load(id)
		if !ok {
			onDone(nil, 0, false, nil)
			return
		}

		data := entry.data
		if offset > 0 && offset < int64(len(data)) {
			data = data[offset:]
		} else if offset >= int64(len(data)) {
			data = nil
		}
		if size > 0 && int64(len(data)) > size {
			data = data[:size]
		}

		onDone(data, entry.fileSize, entry.complete, nil)
	}()

	return h
}

func (c *MemCache) WriteToCache(id uuid.UUID, data []byte, fileSize int64, onDone func(err error)) uint64 {
	h := c.nextHandle()

	complete := fileSize > 0 && int64(len(data)) >= fileSize
	c.store.Store(id, cachedTexture{data: data, fileSize: fileSize, complete: complete})

	go onDone(nil)

	return h
}

// PrioritizeWrite is a no-op: MemCache writes complete inline with no queue
// to reorder.
func (c *MemCache) PrioritizeWrite(handle uint64) {}

func (c *MemCache) RemoveFromCache(id uuid.UUID) {
	c.store.Delete(id)
}
