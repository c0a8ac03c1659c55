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

import "github.com/google/uuid"

// CacheClient is the external persistent texture cache collaborator. Both
// methods are asynchronous: onDone is invoked from whatever goroutine the
// cache implementation uses for I/O, and it must do nothing but stash the
// result and call Machine.AdvanceState -- never touch Worker fields
// directly from outside the engine-tick goroutine.
type CacheClient interface {
	// ReadFromCache starts an asynchronous read of up to size bytes at
	// offset for id. onDone receives the bytes actually found (which may be
	// shorter than size), the cache's recorded authoritative file size (0 if
	// unknown) and whether the cached entry is known-complete.
	ReadFromCache(id uuid.UUID, offset, size int64, onDone func(data []byte, fileSize int64, complete bool, err error)) (handle uint64)

	// WriteToCache starts an asynchronous write of data for id, recording
	// fileSize as the authoritative total so subsequent reads know whether
	// to consider the cache entry complete.
	WriteToCache(id uuid.UUID, data []byte, fileSize int64, onDone func(err error)) (handle uint64)

	// PrioritizeWrite requests the cache service move a pending write ahead
	// of others it may be queueing.
	PrioritizeWrite(handle uint64)

	// RemoveFromCache drops any cached entry for id, used when a decode
	// failure is attributed to corrupt cached bytes.
	RemoveFromCache(id uuid.UUID)
}

// Decoder is the external image decode collaborator.
type Decoder interface {
	// DecodeImage starts an asynchronous decode of formatted at discard,
	// optionally also producing an aux channel. onDone receives the decoded
	// raw (and, if requested, aux) image plus the discard level actually
	// achieved (a decoder may only be able to produce a coarser discard than
	// requested).
	DecodeImage(formatted []byte, priority int32, discard int, needsAux bool, onDone func(raw, aux []byte, achievedDiscard int, err error)) (handle uint64)

	// AbortRequest cancels a pending decode. If wait is true the call
	// blocks until the decoder confirms the abort.
	AbortRequest(handle uint64, wait bool)
}

// UDPTransport is the send side of the legacy UDP messaging bus
// collaborator. The receive side
// (receiveImageHeader/receiveImagePacket) is exposed on Pool instead, since
// the pipeline is the callee there, not the caller.
type UDPTransport interface {
	// RequestImage sends a RequestImage packet for id to host, asking for
	// discard starting at packet index startPacket (used by rerequests that
	// have already received the simulator's first K packets).
	RequestImage(host string, id uuid.UUID, discard int, startPacket int) error
}
