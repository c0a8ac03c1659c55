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

// Package texturefetch is the texture fetch pipeline: one Worker state
// machine per in-flight image, composing a cache read, an HTTP or UDP
// fetch, an image decode handoff and a cache write, under a
// priority-ordered worker pool.
package texturefetch

import "github.com/nabbar/httpcore/statemachine"

// Worker run states, ordered by "progress" along whichever branch a fetch
// attempt actually takes: within a single attempt a worker's state never
// decreases, including across the HTTP<->UDP fallback and same-branch
// retries. That requires the HTTP branch
// (SendHTTPReq..WaitHTTPReq) to sit entirely before the UDP branch
// (SendUDPReq..LoadFromSimulator) in the numbering, and dedicated
// "resumption" states (HTTPRetry, UDPFallback) positioned after WaitHTTPReq:
// an async HTTPFailure callback can only ever move forward via AdvanceState,
// so retrying the HTTP branch or falling back to UDP both go through one of
// these higher-numbered states, whose own (in-dispatch) handler then uses
// Machine.SetState to actually step back down to SendHTTPReq/SendUDPReq --
// the same trick Done uses to loop back to Init.
const (
	stateInit statemachine.RunState = iota
	stateLoadFromTextureCache
	stateCachePost
	stateLoadFromNetwork
	stateSendHTTPReq
	stateWaitHTTPReq
	stateHTTPRetry
	stateUDPFallback
	stateSendUDPReq
	stateWaitUDPReq
	stateLoadFromSimulator
	stateDecodeImage
	stateDecodeImageUpdate
	stateWriteToCache
	stateWaitOnWrite
	stateDone
)

func workerStateName(s statemachine.RunState) string {
	switch s {
	case stateInit:
		return "Init"
	case stateLoadFromTextureCache:
		return "LoadFromTextureCache"
	case stateCachePost:
		return "CachePost"
	case stateLoadFromNetwork:
		return "LoadFromNetwork"
	case stateSendHTTPReq:
		return "SendHTTPReq"
	case stateWaitHTTPReq:
		return "WaitHTTPReq"
	case stateHTTPRetry:
		return "HTTPRetry"
	case stateUDPFallback:
		return "UDPFallback"
	case stateSendUDPReq:
		return "SendUDPReq"
	case stateWaitUDPReq:
		return "WaitUDPReq"
	case stateLoadFromSimulator:
		return "LoadFromSimulator"
	case stateDecodeImage:
		return "DecodeImage"
	case stateDecodeImageUpdate:
		return "DecodeImageUpdate"
	case stateWriteToCache:
		return "WriteToCache"
	case stateWaitOnWrite:
		return "WaitOnWrite"
	case stateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// CacheWritePolicy tracks whether a worker's fetched bytes are eligible for a
// cache write.
type CacheWritePolicy int

const (
	// NotWrite: map tiles and anything read back from the local cache.
	NotWrite CacheWritePolicy = iota
	// CanWrite: fetched bytes could be written, but nothing requires it.
	CanWrite
	// ShouldWrite: HTTP-fetched bytes from a region-provided URL.
	ShouldWrite
)

// TransportKind partitions metrics between HTTP and UDP fetches.
type TransportKind string

const (
	TransportHTTP TransportKind = "http"
	TransportUDP  TransportKind = "udp"
)

// TextureKind partitions metrics between avatar-bake textures and regular
// world textures.
type TextureKind string

const (
	KindRegular TextureKind = "regular"
	KindBake    TextureKind = "bake"
)

// FetchState is the public snapshot returned by Pool.GetFetchState.
type FetchState struct {
	RunState       string
	LoadedDiscard  int
	RequestedSize  int64
	FileSize       int64
	HTTPFailCount  int
	RetryAttempt   int
	BadPacketCount int
	Done           bool
}
