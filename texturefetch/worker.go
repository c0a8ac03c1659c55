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
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nabbar/httpcore/accountant"
	"github.com/nabbar/httpcore/header"
	"github.com/nabbar/httpcore/statemachine"
	"github.com/nabbar/httpcore/transport"
)

// HTTPMaxRetryCount bounds a texture worker's HTTP retries for any failure
// other than 503, which retries without limit.
const HTTPMaxRetryCount = 3

// Worker is the per-texture state machine: one instance per image UUID in
// flight, composing a cache read, an HTTP or UDP fetch, an image decode
// handoff and a conditional cache write.
type Worker struct {
	ID      uuid.UUID
	httpURL string // optional; "" disables the HTTP path
	simHost string // optional; "" disables the UDP path
	isMapTile bool

	desiredDiscard atomic.Int32
	desiredSize    atomic.Int64

	loadedDiscard    int
	requestedDiscard int
	requestedSize    int64
	fileSize         int64 // authoritative once known
	cachedSize       int64

	formatted []byte
	raw       []byte
	aux       []byte
	needsAux  bool

	udp *udpReassembly

	cacheWritePolicy CacheWritePolicy
	fetchedFromCache bool // the bytes now in `formatted` came from the cache, not the network
	decodeRetried    bool // one cache-corruption restart already attempted
	restartAfterDone bool // Done should loop back to Init on its next in-dispatch visit

	httpFailCount int
	retryAttempt  int

	priority   atomic.Int32
	enqueuedAt time.Time

	startedAt    time.Time
	usedTransport TransportKind
	kind          TextureKind

	cache   CacheClient
	decoder Decoder
	udpTx   UDPTransport
	http    *transport.Client
	useHTTP bool

	machine *statemachine.Machine
	pool    *Pool

	mu        sync.Mutex
	done      bool
	deleted   bool
	cacheHnd  uint64
	decodeHnd uint64
}

func newWorker(pool *Pool, id uuid.UUID, httpURL, simHost string, isMapTile bool, priority int32, desiredDiscard int, desiredSize int64, needsAux, canUseHTTP bool) *Worker {
	w := &Worker{
		ID:         id,
		httpURL:    httpURL,
		simHost:    simHost,
		isMapTile:  isMapTile,
		needsAux:   needsAux,
		udp:        newUDPReassembly(),
		cache:      pool.cache,
		decoder:    pool.decoder,
		udpTx:      pool.udpTx,
		http:       pool.http,
		useHTTP:    canUseHTTP && pool.opts.UseHTTP,
		pool:       pool,
		enqueuedAt: time.Now(),
		kind:       KindRegular,
	}
	w.desiredDiscard.Store(int32(desiredDiscard))
	w.desiredSize.Store(desiredSize)
	w.priority.Store(priority)

	w.machine = statemachine.New(w)
	w.machine.SetStateNamer(workerStateName)
	return w
}

// SetKind marks this worker as fetching an avatar-bake texture rather than a
// regular world texture, for metrics partitioning.
func (w *Worker) SetKind(k TextureKind) { w.kind = k }

// Priority returns the current engine-priority used by the pool's scheduler.
func (w *Worker) Priority() int32 { return w.priority.Load() }

// SetPriority updates the engine priority the pool scheduler sorts by.
// Callable at any time from any goroutine; the pool re-reads it on the next
// dispatch pass.
func (w *Worker) SetPriority(p int32) { w.priority.Store(p) }

// RaiseQuality requests a better (lower) discard and/or larger size. Only a
// strictly better discard re-prioritizes a worker that has already reached
// Done; an unchanged discard with no new information is a no-op.
func (w *Worker) RaiseQuality(discard int, size int64) {
	if int32(discard) < w.desiredDiscard.Load() {
		w.desiredDiscard.Store(int32(discard))
	}
	if size > w.desiredSize.Load() {
		w.desiredSize.Store(size)
	}
	w.machine.Cont()
}

func (w *Worker) resetForAttempt() {
	w.formatted = nil
	w.fetchedFromCache = false
	w.udp = newUDPReassembly()
	w.httpFailCount = 0
	w.retryAttempt = 0
	w.startedAt = time.Now()

	if w.isMapTile {
		w.cacheWritePolicy = NotWrite
	} else if w.httpURL != "" {
		w.cacheWritePolicy = ShouldWrite
	} else {
		w.cacheWritePolicy = CanWrite
	}
}

// ---- statemachine.Impl ----

func (w *Worker) InitializeImpl(ctx context.Context, m *statemachine.Machine) error {
	w.resetForAttempt()
	return nil
}

func (w *Worker) MultiplexImpl(ctx context.Context, m *statemachine.Machine, state statemachine.RunState) error {
	switch state {
	case stateInit:
		return w.dispatchInit(m)
	case stateLoadFromTextureCache:
		return w.dispatchLoadFromTextureCache(m)
	case stateCachePost:
		return w.dispatchCachePost(m)
	case stateLoadFromNetwork:
		return w.dispatchLoadFromNetwork(m)
	case stateSendUDPReq:
		return w.dispatchSendUDPReq(m)
	case stateWaitUDPReq, stateLoadFromSimulator:
		m.Idle()
		return nil
	case stateSendHTTPReq:
		return w.dispatchSendHTTPReq(m)
	case stateWaitHTTPReq:
		m.Idle()
		return nil
	case stateHTTPRetry:
		w.retryAttempt++
		m.SetState(stateSendHTTPReq)
		return nil
	case stateUDPFallback:
		w.formatted = nil
		m.SetState(stateSendUDPReq)
		return nil
	case stateDecodeImage, stateDecodeImageUpdate:
		return w.dispatchDecodeImage(m)
	case stateWriteToCache:
		return w.dispatchWriteToCache(m)
	case stateWaitOnWrite:
		m.Idle()
		return nil
	case stateDone:
		return w.dispatchDone(m)
	}
	return nil
}

func (w *Worker) dispatchInit(m *statemachine.Machine) error {
	// resetForAttempt is idempotent to call again here: it also runs once
	// from InitializeImpl, but a Done->Init loop-back (better quality
	// requested) re-enters Init without InitializeImpl running a second time.
	w.resetForAttempt()
	w.requestedDiscard = int(w.desiredDiscard.Load())
	w.requestedSize = w.desiredSize.Load()

	w.mu.Lock()
	w.done = false
	w.mu.Unlock()

	m.SetState(stateLoadFromTextureCache)
	return nil
}

func (w *Worker) dispatchLoadFromTextureCache(m *statemachine.Machine) error {
	if w.cache == nil {
		m.SetState(stateCachePost)
		return nil
	}

	w.cacheHnd = w.cache.ReadFromCache(w.ID, 0, w.requestedSize, func(data []byte, fileSize int64, complete bool, err error) {
		if err == nil && len(data) > 0 {
			w.formatted = data
			w.cachedSize = int64(len(data))
			w.fetchedFromCache = true
			if fileSize > 0 {
				w.fileSize = fileSize
			}
			if complete || int64(len(data)) >= w.requestedSize {
				w.cacheWritePolicy = NotWrite
			}
		}
		m.AdvanceState(stateCachePost)
	})
	m.Idle()
	return nil
}

func (w *Worker) dispatchCachePost(m *statemachine.Machine) error {
	if len(w.formatted) > 0 && (int64(len(w.formatted)) >= w.requestedSize || w.fileSize > 0 && int64(len(w.formatted)) >= w.fileSize) {
		m.SetState(stateDecodeImage)
		return nil
	}
	m.SetState(stateLoadFromNetwork)
	return nil
}

func (w *Worker) dispatchLoadFromNetwork(m *statemachine.Machine) error {
	blacklisted := false
	if w.http != nil && w.httpURL != "" {
		if svc, err := accountant.CanonicalService(w.httpURL); err == nil {
			blacklisted = w.pool.acct.IsBlacklisted(svc)
		}
	}

	switch {
	case w.useHTTP && w.httpURL != "" && !blacklisted:
		m.SetState(stateSendHTTPReq)
	case w.simHost != "":
		m.SetState(stateSendUDPReq)
	case w.httpURL != "" && !blacklisted:
		// UDP unavailable and HTTP disabled by policy, but a URL exists;
		// with nothing else to offer, try HTTP anyway.
		m.SetState(stateSendHTTPReq)
	default:
		w.pool.recordFetchResult(w, false)
		m.SetState(stateDone)
	}
	return nil
}

// ---- UDP path ----

func (w *Worker) dispatchSendUDPReq(m *statemachine.Machine) error {
	w.usedTransport = TransportUDP

	if w.udpTx == nil {
		w.pool.recordFetchResult(w, false)
		m.SetState(stateDone)
		return nil
	}

	start := w.udp.LastPacket() + 1
	_ = w.udpTx.RequestImage(w.simHost, w.ID, w.requestedDiscard, start)
	m.SetState(stateWaitUDPReq)
	m.Idle()
	return nil
}

// receiveHeader is invoked by Pool.ReceiveImageHeader, off the engine
// thread; it only stashes data and wakes the machine via AdvanceState.
func (w *Worker) receiveHeader(codec uint8, totalPackets int, fileSize int64, firstChunk []byte) {
	w.udp.receiveHeader(codec, totalPackets, fileSize, firstChunk)
	w.fileSize = fileSize
	w.machine.AdvanceState(stateLoadFromSimulator)
}

// receivePacket is invoked by Pool.ReceiveImagePacket, off the engine
// thread.
func (w *Worker) receivePacket(index int, data []byte) {
	complete := w.udp.receivePacket(index, data)
	if complete {
		w.formatted, w.fileSize = w.udp.assembled()
		w.fetchedFromCache = false
		w.machine.AdvanceState(stateDecodeImage)
		return
	}
	w.machine.Cont()
}

// ---- HTTP path ----

func (w *Worker) textureURL() string {
	u, err := url.Parse(w.httpURL)
	if err != nil {
		return w.httpURL
	}
	q := u.Query()
	q.Set("texture_id", w.ID.String())
	u.RawQuery = q.Encode()
	return u.String()
}

func (w *Worker) dispatchSendHTTPReq(m *statemachine.Machine) error {
	w.usedTransport = TransportHTTP

	if w.http == nil {
		w.pool.recordFetchResult(w, false)
		m.SetState(stateDone)
		return nil
	}

	offset := int64(len(w.formatted))
	size := w.requestedSize - offset
	if size <= 0 {
		size = w.requestedSize
	}

	resp := &httpResponder{w: w, m: m}
	hdr := header.NewRequestHeaders()

	if _, err := w.http.GetByteRange(w.textureURL(), offset, size, resp, hdr); err != nil {
		w.pool.recordFetchResult(w, false)
		m.SetState(stateDone)
		return nil
	}

	m.SetState(stateWaitHTTPReq)
	m.Idle()
	return nil
}

// httpResponder routes one HTTP range-fetch attempt's completion back into
// the worker's state machine via AdvanceState, per the transport.Responder
// contract.
type httpResponder struct {
	transport.BaseResponder
	w *Worker
	m *statemachine.Machine
}

// HTTPSuccess joins body onto the bytes already held in w.formatted.
// transport.Client.GetByteRange always shaves one byte off the front of the
// range it requests on the wire -- even on the very first fetch at offset
// 0 -- so body's own leading byte is always the shaved overlap byte, never
// real image data, and must be dropped before joining regardless of how
// much (if anything) w.formatted already held.
func (r *httpResponder) HTTPSuccess(body []byte) {
	if len(body) > 0 {
		body = body[1:]
	}
	if len(body) > 0 {
		r.w.formatted = append(r.w.formatted, body...)
		r.w.fetchedFromCache = false
	}
	r.m.AdvanceState(stateDecodeImage)
}

func (r *httpResponder) HTTPFailure(status int, class transport.ErrorClass) {
	w := r.w

	switch {
	case status == 416:
		// 416 on a range request means we already hold all the data there is.
		r.m.AdvanceState(stateDecodeImage)

	case status == 404:
		if w.isMapTile {
			w.pool.recordFetchResult(w, false)
			r.m.AdvanceState(stateDone)
			return
		}
		// single non-retryable failure for a non-tile 404.
		w.fallbackOrFail(r.m)

	case status == 503:
		// unlimited retry, no HTTP_MAX_RETRY_COUNT accounting.
		w.httpFailCount++
		r.m.AdvanceState(stateHTTPRetry)

	case class == transport.ErrOperationTimedOut || class == transport.ErrLowSpeed:
		// the accountant already blacklisted the host via NoteFailure inside
		// transport's requestImpl; fall back to UDP if one is available.
		w.fallbackOrFail(r.m)

	default:
		w.httpFailCount++
		// Two-phase retry-then-give-up: the +1 slack means the first entry
		// always retries and the branch is never taken again once the cap is
		// reached.
		if w.httpFailCount < HTTPMaxRetryCount+1 {
			r.m.AdvanceState(stateHTTPRetry)
			return
		}
		w.fallbackOrFail(r.m)
	}
}

// fallbackOrFail moves to the UDP path if a simulator host is known,
// otherwise finalizes as a failure. AdvanceState here is
// always a forward move regardless of which branch was in flight: HTTPRetry,
// UDPFallback and Done all sit after every state either branch can be in
// when an HTTPFailure callback fires.
func (w *Worker) fallbackOrFail(m *statemachine.Machine) {
	if w.simHost != "" {
		m.AdvanceState(stateUDPFallback)
		return
	}
	w.pool.recordFetchResult(w, false)
	m.AdvanceState(stateDone)
}

// ---- decode & cache write ----

func (w *Worker) dispatchDecodeImage(m *statemachine.Machine) error {
	if w.pool.opts.DecodeDisabled && len(w.formatted) > 0 {
		// Debug mode: keep the formatted bytes, skip the decoder entirely.
		if w.cacheWritePolicy == ShouldWrite && !w.fetchedFromCache {
			m.SetState(stateWriteToCache)
			return nil
		}
		w.pool.recordFetchResult(w, true)
		m.SetState(stateDone)
		return nil
	}

	if w.decoder == nil || len(w.formatted) == 0 {
		w.pool.recordFetchResult(w, false)
		m.SetState(stateDone)
		return nil
	}

	fromCache := w.fetchedFromCache

	w.decodeHnd = w.decoder.DecodeImage(w.formatted, w.priority.Load(), w.requestedDiscard, w.needsAux, func(raw, aux []byte, achieved int, err error) {
		if err != nil {
			if fromCache && !w.decodeRetried {
				w.decodeRetried = true
				if w.cache != nil {
					w.cache.RemoveFromCache(w.ID)
				}
				// SetState is illegal here: this callback runs off the
				// engine thread, outside any MultiplexImpl dispatch. Route
				// through Done instead, which is allowed to loop back to
				// Init from within its own (in-dispatch) handler.
				w.restartAfterDone = true
				w.machine.AdvanceState(stateDone)
				return
			}
			w.pool.recordFetchResult(w, false)
			w.machine.AdvanceState(stateDone)
			return
		}

		w.raw = raw
		w.aux = aux
		w.loadedDiscard = achieved

		if w.cacheWritePolicy == ShouldWrite && !fromCache {
			w.machine.AdvanceState(stateWriteToCache)
			return
		}
		w.machine.AdvanceState(stateDone)
	})
	m.Idle()
	return nil
}

func (w *Worker) dispatchWriteToCache(m *statemachine.Machine) error {
	if w.cache == nil {
		m.SetState(stateDone)
		return nil
	}

	// Record the authoritative file size, or size+1 to flag a partial read
	// for future cache consumers.
	fileSize := w.fileSize
	if fileSize == 0 {
		fileSize = int64(len(w.formatted)) + 1
	}

	w.cache.WriteToCache(w.ID, w.formatted, fileSize, func(err error) {
		w.pool.recordFetchResult(w, err == nil)
		w.machine.AdvanceState(stateDone)
	})
	m.SetState(stateWaitOnWrite)
	m.Idle()
	return nil
}

func (w *Worker) dispatchDone(m *statemachine.Machine) error {
	if w.restartAfterDone {
		w.restartAfterDone = false
		m.SetState(stateInit)
		m.Cont()
		return nil
	}

	if w.raw != nil && int32(w.loadedDiscard) > w.desiredDiscard.Load() {
		// the owner raised the desired discard after this worker had already
		// settled; forced via SetState since Done is the highest run state
		// and AdvanceState alone could never move backward to Init.
		m.SetState(stateInit)
		m.Cont()
		return nil
	}

	w.mu.Lock()
	w.done = true
	w.mu.Unlock()

	if w.deleted {
		m.Finish()
		return nil
	}

	// Settle until RaiseQuality or DeleteRequest calls m.Cont() again.
	m.Idle()
	return nil
}

func (w *Worker) AbortImpl(ctx context.Context, m *statemachine.Machine) error {
	if w.decoder != nil && w.decodeHnd != 0 {
		w.decoder.AbortRequest(w.decodeHnd, false)
	}
	return nil
}

func (w *Worker) FinishImpl(ctx context.Context, m *statemachine.Machine) error {
	return nil
}

// Result returns the decoded image once the worker has reached Done, per
// Pool.GetRequestFinished.
func (w *Worker) Result() (discard int, raw, aux []byte, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.done {
		return 0, nil, nil, false
	}
	return w.loadedDiscard, w.raw, w.aux, true
}

// State returns a debug-friendly snapshot of the worker's progress.
func (w *Worker) State() FetchState {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	return FetchState{
		RunState:       workerStateName(w.machine.RunState()),
		LoadedDiscard:  w.loadedDiscard,
		RequestedSize:  w.requestedSize,
		FileSize:       w.fileSize,
		HTTPFailCount:  w.httpFailCount,
		RetryAttempt:   w.retryAttempt,
		BadPacketCount: w.udp.BadPackets(),
		Done:           done,
	}
}

func (w *Worker) markDeleted() {
	w.mu.Lock()
	w.deleted = true
	w.mu.Unlock()
	w.machine.Abort()
}
