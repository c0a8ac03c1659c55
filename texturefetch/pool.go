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
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	liberr "github.com/nabbar/httpcore/errors"
	"github.com/nabbar/httpcore/accountant"
	"github.com/nabbar/httpcore/header"
	"github.com/nabbar/httpcore/transport"
)

// MaxConcurrentWorkers bounds how many workers a single tick dispatches
// concurrently, mirroring the accountant's own per-service caps rather than
// leaving the pool unbounded.
const MaxConcurrentWorkers = 8

// defaultMetricsInterval paces the ViewerMetrics POST when Options leaves
// MetricsInterval unset.
const defaultMetricsInterval = time.Minute

// Options configures a Pool with the settings the texture pipeline consumes
// directly.
type Options struct {
	UseHTTP       bool // ImagePipelineUseHTTP
	DecodeDisabled bool // TextureDecodeDisabled: skip decode, debug only

	// MetricsURL is the ViewerMetrics endpoint the pool POSTs its snapshot
	// to on a timer; empty disables reporting. MetricsInterval of 0 uses
	// defaultMetricsInterval.
	MetricsURL      string
	MetricsInterval time.Duration
}

// Pool is the texture-fetch pipeline's public facade: one Worker state
// machine per in-flight image id, visited
// in desired-priority order by a bounded fan-out of goroutines every tick,
// rather than relying on an Engine's plain FIFO (statemachine.Machine.Visit
// exists specifically for this).
type Pool struct {
	opts    Options
	cache   CacheClient
	decoder Decoder
	udpTx   UDPTransport
	http    *transport.Client
	acct    *accountant.Accountant
	metrics *Metrics

	mu      sync.RWMutex
	workers map[uuid.UUID]*Worker

	inFlight atomic.Int32

	tickInterval time.Duration
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	running      atomic.Bool
}

// New returns an unstarted Pool. cache/decoder/udpTx may be nil; a nil cache
// disables cache read/write (every fetch goes straight to network and is
// never persisted), a nil decoder means workers stop at the raw formatted
// bytes, and a nil udpTx disables the UDP fallback path.
func New(opts Options, cache CacheClient, decoder Decoder, udpTx UDPTransport, http *transport.Client, acct *accountant.Accountant, metrics *Metrics) *Pool {
	return &Pool{
		opts:         opts,
		cache:        cache,
		decoder:      decoder,
		udpTx:        udpTx,
		http:         http,
		acct:         acct,
		metrics:      metrics,
		workers:      make(map[uuid.UUID]*Worker),
		tickInterval: 10 * time.Millisecond,
	}
}

// Start launches the pool's scheduling loop.
func (p *Pool) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()

	if p.opts.MetricsURL != "" && p.http != nil {
		interval := p.opts.MetricsInterval
		if interval <= 0 {
			interval = defaultMetricsInterval
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.postMetrics()
				}
			}
		}()
	}
}

// Stop halts the scheduling loop and waits for the in-flight tick to finish.
func (p *Pool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) tick(ctx context.Context) {
	p.mu.RLock()
	ordered := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		ordered = append(ordered, w)
	}
	p.mu.RUnlock()

	// Priority fairness among equal-priority workers is FIFO by enqueue time;
	// sort.Slice is not stable, so break ties on enqueuedAt explicitly rather
	// than relying on input order.
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority() != ordered[j].Priority() {
			return ordered[i].Priority() > ordered[j].Priority()
		}
		return ordered[i].enqueuedAt.Before(ordered[j].enqueuedAt)
	})

	p.inFlight.Store(int32(len(ordered)))
	p.metrics.setInFlight(len(ordered))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentWorkers)

	var finished []*Worker
	var mu sync.Mutex

	for _, w := range ordered {
		w := w
		g.Go(func() error {
			if w.machine.Visit(gctx) {
				mu.Lock()
				finished = append(finished, w)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(finished) == 0 {
		return
	}

	p.mu.Lock()
	for _, w := range finished {
		delete(p.workers, w.ID)
	}
	p.mu.Unlock()
}

// CreateRequest registers a desired texture fetch. Re-registering an id already in flight
// updates its desired discard/size/priority in place instead of starting a
// second worker for the same image.
func (p *Pool) CreateRequest(id uuid.UUID, httpURL, simHost string, isMapTile bool, priority int32, desiredDiscard int, desiredSize int64, needsAux, canUseHTTP bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.workers[id]; ok {
		w.RaiseQuality(desiredDiscard, desiredSize)
		w.SetPriority(priority)
		return true
	}

	if httpURL == "" && simHost == "" {
		return false
	}

	w := newWorker(p, id, httpURL, simHost, isMapTile, priority, desiredDiscard, desiredSize, needsAux, canUseHTTP)
	p.workers[id] = w
	return true
}

// UpdateRequestPriority reprioritizes an in-flight request.
func (p *Pool) UpdateRequestPriority(id uuid.UUID, priority int32) {
	p.mu.RLock()
	w, ok := p.workers[id]
	p.mu.RUnlock()

	if ok {
		w.SetPriority(priority)
	}
}

// GetRequestFinished returns the decoded image once id has reached Done.
func (p *Pool) GetRequestFinished(id uuid.UUID) (discard int, raw, aux []byte, ok bool) {
	p.mu.RLock()
	w, present := p.workers[id]
	p.mu.RUnlock()

	if !present {
		return 0, nil, nil, false
	}
	return w.Result()
}

// GetFetchState returns a debug snapshot of id's worker.
func (p *Pool) GetFetchState(id uuid.UUID) (FetchState, liberr.Error) {
	p.mu.RLock()
	w, ok := p.workers[id]
	p.mu.RUnlock()

	if !ok {
		return FetchState{}, ErrorUnknownRequest.Error(nil)
	}
	return w.State(), nil
}

// DeleteRequest cancels and drops id when cancel is true: the worker is
// removed from the pool and aborted. When cancel is false the call changes
// nothing; the worker stays registered and runs to Done on its own.
func (p *Pool) DeleteRequest(id uuid.UUID, cancel bool) {
	p.mu.Lock()
	w, ok := p.workers[id]
	if ok && cancel {
		delete(p.workers, id)
	}
	p.mu.Unlock()

	if ok && cancel {
		w.markDeleted()
	}
}

// ReceiveImageHeader feeds a UDP header packet (codec, total packet count,
// authoritative file size, first data chunk) to id's worker, if one exists
// and is currently waiting on the UDP path.
func (p *Pool) ReceiveImageHeader(id uuid.UUID, codec uint8, totalPackets int, fileSize int64, firstChunk []byte) {
	p.mu.RLock()
	w, ok := p.workers[id]
	p.mu.RUnlock()

	if ok {
		w.receiveHeader(codec, totalPackets, fileSize, firstChunk)
	}
}

// ReceiveImagePacket feeds one UDP data packet to id's worker.
func (p *Pool) ReceiveImagePacket(id uuid.UUID, index int, data []byte) {
	p.mu.RLock()
	w, ok := p.workers[id]
	p.mu.RUnlock()

	if ok {
		w.receivePacket(index, data)
	}
}

// recordFetchResult records metrics for one completed attempt (success or
// terminal failure) of w.
func (p *Pool) recordFetchResult(w *Worker, ok bool) {
	dur := time.Since(w.startedAt)
	bytes := len(w.formatted)
	p.metrics.observe(w.kind, w.usedTransport, dur, bytes, ok)
}

// metricsResponder raises the data-break flag when a ViewerMetrics POST
// fails, so the next snapshot reports the gap.
type metricsResponder struct {
	transport.BaseResponder
	m *Metrics
}

func (r *metricsResponder) HTTPFailure(status int, class transport.ErrorClass) {
	r.m.noteDataBreak()
}

// postMetrics POSTs the current ViewerMetrics snapshot to Options.MetricsURL.
func (p *Pool) postMetrics() {
	snap := p.metrics.Snapshot(&p.inFlight)

	body, err := json.Marshal(snap)
	if err != nil {
		return
	}

	hdr := header.NewRequestHeaders()
	_, _ = hdr.Add("Content-Type", "application/json", header.ReplaceIfExists)

	if _, e := p.http.Post(p.opts.MetricsURL, body, &metricsResponder{m: p.metrics}, hdr); e != nil {
		p.metrics.noteDataBreak()
	}
}
