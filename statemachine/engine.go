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

package statemachine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// defaultTickInterval is how often a quiescent Engine re-polls its
	// registered machines when none of them is runnable.
	defaultTickInterval = 10 * time.Millisecond
	// defaultTickBudget bounds how long a single tick may spend dispatching
	// runnable machines before yielding back to the scheduler.
	defaultTickBudget = 50 * time.Millisecond
)

// Engine is a single cooperative-scheduler thread: one goroutine visits every
// runnable registered Machine, in insertion order, once per tick. Concurrent
// ticks never overlap; AdvanceState from any other goroutine only ever
// touches atomics and is safe at any time.
type Engine struct {
	mu       sync.Mutex
	machines []*Machine

	tickInterval time.Duration
	tickBudget   time.Duration

	startedAt atomic.Int64
	running   atomic.Bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

var (
	defaultEngineOnce sync.Once
	defaultEngine     *Engine
)

// DefaultEngine returns the process-wide main-thread-equivalent engine used
// when Machine.Run is called without an explicit Engine.
func DefaultEngine() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = NewEngine()
		_ = defaultEngine.Start(context.Background())
	})
	return defaultEngine
}

// NewEngine returns a stopped Engine with the default tick interval and
// per-tick dispatch budget.
func NewEngine() *Engine {
	return &Engine{
		tickInterval: defaultTickInterval,
		tickBudget:   defaultTickBudget,
	}
}

// SetTickInterval overrides the polling interval used while idle. Must be
// called before Start.
func (e *Engine) SetTickInterval(d time.Duration) {
	if d > 0 {
		e.tickInterval = d
	}
}

// SetTickBudget overrides the per-tick dispatch wall-clock budget. Must be
// called before Start.
func (e *Engine) SetTickBudget(d time.Duration) {
	if d > 0 {
		e.tickBudget = d
	}
}

// register adds m to the set of machines this engine visits each tick.
func (e *Engine) register(m *Machine) {
	e.mu.Lock()
	e.machines = append(e.machines, m)
	e.mu.Unlock()
}

// Start launches the engine's tick goroutine. Idempotent: calling Start on an
// already-running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.startedAt.Store(time.Now().UnixNano())

	g, gctx := errgroup.WithContext(ctx)
	e.group = g

	g.Go(func() error {
		ticker := time.NewTicker(e.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				e.tick(gctx)
			}
		}
	})

	return nil
}

// Stop signals the tick goroutine to exit and waits for it to do so.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}

	if e.cancel != nil {
		e.cancel()
	}

	if e.group != nil {
		return e.group.Wait()
	}
	return nil
}

// IsRunning reports whether the engine's tick goroutine is active.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Uptime returns the duration since Start, or 0 if never started.
func (e *Engine) Uptime() time.Duration {
	start := e.startedAt.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

// Tick runs exactly one dispatch pass synchronously, for tests and for
// callers that want explicit control over when a pass happens rather than
// relying on the background ticker.
func (e *Engine) Tick(ctx context.Context) {
	e.tick(ctx)
}

func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	snapshot := make([]*Machine, len(e.machines))
	copy(snapshot, e.machines)
	e.mu.Unlock()

	deadline := time.Now().Add(e.tickBudget)

	for _, m := range snapshot {
		if time.Now().After(deadline) {
			break
		}
		m.visit(ctx)
	}

	// Drop finished-and-killed machines from the live list rather than
	// replacing it wholesale: register may have appended new machines while
	// this tick ran off the snapshot.
	e.mu.Lock()
	kept := e.machines[:0]
	for _, m := range e.machines {
		if !(m.finished.Load() && m.killed.Load()) {
			kept = append(kept, m)
		}
	}
	e.machines = kept
	e.mu.Unlock()
}
