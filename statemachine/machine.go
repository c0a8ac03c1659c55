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

	liberr "github.com/nabbar/httpcore/errors"
	errpool "github.com/nabbar/httpcore/errors/pool"
)

// Impl is implemented by the concrete workflow owning a Machine: the hooks
// the runtime calls at each transition.
type Impl interface {
	// InitializeImpl runs once, on the first engine visit.
	InitializeImpl(ctx context.Context, m *Machine) error
	// MultiplexImpl runs on every non-idle visit while the machine is in
	// BaseState Multiplex.
	MultiplexImpl(ctx context.Context, m *Machine, state RunState) error
	// AbortImpl runs once when the machine transitions to Abort.
	AbortImpl(ctx context.Context, m *Machine) error
	// FinishImpl runs once when the machine transitions to Finish.
	FinishImpl(ctx context.Context, m *Machine) error
}

// Machine is the cooperative state machine base. All Impl calls happen on
// the owning Engine's tick goroutine; AdvanceState is the only entry point
// safe to call from any other goroutine (e.g. an HTTP completion or UDP
// receive callback).
type Machine struct {
	impl Impl

	base atomic.Int32
	run  atomic.Int64

	idle        atomic.Bool
	abortReq    atomic.Bool
	finishReq   atomic.Bool
	dispatching atomic.Bool
	initialized atomic.Bool
	finished    atomic.Bool
	killed      atomic.Bool

	parent             *Machine
	parentTargetState  RunState
	abortOnParentAbort bool
	debug              bool

	childMu  sync.Mutex
	children []*Machine

	startedAt atomic.Int64 // unix nano, 0 until Run
	errs      errpool.Pool

	namer StateNamer
}

// New returns a Machine driven by impl. abortOnParentAbort defaults to true.
func New(impl Impl) *Machine {
	m := &Machine{
		impl:               impl,
		abortOnParentAbort: true,
		errs:               errpool.New(),
	}
	m.base.Store(int32(Initialize))
	return m
}

// SetDebug toggles trace logging at the call sites that check it.
func (m *Machine) SetDebug(d bool) { m.debug = d }

// Debug reports whether trace logging is enabled for this machine.
func (m *Machine) Debug() bool { return m.debug }

// SetStateNamer attaches a RunState->name table for debug output.
func (m *Machine) SetStateNamer(n StateNamer) { m.namer = n }

// SetParent links m to a parent machine that will be signalled via
// AdvanceState(parentTargetState) when m finishes, and whose abort cascades
// to m when abortOnParentAbort is true. Must be called before Run.
func (m *Machine) SetParent(parent *Machine, parentTargetState RunState, abortOnParentAbort bool) {
	m.parent = parent
	m.parentTargetState = parentTargetState
	m.abortOnParentAbort = abortOnParentAbort

	if parent != nil {
		parent.childMu.Lock()
		parent.children = append(parent.children, m)
		parent.childMu.Unlock()
	}
}

// BaseState returns the current engine-owned lifecycle state.
func (m *Machine) BaseState() BaseState {
	return BaseState(m.base.Load())
}

func (m *Machine) setBaseState(s BaseState) {
	m.base.Store(int32(s))
}

// RunState returns the current subclass run-state.
func (m *Machine) RunState() RunState {
	return RunState(m.run.Load())
}

// AdvanceState requests a transition to newState. Idempotent coalescing
// rule: if multiple advances are requested before the next dispatch, the
// largest run-state wins. Thread-safe; this is the only method meant to be
// called from outside the engine thread.
func (m *Machine) AdvanceState(newState RunState) {
	for {
		cur := m.run.Load()
		if int64(newState) <= cur {
			break
		}
		if m.run.CompareAndSwap(cur, int64(newState)) {
			break
		}
	}
	m.Cont()
}

// SetState moves between internal states during a dispatch; ignored unless
// the machine is currently running its own MultiplexImpl.
func (m *Machine) SetState(s RunState) liberr.Error {
	if !m.dispatching.Load() {
		return ErrorSetStateOutsideDispatch.Error(nil)
	}
	m.run.Store(int64(s))
	return nil
}

// Idle marks the machine non-runnable until Cont, AdvanceState, or a child
// completion wakes it.
func (m *Machine) Idle() {
	m.idle.Store(true)
}

// IdleExpected marks the machine idle only if no later AdvanceState already
// superseded expected; returns whether it actually went idle.
func (m *Machine) IdleExpected(expected RunState) bool {
	if m.run.Load() != int64(expected) {
		return false
	}
	m.idle.Store(true)
	return true
}

// Cont wakes the machine from idle without changing run-state.
func (m *Machine) Cont() {
	m.idle.Store(false)
}

// IsIdle reports whether the machine is currently idle.
func (m *Machine) IsIdle() bool {
	return m.idle.Load()
}

// Abort requests cancellation. The engine will dispatch AbortImpl then
// FinishImpl on the next visit. Children registered via SetParent with
// abortOnParentAbort=true are aborted in turn.
func (m *Machine) Abort() {
	m.abortReq.Store(true)
	m.Cont()

	m.childMu.Lock()
	children := make([]*Machine, len(m.children))
	copy(children, m.children)
	m.childMu.Unlock()

	for _, c := range children {
		if c.abortOnParentAbort {
			c.Abort()
		}
	}
}

// Aborted reports whether Abort has been requested.
func (m *Machine) Aborted() bool {
	return m.abortReq.Load()
}

// Finish requests normal completion.
func (m *Machine) Finish() {
	m.finishReq.Store(true)
	m.Cont()
}

// Finished reports whether FinishImpl has run.
func (m *Machine) Finished() bool {
	return m.finished.Load()
}

// Kill releases storage; legal only from BaseState Finish or after
// FinishImpl has run.
func (m *Machine) Kill() liberr.Error {
	if !m.finished.Load() {
		return ErrorKillBeforeFinish.Error(nil)
	}
	m.killed.Store(true)
	return nil
}

// Killed reports whether Kill has completed.
func (m *Machine) Killed() bool {
	return m.killed.Load()
}

// Uptime returns the duration since Run was called, or 0 if not yet run.
func (m *Machine) Uptime() time.Duration {
	start := m.startedAt.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

// IsRunning reports whether the machine has started and has not yet been killed.
func (m *Machine) IsRunning() bool {
	return m.startedAt.Load() != 0 && !m.killed.Load()
}

// ErrorsLast returns the most recently recorded impl error, if any.
func (m *Machine) ErrorsLast() error {
	return m.errs.Last()
}

// ErrorsList returns every impl error recorded over the machine's lifetime.
func (m *Machine) ErrorsList() []error {
	return m.errs.Slice()
}

func (m *Machine) recordError(err error) {
	if err != nil {
		m.errs.Add(err)
	}
}

// Run schedules m on engine (DefaultEngine() if nil), starting at BaseState
// Initialize. Returns immediately; dispatch happens on the engine's tick
// goroutine. Calling Run twice on the same machine is an error.
func (m *Machine) Run(engine *Engine) liberr.Error {
	if !m.startedAt.CompareAndSwap(0, time.Now().UnixNano()) {
		return ErrorAlreadyRunning.Error(nil)
	}

	if engine == nil {
		engine = DefaultEngine()
	}

	engine.register(m)
	return nil
}

// Visit runs exactly one dispatch pass for m outside of any Engine's own
// tick loop. It exists for callers (texturefetch's priority-ordered worker
// pool) that need to impose their own scheduling order across a set of
// machines instead of the plain insertion-order FIFO an Engine applies;
// such a caller never calls Run for those machines, so no Engine holds or
// ticks them, and drives them exclusively through Visit.
func (m *Machine) Visit(ctx context.Context) (done bool) {
	return m.visit(ctx)
}

// visit runs exactly one engine-tick's worth of dispatch for m. It is called
// by Engine and must never be called directly by application code.
func (m *Machine) visit(ctx context.Context) (done bool) {
	if m.initialized.CompareAndSwap(false, true) {
		m.recordError(m.impl.InitializeImpl(ctx, m))
		m.setBaseState(Multiplex)
	}

	switch {
	case m.abortReq.Load() && m.BaseState() != Finish && m.BaseState() != Killed:
		m.setBaseState(Abort)
		m.recordError(m.impl.AbortImpl(ctx, m))
		m.setBaseState(Finish)
		m.recordError(m.impl.FinishImpl(ctx, m))
		m.finished.Store(true)
		m.notifyParent()
		return true

	case m.finishReq.Load() && m.BaseState() != Finish && m.BaseState() != Killed:
		m.setBaseState(Finish)
		m.recordError(m.impl.FinishImpl(ctx, m))
		m.finished.Store(true)
		m.notifyParent()
		return true

	case m.BaseState() == Multiplex && !m.idle.Load():
		m.dispatching.Store(true)
		m.recordError(m.impl.MultiplexImpl(ctx, m, m.RunState()))
		m.dispatching.Store(false)
		return false

	default:
		return m.finished.Load()
	}
}

func (m *Machine) notifyParent() {
	if m.parent != nil {
		m.parent.AdvanceState(m.parentTargetState)
	}
}
