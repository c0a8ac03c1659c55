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

// Package statemachine is the cooperative state-machine runtime shared by
// the HTTP-request state machine and the texture worker: a single engine
// goroutine drives cancellation, run-state advancement, idle/wake and
// parent/child completion.
package statemachine

// BaseState is the engine-owned lifecycle state of a machine, orthogonal to
// the subclass-defined RunState.
type BaseState int32

const (
	Initialize BaseState = iota
	Multiplex
	Abort
	Finish
	Killed
)

func (b BaseState) String() string {
	switch b {
	case Initialize:
		return "Initialize"
	case Multiplex:
		return "Multiplex"
	case Abort:
		return "Abort"
	case Finish:
		return "Finish"
	case Killed:
		return "Killed"
	default:
		return "Unknown"
	}
}

// RunState is the subclass-defined integer a machine advances through.
// Subclasses must order their states so that "more urgent" states have
// larger numeric values: AdvanceState's coalescing rule always keeps the
// largest requested value.
type RunState int64

// StateNamer optionally maps a RunState to a human-readable name for debug
// logging.
type StateNamer func(RunState) string
