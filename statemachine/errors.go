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
	"fmt"

	liberr "github.com/nabbar/httpcore/errors"
)

const (
	ErrorAlreadyRunning liberr.CodeError = iota + liberr.MinPkgStateMachine // Run called twice on the same machine
	ErrorKillBeforeFinish                                                   // Kill called before the machine reached Finish
	ErrorSetStateOutsideDispatch                                            // SetState called while the machine is not dispatching
)

func init() {
	if liberr.ExistInMapMessage(ErrorAlreadyRunning) {
		panic(fmt.Errorf("error code collision with package httpcore/statemachine"))
	}
	liberr.RegisterIdFctMessage(ErrorAlreadyRunning, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrorAlreadyRunning:
		return "state machine is already running"
	case ErrorKillBeforeFinish:
		return "kill is only legal from finish or after finish_impl"
	case ErrorSetStateOutsideDispatch:
		return "set_state ignored: machine is not currently dispatching"
	}

	return liberr.NullMessage
}
