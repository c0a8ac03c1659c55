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

// Package crashreport implements the crash-log submission path: a key-value
// report (static + dynamic debug info, trimmed previous-run log tail,
// minidump bytes, and the client-assigned CrashReportID) is CBOR-encoded
// and POSTed to CrashHostUrl through the same transport.Client used for
// textures, gated by CrashSubmitBehavior.
package crashreport

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/nabbar/httpcore/config"
	"github.com/nabbar/httpcore/header"
	"github.com/nabbar/httpcore/transport"
)

// Report is the crash-log persisted state: static and dynamic debug info,
// the trimmed tail of the previous run's log, minidump bytes, and the
// client-assigned CrashReportID returned by the server on a prior submit.
type Report struct {
	StaticDebugInfo  map[string]string `cbor:"static_debug_info"`
	DynamicDebugInfo map[string]string `cbor:"dynamic_debug_info"`
	PreviousLogTail  string            `cbor:"previous_log_tail"`
	Minidump         []byte            `cbor:"minidump,omitempty"`
	CrashReportID    string            `cbor:"crash_report_id,omitempty"`
}

// collectResponder bridges the transport's dispatch-goroutine callbacks to
// a synchronous Submit call via a one-shot channel.
type collectResponder struct {
	transport.BaseResponder

	once sync.Once
	done chan error
}

func newCollectResponder() *collectResponder {
	return &collectResponder{done: make(chan error, 1)}
}

func (r *collectResponder) HTTPSuccess(body []byte) {
	r.once.Do(func() { r.done <- nil })
}

func (r *collectResponder) HTTPFailure(status int, class transport.ErrorClass) {
	r.once.Do(func() {
		r.done <- ErrorSubmitFailed.Error(fmt.Errorf("status %d (%s)", status, class))
	})
}

// Submit encodes report as CBOR and POSTs it to cfg.CrashHostUrl through tc,
// honoring cfg.CrashSubmitBehavior. Ask is treated as the caller's
// responsibility -- Submit only refuses outright on NeverSend; a
// modal-prompt gate for Ask belongs to the UI layer.
func Submit(ctx context.Context, tc *transport.Client, cfg config.Config, report Report) error {
	if cfg.CrashSubmitBehavior == config.CrashSubmitNeverSend {
		return ErrorSubmitDeclined.Error(nil)
	}
	if len(cfg.CrashHostUrl) == 0 {
		return ErrorNoHostConfigured.Error(nil)
	}

	report.CrashReportID = cfg.CrashReportID

	body, err := cbor.Marshal(report)
	if err != nil {
		return ErrorEncode.Error(err)
	}

	h := header.NewRequestHeaders()
	_, _ = h.Add("Content-Type", "application/cbor", header.ReplaceIfExists)
	h.Finalize()

	resp := newCollectResponder()

	_, rerr := tc.Post(cfg.CrashHostUrl, body, resp, h)
	if rerr != nil {
		return ErrorSubmitFailed.Error(rerr)
	}

	select {
	case e := <-resp.done:
		return e
	case <-ctx.Done():
		return ErrorSubmitFailed.Error(ctx.Err())
	}
}
