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

package transport

import (
	"context"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nabbar/httpcore/accountant"
	"github.com/nabbar/httpcore/cookiejar"
	"github.com/nabbar/httpcore/header"
	"github.com/nabbar/httpcore/statemachine"
)

// The HTTP-request state machine's run states, ordered so that a genuine
// completion can never be lost to a racing timeout under the larger-wins
// coalescing rule (RemovedAfterFinished > TimedOut).
const (
	stateAddRequest           statemachine.RunState = 0
	stateWaitAdded            statemachine.RunState = 1
	stateWaitRemoved          statemachine.RunState = 2
	stateTimedOut             statemachine.RunState = 3
	stateBadFileDescriptor    statemachine.RunState = 4
	stateRemovedAfterFinished statemachine.RunState = 5
)

func requestStateName(s statemachine.RunState) string {
	switch s {
	case stateAddRequest:
		return "AddRequest"
	case stateWaitAdded:
		return "WaitAdded"
	case stateWaitRemoved:
		return "WaitRemoved"
	case stateTimedOut:
		return "TimedOut"
	case stateBadFileDescriptor:
		return "BadFileDescriptor"
	case stateRemovedAfterFinished:
		return "RemovedAfterFinished"
	default:
		return "Unknown"
	}
}

// RequestOptions configures one outgoing request.
type RequestOptions struct {
	Method string
	URL    string
	Body   io.Reader

	Headers   *header.RequestHeaders
	Responder Responder

	Capability  accountant.Capability
	Approvement *accountant.Token // pre-approved token; if nil the transport asks the accountant itself

	KeepAlive          bool
	NoDoesAuth         bool
	AllowCompressed    bool
	FollowRedirect     bool
	PassRedirectStatus bool

	ParentMachine     *statemachine.Machine
	ParentTargetState statemachine.RunState
	Engine            *statemachine.Engine

	Policy TimeoutPolicy
}

// PendingRequest is the handle returned to the producer; Cancel is safe to
// call at any point, including after completion.
type PendingRequest struct {
	machine *statemachine.Machine
}

// Cancel requests cancellation. Idempotent and safe after completion.
func (p *PendingRequest) Cancel() {
	p.machine.Abort()
}

// Finished reports whether the request has reached a terminal state.
func (p *PendingRequest) Finished() bool {
	return p.machine.Finished()
}

type requestImpl struct {
	client  *Client
	opts    RequestOptions
	service string

	enqueuedAt time.Time
	token      *accountant.Token
	cancel     context.CancelFunc
	timer      *time.Timer

	once sync.Once
}

func (r *requestImpl) InitializeImpl(ctx context.Context, m *statemachine.Machine) error {
	r.enqueuedAt = time.Now()
	return nil
}

func (r *requestImpl) MultiplexImpl(ctx context.Context, m *statemachine.Machine, state statemachine.RunState) error {
	switch state {
	case stateAddRequest:
		return r.dispatchAddRequest(ctx, m)
	case stateWaitAdded:
		m.SetState(stateWaitRemoved)
		m.Idle()
		return nil
	case stateWaitRemoved:
		m.Idle()
		return nil
	case stateTimedOut:
		r.complete(0, ErrOperationTimedOut, nil, false)
		m.Finish()
		return nil
	case stateBadFileDescriptor, stateRemovedAfterFinished:
		m.Finish()
		return nil
	}
	return nil
}

func (r *requestImpl) dispatchAddRequest(ctx context.Context, m *statemachine.Machine) error {
	if r.token == nil {
		if r.opts.Approvement != nil {
			r.token = r.opts.Approvement
		} else if r.client.acct.IsBlacklisted(r.service) {
			r.complete(0, ErrBadSocket, nil, false)
			m.Finish()
			return nil
		} else if tok, ok := r.client.acct.Approve(r.service, r.opts.Capability); ok {
			r.token = tok
		} else {
			if time.Since(r.enqueuedAt) > r.opts.Policy.MaxTotalDelay {
				r.complete(0, ErrOperationTimedOut, nil, false)
				m.Finish()
			}
			// else: stay runnable; a missing token is never surfaced to the
			// producer, approvement is simply retried on every engine tick.
			return nil
		}
	}

	r.startAsync(m)
	m.SetState(stateWaitRemoved)
	m.Idle()
	return nil
}

func (r *requestImpl) startAsync(m *statemachine.Machine) {
	var retries int32

	base := context.WithValue(context.Background(), retryCountKey{}, &retries)
	base = context.WithValue(base, redirectOptsKey{}, redirectOpts{
		passStatus: r.opts.PassRedirectStatus,
		max:        r.client.maxRedirects,
	})

	reqCtx, cancel := context.WithTimeout(base, r.opts.Policy.overallTimeout())
	r.cancel = cancel

	r.timer = time.AfterFunc(r.opts.Policy.overallTimeout(), func() {
		m.AdvanceState(stateTimedOut)
	})

	go r.execute(reqCtx, m)
}

func (r *requestImpl) execute(ctx context.Context, m *statemachine.Machine) {
	req, err := retryablehttp.NewRequestWithContext(ctx, r.opts.Method, r.opts.URL, r.opts.Body)
	if err != nil {
		r.complete(0, ErrInternalErrorOther, nil, false)
		m.AdvanceState(stateBadFileDescriptor)
		return
	}

	if r.opts.Headers != nil {
		r.opts.Headers.Walk(func(key, value string) bool {
			req.Header.Set(key, value)
			return true
		})
	}
	if !r.opts.KeepAlive {
		req.Header.Set("Connection", "close")
	}
	if !r.opts.AllowCompressed {
		req.Header.Set("Accept-Encoding", "identity")
	}

	if r.client.jar != nil {
		u := req.URL
		for _, c := range r.client.jar.Snapshot(u.Hostname(), u.Path) {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}

	rsp, doErr := r.client.rc.Do(req)
	if doErr != nil {
		class := classifyError(doErr)
		r.client.acct.NoteFailure(r.service, failureReasonFor(class, 0))
		if r.token != nil {
			r.token.Release()
		}
		r.complete(0, class, nil, false)
		m.AdvanceState(stateBadFileDescriptor)
		return
	}
	defer rsp.Body.Close()

	if r.client.jar != nil {
		for _, c := range rsp.Cookies() {
			path := c.Path
			if path == "" {
				path = "/"
			}
			r.client.jar.Set(cookiejar.Cookie{
				Domain: req.URL.Hostname(),
				Path:   path,
				Name:   c.Name,
				Value:  c.Value,
				Secure: c.Secure,
				Expiry: c.Expires,
			})
		}
	}

	if r.opts.Responder != nil && r.opts.Responder.NeedsHeaders() {
		rh := header.NewReceivedHeaders()
		for k, vs := range rsp.Header {
			for _, v := range vs {
				rh.Add(k, v)
			}
		}
		r.opts.Responder.ReceivedHTTPHeader(rh)
	}

	body, readErr := io.ReadAll(rsp.Body)

	if r.token != nil {
		r.token.Release()
	}

	if readErr != nil {
		r.client.acct.NoteFailure(r.service, accountant.FailureOther)
		r.complete(rsp.StatusCode, ErrInternalErrorOther, nil, false)
		m.AdvanceState(stateBadFileDescriptor)
		return
	}

	if rsp.StatusCode >= 400 {
		r.client.acct.NoteFailure(r.service, failureReasonFor("", rsp.StatusCode))
	} else {
		r.client.acct.NoteSuccess(r.service)
	}

	r.complete(rsp.StatusCode, "", body, rsp.StatusCode < 300)
	m.AdvanceState(stateRemovedAfterFinished)
}

// complete runs the responder's terminal callback sequence exactly once,
// regardless of which of execute/Abort/TimedOut reaches it first.
func (r *requestImpl) complete(status int, class ErrorClass, body []byte, success bool) {
	r.once.Do(func() {
		resp := r.opts.Responder
		if resp == nil {
			return
		}

		info := CompletionInfo{CompletedAt: time.Now()}
		if len(body) > 0 {
			info.BytesReceived = int64(len(body))
		}
		resp.CompletedHeaders(status, string(class), info)

		switch {
		case success:
			resp.CompletedRaw(body)
			resp.HTTPSuccess(body)
		case status >= 300 && status < 400:
			// PassRedirectStatus surfaced this 3xx instead of following it;
			// not a failure, just not auto-followed.
			resp.CompletedRaw(body)
		case status >= 400:
			resp.CompletedRaw(body)
			resp.HTTPFailure(status, ErrHTTPStatus)
		default:
			resp.HTTPFailure(status, class)
		}
	})
}

func (r *requestImpl) AbortImpl(ctx context.Context, m *statemachine.Machine) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.complete(0, ErrCancelled, nil, false)
	return nil
}

func (r *requestImpl) FinishImpl(ctx context.Context, m *statemachine.Machine) error {
	if r.timer != nil {
		r.timer.Stop()
	}
	if r.token != nil {
		r.token.Release()
	}
	r.opts.Responder = nil
	return nil
}

// classifyError maps a client-side transport error to the ErrorClass
// taxonomy surfaced through Responder.HTTPFailure.
func classifyError(err error) ErrorClass {
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrOperationTimedOut
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrCouldntResolveHost
	}

	var certErr x509.UnknownAuthorityError
	if errors.As(err, &certErr) {
		return ErrSSLCACert
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return ErrSSLPeerCertificate
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return ErrCouldntConnect
		}
		if opErr.Timeout() {
			return ErrOperationTimedOut
		}
	}

	return ErrInternalErrorOther
}

// failureReasonFor maps a transport error class or HTTP status to the
// accountant's failure taxonomy.
func failureReasonFor(class ErrorClass, status int) accountant.FailureReason {
	switch class {
	case ErrOperationTimedOut:
		return accountant.FailureCurlTimeout
	case ErrLowSpeed:
		return accountant.FailureLowSpeed
	}

	switch status {
	case http.StatusNotFound:
		return accountant.FailureNotFound
	case http.StatusForbidden:
		return accountant.FailureForbidden
	case http.StatusServiceUnavailable:
		return accountant.FailureServiceUnavailable
	case http.StatusRequestedRangeNotSatisfiable:
		return accountant.FailureRangeNotSatisfiable
	}

	return accountant.FailureOther
}
