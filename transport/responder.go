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

// Package transport owns the multi-request HTTP client: accountant-gated
// dispatch, cookie injection, per-request timeout policies, and the
// responder dispatch contract each request drives on completion.
package transport

import (
	"time"

	"github.com/nabbar/httpcore/header"
)

// ErrorClass names the transport-level failure categories surfaced to a
// Responder's HTTPFailure.
type ErrorClass string

const (
	ErrCouldntResolveHost ErrorClass = "CouldntResolveHost"
	ErrCouldntConnect     ErrorClass = "CouldntConnect"
	ErrSSLPeerCertificate ErrorClass = "SSLPeerCertificate"
	ErrSSLCACert          ErrorClass = "SSLCACert"
	ErrSSLConnectError    ErrorClass = "SSLConnectError"
	ErrOperationTimedOut  ErrorClass = "OperationTimedOut"
	ErrLowSpeed           ErrorClass = "LowSpeed"
	ErrCurlLockup         ErrorClass = "CurlLockup"
	ErrBadSocket          ErrorClass = "BadSocket"
	ErrInternalErrorOther ErrorClass = "InternalErrorOther"
	ErrCancelled          ErrorClass = "InternalError_Cancelled"
	ErrHTTPStatus         ErrorClass = "HTTPStatus" // status >= 400; the numeric status is carried alongside
)

// CompletionInfo carries the timing/size info passed to CompletedHeaders.
type CompletionInfo struct {
	RequestSentAt time.Time
	FirstByteAt   time.Time
	CompletedAt   time.Time
	BytesReceived int64
}

// Responder is the dispatch contract a caller supplies to Client.Request and
// its convenience wrappers. Each request runs CompletedHeaders once, then
// CompletedRaw when a 2xx, 3xx or >= 400 response was received, then exactly
// one of HTTPSuccess or HTTPFailure, except for a 3xx surfaced by
// PassRedirectStatus, which gets no HTTPSuccess/HTTPFailure call. The
// callbacks run on whichever goroutine completes the request.
type Responder interface {
	// NeedsHeaders reports whether response headers should be captured into
	// a header.ReceivedHeaders and handed to ReceivedHTTPHeader.
	NeedsHeaders() bool

	// ReceivedHTTPHeader is called once, after the status line and headers
	// are fully parsed, when NeedsHeaders() is true.
	ReceivedHTTPHeader(h *header.ReceivedHeaders)

	// CompletedHeaders runs on every completion (success, failure, or a
	// surfaced 3xx) before the terminal callback.
	CompletedHeaders(status int, reason string, info CompletionInfo)

	// CompletedRaw delivers the raw response body. It runs before
	// HTTPSuccess/HTTPFailure, and not at all when the request ends without
	// an HTTP status (transport failure, cancellation, timeout).
	CompletedRaw(body []byte)

	// HTTPSuccess runs for a 2xx response. HTTPFailure runs for a status
	// >= 400 (class ErrHTTPStatus) and for transport failures,
	// cancellation and timeouts.
	HTTPSuccess(body []byte)
	HTTPFailure(status int, class ErrorClass)
}

// BaseResponder is embeddable by responders that only care about a subset of
// the Responder contract; it supplies no-op defaults for the rest.
type BaseResponder struct{}

func (BaseResponder) NeedsHeaders() bool                                      { return false }
func (BaseResponder) ReceivedHTTPHeader(h *header.ReceivedHeaders)             {}
func (BaseResponder) CompletedHeaders(status int, reason string, info CompletionInfo) {}
func (BaseResponder) CompletedRaw(body []byte)                                {}
func (BaseResponder) HTTPSuccess(body []byte)                                 {}
func (BaseResponder) HTTPFailure(status int, class ErrorClass)                {}
