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
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nabbar/httpcore/accountant"
	"github.com/nabbar/httpcore/cookiejar"
	"github.com/nabbar/httpcore/header"
	liberr "github.com/nabbar/httpcore/errors"
	"github.com/nabbar/httpcore/logger"
	"github.com/nabbar/httpcore/statemachine"
)

// HTTPMaxRetryCount bounds retries for any failure other than 503, which
// retries without limit (backoff is external to the count).
const HTTPMaxRetryCount = 3

// unlimitedRetryCap is a hard ceiling on 503 retries: "unlimited" still must
// not spin a goroutine forever against a permanently down host.
const unlimitedRetryCap = 200

type retryCountKey struct{}

type redirectOptsKey struct{}

type redirectOpts struct {
	passStatus bool
	max        int
}

// checkRedirectPolicy: PassRedirectStatus disables following entirely (the
// 3xx is surfaced to the responder as a completed response); otherwise
// redirects are followed up to max times.
func checkRedirectPolicy(req *http.Request, via []*http.Request) error {
	opts, _ := req.Context().Value(redirectOptsKey{}).(redirectOpts)

	if opts.passStatus {
		return http.ErrUseLastResponse
	}

	max := opts.max
	if max <= 0 {
		max = 10
	}
	if len(via) >= max {
		return ErrorTooManyRedirects.Error(nil)
	}
	return nil
}

// Client owns the accountant-gated, cookie-aware HTTP pipeline. Its
// retry/backoff policy is delegated to retryablehttp rather than
// hand-rolled.
type Client struct {
	rc   *retryablehttp.Client
	acct *accountant.Accountant
	jar  *cookiejar.Store
	log  logger.Logger

	hosts *hostOverride

	maxRedirects      int
	defaultPolicy     TimeoutPolicy
	defaultCapability accountant.Capability
}

// New returns a Client backed by acct for concurrency/blacklist gating, jar
// for cookie injection/capture (nil disables cookie handling), and log for
// diagnostic output (nil uses a silent logger).
func New(acct *accountant.Accountant, jar *cookiejar.Store, log logger.Logger) *Client {
	if log == nil {
		log = logger.New(io.Discard, logger.NilLevel)
	}

	c := &Client{
		acct:              acct,
		jar:               jar,
		log:               log,
		hosts:             newHostOverride(),
		maxRedirects:      10,
		defaultPolicy:     DefaultTimeoutPolicy,
		defaultCapability: accountant.CapabilityOther,
	}

	rc := retryablehttp.NewClient()
	rc.Logger = logger.NewHCLogger(log)
	rc.RetryMax = unlimitedRetryCap
	rc.CheckRetry = checkRetryPolicy
	rc.HTTPClient.CheckRedirect = checkRedirectPolicy
	rc.HTTPClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
			return c.hosts.dialContext(ctx, c.defaultPolicy, network, address)
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        25,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	c.rc = rc

	return c
}

// SetMaxRedirects overrides the default of 10.
func (c *Client) SetMaxRedirects(n int) { c.maxRedirects = n }

// SetDefaultPolicy overrides the TimeoutPolicy applied when a request does
// not specify one, including the dial timeout used by host overrides.
func (c *Client) SetDefaultPolicy(p TimeoutPolicy) { c.defaultPolicy = p }

// AddHostOverride steers connections to "from" (host:port, "*.host:port"
// wildcards accepted) at "to" (host:port) instead of resolving "from" via
// system DNS. Useful for pinning a service to a known address without
// touching /etc/hosts.
func (c *Client) AddHostOverride(from, to string) { c.hosts.Add(from, to) }

// DelHostOverride removes a mapping added by AddHostOverride.
func (c *Client) DelHostOverride(from string) { c.hosts.Del(from) }

// checkRetryPolicy is the retryablehttp.CheckRetry that retries 503 without
// limit and everything else up to HTTPMaxRetryCount.
func checkRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
		return true, nil
	}

	if cnt, ok := ctx.Value(retryCountKey{}).(*int32); ok {
		if atomic.AddInt32(cnt, 1) > HTTPMaxRetryCount {
			return false, nil
		}
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Request constructs and submits a request; it returns immediately with a
// handle the producer may Cancel.
func (c *Client) Request(opts RequestOptions) (*PendingRequest, liberr.Error) {
	if opts.Method == "" || opts.URL == "" {
		return nil, ErrorParamsInvalid.Error(nil)
	}
	if opts.Policy == (TimeoutPolicy{}) {
		opts.Policy = c.defaultPolicy
	}
	if opts.Capability == "" {
		opts.Capability = c.defaultCapability
	}

	service, err := accountant.CanonicalService(opts.URL)
	if err != nil {
		return nil, ErrorParamsInvalid.ErrorParent(err)
	}

	impl := &requestImpl{client: c, opts: opts, service: service}

	m := statemachine.New(impl)
	m.SetStateNamer(requestStateName)

	if opts.ParentMachine != nil {
		m.SetParent(opts.ParentMachine, opts.ParentTargetState, true)
	}

	if e := m.Run(opts.Engine); e != nil {
		return nil, e
	}

	return &PendingRequest{machine: m}, nil
}

// Get issues a GET request.
func (c *Client) Get(url string, responder Responder, headers *header.RequestHeaders) (*PendingRequest, liberr.Error) {
	return c.Request(RequestOptions{Method: http.MethodGet, URL: url, Responder: responder, Headers: headers})
}

// Head issues a HEAD request; the responder typically only consumes headers.
func (c *Client) Head(url string, responder Responder, headers *header.RequestHeaders) (*PendingRequest, liberr.Error) {
	return c.Request(RequestOptions{Method: http.MethodHead, URL: url, Responder: responder, Headers: headers})
}

// Put issues a PUT request with body.
func (c *Client) Put(url string, body []byte, responder Responder, headers *header.RequestHeaders) (*PendingRequest, liberr.Error) {
	return c.Request(RequestOptions{Method: http.MethodPut, URL: url, Body: newByteReader(body), Responder: responder, Headers: headers})
}

// Del issues a DELETE request.
func (c *Client) Del(url string, responder Responder, headers *header.RequestHeaders) (*PendingRequest, liberr.Error) {
	return c.Request(RequestOptions{Method: http.MethodDelete, URL: url, Responder: responder, Headers: headers})
}

// Move issues a MOVE request with the new location in the Destination header.
func (c *Client) Move(url, destination string, responder Responder, headers *header.RequestHeaders) (*PendingRequest, liberr.Error) {
	if headers == nil {
		headers = header.NewRequestHeaders()
	}
	_, _ = headers.Add("Destination", destination, header.ReplaceIfExists)

	return c.Request(RequestOptions{Method: "MOVE", URL: url, Responder: responder, Headers: headers})
}

// Post issues a POST request with body.
func (c *Client) Post(url string, body []byte, responder Responder, headers *header.RequestHeaders) (*PendingRequest, liberr.Error) {
	return c.Request(RequestOptions{Method: http.MethodPost, URL: url, Body: newByteReader(body), Responder: responder, Headers: headers})
}

// PostRaw issues a POST request with a raw byte slice and an explicit size
// decoupled from the buffer's own length.
func (c *Client) PostRaw(url string, body []byte, size int, responder Responder, headers *header.RequestHeaders) (*PendingRequest, liberr.Error) {
	if size < len(body) {
		body = body[:size]
	}
	return c.Request(RequestOptions{Method: http.MethodPost, URL: url, Body: newByteReader(body), Responder: responder, Headers: headers})
}

// GetByteRange issues a GET with an explicit Range header, always shaving
// one byte off the offset (including the first request, offset 0, which
// produces a negative "bytes=-1-..." start) so edge-cache stacks that
// return the full body for a speculative range never do so for this
// client; the caller is responsible for dropping the resulting leading
// overlap byte before using the body. Server-quirk accommodation, not a
// protocol invariant.
func (c *Client) GetByteRange(url string, offset, length int64, responder Responder, headers *header.RequestHeaders) (*PendingRequest, liberr.Error) {
	if headers == nil {
		headers = header.NewRequestHeaders()
	}

	start := offset - 1
	end := offset + length - 1

	_, _ = headers.Add("Range", fmt.Sprintf("bytes=%d-%d", start, end), header.ReplaceIfExists)

	return c.Request(RequestOptions{Method: http.MethodGet, URL: url, Responder: responder, Headers: headers})
}

// PostXMLRPC issues a POST with an XML-RPC-encoded body and the appropriate
// Content-Type.
func (c *Client) PostXMLRPC(url string, body []byte, responder Responder, headers *header.RequestHeaders) (*PendingRequest, liberr.Error) {
	if headers == nil {
		headers = header.NewRequestHeaders()
	}
	_, _ = headers.Add("Content-Type", "text/xml", header.ReplaceIfExists)

	return c.Request(RequestOptions{Method: http.MethodPost, URL: url, Body: newByteReader(body), Responder: responder, Headers: headers})
}

func newByteReader(b []byte) *strings.Reader {
	return strings.NewReader(string(b))
}
