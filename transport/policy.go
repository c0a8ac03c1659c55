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

import "time"

// TimeoutPolicy names one family of timing limits applied to a request.
// Distinct policies (e.g. a tighter
// one for texture HTTP fetches vs a looser one for XML-RPC login) are
// selected per-request through RequestOptions.Policy; a request with the
// zero policy uses the Client's default (SetDefaultPolicy).
type TimeoutPolicy struct {
	// DNSLookupGrace is added to MaxConnect to form the dial timeout of
	// every connection; first contact with a host is not treated apart
	// from later ones.
	DNSLookupGrace time.Duration
	// MaxConnect, plus DNSLookupGrace, is the net.Dialer timeout (name
	// resolution and TCP connect); the TLS handshake is not bounded by it.
	// The dialer takes both values from the Client's default policy, not
	// from a request's own policy.
	MaxConnect time.Duration
	// MaxReplyDelay is the time allowed between the request being fully
	// sent and the first response byte. The Client does not enforce it.
	MaxReplyDelay time.Duration
	// LowSpeedLimit (bytes/sec) and LowSpeedTime describe a minimum average
	// throughput over a period. The Client does not enforce them: no
	// request is aborted for low throughput.
	LowSpeedLimit int64
	LowSpeedTime  time.Duration
	// MaxTransaction bounds total request+response time, counted from the
	// moment an approved request is handed to the HTTP client.
	MaxTransaction time.Duration
	// MaxTotalDelay bounds time spent queued (deferred on the accountant);
	// exceeding it while still queued completes the request with
	// ErrOperationTimedOut before it is ever sent. Time in flight is bounded
	// by MaxTransaction only.
	MaxTotalDelay time.Duration
}

// DefaultTimeoutPolicy is used by requests that do not specify one.
var DefaultTimeoutPolicy = TimeoutPolicy{
	DNSLookupGrace: 5 * time.Second,
	MaxConnect:     10 * time.Second,
	MaxReplyDelay:  30 * time.Second,
	LowSpeedLimit:  100,
	LowSpeedTime:   30 * time.Second,
	MaxTransaction: 5 * time.Minute,
	MaxTotalDelay:  10 * time.Minute,
}

func (p TimeoutPolicy) dialTimeout() time.Duration {
	if p.MaxConnect > 0 {
		return p.MaxConnect + p.DNSLookupGrace
	}
	return DefaultTimeoutPolicy.MaxConnect + p.DNSLookupGrace
}

func (p TimeoutPolicy) overallTimeout() time.Duration {
	if p.MaxTransaction > 0 {
		return p.MaxTransaction
	}
	return DefaultTimeoutPolicy.MaxTransaction
}
