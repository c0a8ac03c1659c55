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

package accountant

import (
	"time"

	libdur "github.com/nabbar/httpcore/duration"
)

// FailureReason classifies a request failure for blacklist/error-count
// purposes.
type FailureReason int

const (
	FailureOther FailureReason = iota
	FailureNotFound
	FailureNotFoundMappedTile // 404 on a mapped-URL tile: silent drop, no blacklist
	FailureCurlTimeout
	FailureLowSpeed
	FailureServiceUnavailable // 503: no blacklist, unlimited retry
	FailureForbidden
	FailureRangeNotSatisfiable // 416: treated as "we already have all data", not a failure
)

// blacklistDuration returns the backoff duration to apply once a service
// crosses the consecutive-failure cap for reason, or 0 if reason never
// blacklists.
func blacklistDuration(reason FailureReason) libdur.Duration {
	switch reason {
	case FailureCurlTimeout, FailureLowSpeed:
		return libdur.Duration(60 * time.Second)
	case FailureNotFound, FailureForbidden, FailureOther:
		return libdur.Duration(60 * time.Second)
	default:
		return 0
	}
}

// countsAsFailure reports whether reason increments the consecutive-failure
// counter at all.
func countsAsFailure(reason FailureReason) bool {
	switch reason {
	case FailureNotFoundMappedTile, FailureServiceUnavailable, FailureRangeNotSatisfiable:
		return false
	default:
		return true
	}
}

// blacklistEntry is the blacklist record for one service.
type blacklistEntry struct {
	reason      FailureReason
	timeoutUntil time.Time
	errorCount  int
}

func (b *blacklistEntry) active(now time.Time) bool {
	return b != nil && now.Before(b.timeoutUntil)
}
