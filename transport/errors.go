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
	"fmt"

	liberr "github.com/nabbar/httpcore/errors"
)

const (
	ErrorParamsInvalid  liberr.CodeError = iota + liberr.MinPkgTransport // method/URL missing on a request
	ErrorCreateRequest                                                   // http.NewRequestWithContext failed
	ErrorSendRequest                                                     // the underlying client returned a transport error
	ErrorCanceled                                                        // the request was cancelled by its owner
	ErrorBlacklisted                                                     // the target service is currently blacklisted
	ErrorNoApprovement                                                   // no accountant token available and none was deferred-retried in time
	ErrorBadRedirectLocation                                             // a 3xx response carried an unparsable Location
	ErrorTooManyRedirects                                                // MaxRedirects exceeded
)

func init() {
	if liberr.ExistInMapMessage(ErrorParamsInvalid) {
		panic(fmt.Errorf("error code collision with package httpcore/transport"))
	}
	liberr.RegisterIdFctMessage(ErrorParamsInvalid, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrorParamsInvalid:
		return "request is missing a method or URL"
	case ErrorCreateRequest:
		return "failed to build the outgoing http.Request"
	case ErrorSendRequest:
		return "the http client returned a transport error"
	case ErrorCanceled:
		return "request cancelled by its owner"
	case ErrorBlacklisted:
		return "target service is currently blacklisted"
	case ErrorNoApprovement:
		return "no accountant token available for this service/capability"
	case ErrorBadRedirectLocation:
		return "redirect response carried an unparsable Location header"
	case ErrorTooManyRedirects:
		return "exceeded the configured maximum number of redirects"
	}

	return liberr.NullMessage
}
