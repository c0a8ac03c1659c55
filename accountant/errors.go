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
	"fmt"

	liberr "github.com/nabbar/httpcore/errors"
)

const (
	ErrorInvalidURL   liberr.CodeError = iota + liberr.MinPkgAccountant // cannot extract a canonical service key from the given URL
	ErrorBlacklisted                                                    // service is currently blacklisted
	ErrorNoTokenSlot                                                    // no approvement token currently available
)

func init() {
	if liberr.ExistInMapMessage(ErrorInvalidURL) {
		panic(fmt.Errorf("error code collision with package httpcore/accountant"))
	}
	liberr.RegisterIdFctMessage(ErrorInvalidURL, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrorInvalidURL:
		return "cannot extract canonical service key from url"
	case ErrorBlacklisted:
		return "service is blacklisted"
	case ErrorNoTokenSlot:
		return "no approvement token slot available"
	}

	return liberr.NullMessage
}
