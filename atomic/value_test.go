/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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

package atomic_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libatm "github.com/nabbar/httpcore/atomic"
)

var _ = Describe("Value[T]", func() {
	It("Load should return the zero value before any Store", func() {
		v := libatm.NewValue[int]()
		Expect(v.Load()).To(Equal(0))
	})

	It("Store should make the value visible to a subsequent Load", func() {
		v := libatm.NewValue[int]()
		v.Store(10)
		Expect(v.Load()).To(Equal(10))
		v.Store(0)
		Expect(v.Load()).To(Equal(0))
	})

	It("should round-trip the types cache/item actually stores", func() {
		s := libatm.NewValue[string]()
		s.Store("texture-cache-entry")
		Expect(s.Load()).To(Equal("texture-cache-entry"))

		ts := libatm.NewValue[time.Time]()
		now := time.Now()
		ts.Store(now)
		Expect(ts.Load()).To(Equal(now))
	})
})
