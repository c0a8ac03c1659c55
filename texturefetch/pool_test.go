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

package texturefetch_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nabbar/httpcore/accountant"
	"github.com/nabbar/httpcore/texturefetch"
	"github.com/nabbar/httpcore/transport"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTestAccountant() *accountant.Accountant {
	return accountant.New(map[accountant.Capability]int64{
		accountant.CapabilityTexture: 8,
		accountant.CapabilityOther:   8,
	}, 3)
}

var _ = Describe("Pool", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	It("fetches a texture over HTTP, decodes it, and exposes the result", func() {
		payload := []byte("jp2-formatted-texture-bytes")

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Query().Get("texture_id")).ToNot(BeEmpty())
			Expect(r.Header.Get("Range")).ToNot(BeEmpty())
			w.WriteHeader(http.StatusPartialContent)
			// One leading overlap byte ahead of the real payload: the client
			// always requests one byte before the offset it actually needs.
			_, _ = w.Write(append([]byte{0xff}, payload...))
		}))
		defer srv.Close()

		acct := newTestAccountant()
		tc := transport.New(acct, nil, nil)
		dec := &fakeDecoder{}

		pool := texturefetch.New(texturefetch.Options{UseHTTP: true},
			texturefetch.NewMemCache(ctx), dec, nil, tc, acct, nil)
		pool.Start(ctx)
		defer pool.Stop()

		id := uuid.New()
		ok := pool.CreateRequest(id, srv.URL, "", false, 1, 0, int64(len(payload)), false, true)
		Expect(ok).To(BeTrue())

		Eventually(func() bool {
			_, _, _, done := pool.GetRequestFinished(id)
			return done
		}, "5s").Should(BeTrue())

		_, raw, _, done := pool.GetRequestFinished(id)
		Expect(done).To(BeTrue())
		Expect(raw).To(Equal(payload))
		Expect(dec.callCount()).To(Equal(1))
	})

	It("fetches a texture over UDP when no HTTP URL is available", func() {
		acct := newTestAccountant()
		udp := &fakeUDP{}
		dec := &fakeDecoder{}

		pool := texturefetch.New(texturefetch.Options{}, nil, dec, udp, nil, acct, nil)
		pool.Start(ctx)
		defer pool.Stop()

		id := uuid.New()
		ok := pool.CreateRequest(id, "", "sim.local", false, 1, 0, 2048, false, false)
		Expect(ok).To(BeTrue())

		Eventually(udp.requestCount, "5s").Should(BeNumerically(">=", 1))

		pool.ReceiveImageHeader(id, 2, 2, 2006, []byte("head"))
		pool.ReceiveImagePacket(id, 1, []byte("middle"))
		pool.ReceiveImagePacket(id, 2, []byte("tail"))

		Eventually(func() bool {
			_, _, _, done := pool.GetRequestFinished(id)
			return done
		}, "5s").Should(BeTrue())

		_, raw, _, done := pool.GetRequestFinished(id)
		Expect(done).To(BeTrue())
		Expect(raw).To(Equal([]byte("headmiddletail")))
	})

	It("finishes a map-tile 404 as done with no image", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		acct := newTestAccountant()
		tc := transport.New(acct, nil, nil)

		pool := texturefetch.New(texturefetch.Options{UseHTTP: true}, nil, &fakeDecoder{}, nil, tc, acct, nil)
		pool.Start(ctx)
		defer pool.Stop()

		id := uuid.New()
		Expect(pool.CreateRequest(id, srv.URL, "", true, 1, 0, 1024, false, true)).To(BeTrue())

		Eventually(func() bool {
			st, err := pool.GetFetchState(id)
			return err == nil && st.Done
		}, "5s").Should(BeTrue())

		_, raw, _, done := pool.GetRequestFinished(id)
		Expect(done).To(BeTrue())
		Expect(raw).To(BeNil())
	})

	It("rejects a request with neither an HTTP URL nor a simulator host", func() {
		pool := texturefetch.New(texturefetch.Options{}, nil, nil, nil, nil, newTestAccountant(), nil)
		Expect(pool.CreateRequest(uuid.New(), "", "", false, 1, 0, 1024, false, true)).To(BeFalse())
	})

	It("updates an already-registered request in place instead of starting a second worker", func() {
		pool := texturefetch.New(texturefetch.Options{}, nil, nil, &fakeUDP{}, nil, newTestAccountant(), nil)

		id := uuid.New()
		Expect(pool.CreateRequest(id, "", "sim.local", false, 1, 3, 1024, false, false)).To(BeTrue())
		Expect(pool.CreateRequest(id, "", "sim.local", false, 7, 1, 8192, false, false)).To(BeTrue())

		st, err := pool.GetFetchState(id)
		Expect(err).To(BeNil())
		Expect(st.Done).To(BeFalse())
	})

	It("POSTs ViewerMetrics on a timer and flags a data break after a failed POST", func() {
		var (
			mu     sync.Mutex
			bodies []string
			fail   = true
		)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)

			mu.Lock()
			bodies = append(bodies, string(b))
			f := fail
			fail = false
			mu.Unlock()

			if f {
				// non-retryable status: the transport would transparently
				// retry a 5xx, masking the failed POST this test needs.
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		acct := newTestAccountant()
		tc := transport.New(acct, nil, nil)
		metrics := texturefetch.NewMetrics(nil)

		pool := texturefetch.New(texturefetch.Options{
			MetricsURL:      srv.URL,
			MetricsInterval: 20 * time.Millisecond,
		}, nil, nil, nil, tc, acct, metrics)
		pool.Start(ctx)
		defer pool.Stop()

		Eventually(func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, b := range bodies {
				if strings.Contains(b, `"data_break":true`) {
					return true
				}
			}
			return false
		}, "5s").Should(BeTrue())
	})

	It("forgets a cancelled request so its id can be re-registered", func() {
		pool := texturefetch.New(texturefetch.Options{}, nil, nil, &fakeUDP{}, nil, newTestAccountant(), nil)

		id := uuid.New()
		Expect(pool.CreateRequest(id, "", "sim.local", false, 1, 0, 1024, false, false)).To(BeTrue())

		pool.DeleteRequest(id, true)

		_, err := pool.GetFetchState(id)
		Expect(err).ToNot(BeNil())

		Expect(pool.CreateRequest(id, "", "sim.local", false, 1, 0, 1024, false, false)).To(BeTrue())
	})
})

var _ = Describe("MemCache", func() {
	It("round-trips a write through a ranged read", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		mc := texturefetch.NewMemCache(ctx)
		id := uuid.New()

		wrote := make(chan error, 1)
		mc.WriteToCache(id, []byte("0123456789"), 10, func(err error) { wrote <- err })
		Eventually(wrote).Should(Receive(BeNil()))

		type readResult struct {
			data     []byte
			fileSize int64
			complete bool
		}
		read := make(chan readResult, 1)
		mc.ReadFromCache(id, 2, 4, func(data []byte, fileSize int64, complete bool, err error) {
			Expect(err).To(BeNil())
			read <- readResult{data: data, fileSize: fileSize, complete: complete}
		})

		var got readResult
		Eventually(read).Should(Receive(&got))
		Expect(got.data).To(Equal([]byte("2345")))
		Expect(got.fileSize).To(Equal(int64(10)))
		Expect(got.complete).To(BeTrue())
	})

	It("misses cleanly after RemoveFromCache", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		mc := texturefetch.NewMemCache(ctx)
		id := uuid.New()

		done := make(chan error, 1)
		mc.WriteToCache(id, []byte("data"), 4, func(err error) { done <- err })
		Eventually(done).Should(Receive(BeNil()))

		mc.RemoveFromCache(id)

		miss := make(chan []byte, 1)
		mc.ReadFromCache(id, 0, 4, func(data []byte, fileSize int64, complete bool, err error) {
			Expect(err).To(BeNil())
			miss <- data
		})
		Eventually(miss).Should(Receive(BeNil()))
	})
})
