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

package texturefetch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's prometheus collectors, partitioned by
// TransportKind and TextureKind. A nil *Metrics is valid everywhere it's
// used; every method on it is a no-op.
type Metrics struct {
	fetchDuration *prometheus.HistogramVec
	fetchBytes    *prometheus.CounterVec
	fetchTotal    *prometheus.CounterVec
	inFlight      prometheus.Gauge

	mu        sync.Mutex
	dataBreak bool
}

// NewMetrics builds and registers the texture pipeline's collectors on reg.
// Passing a prometheus.Registry obtained elsewhere lets the caller fold these
// into whatever exposition endpoint the rest of the process already runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "texturefetch",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one texture fetch attempt, from enqueue to Done.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport", "kind", "outcome"}),

		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "texturefetch",
			Name:      "fetch_bytes_total",
			Help:      "Bytes received across all texture fetches.",
		}, []string{"transport", "kind"}),

		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "texturefetch",
			Name:      "fetch_total",
			Help:      "Count of completed texture fetches by outcome.",
		}, []string{"transport", "kind", "outcome"}),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "texturefetch",
			Name:      "in_flight",
			Help:      "Number of texture workers currently scheduled.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.fetchDuration, m.fetchBytes, m.fetchTotal, m.inFlight)
	}
	return m
}

func (m *Metrics) observe(kind TextureKind, transport TransportKind, dur time.Duration, bytes int, ok bool) {
	if m == nil {
		return
	}

	outcome := "success"
	if !ok {
		outcome = "failure"
	}

	m.fetchDuration.WithLabelValues(string(transport), string(kind), outcome).Observe(dur.Seconds())
	m.fetchTotal.WithLabelValues(string(transport), string(kind), outcome).Inc()
	if bytes > 0 {
		m.fetchBytes.WithLabelValues(string(transport), string(kind)).Add(float64(bytes))
	}
}

func (m *Metrics) setInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

// noteDataBreak flags that the previous ViewerMetrics POST failed, so the
// next Snapshot reports the gap in the reported series.
func (m *Metrics) noteDataBreak() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.dataBreak = true
	m.mu.Unlock()
}

// ViewerMetrics is the point-in-time snapshot POSTed to the ViewerMetrics
// endpoint by Pool.postMetrics. DataBreak is true when the previous POST
// failed.
type ViewerMetrics struct {
	InFlight  int32 `json:"in_flight"`
	DataBreak bool  `json:"data_break"`
}

// Snapshot returns the current ViewerMetrics, clearing the data-break flag
// (it is edge-triggered: the next Snapshot after a failed POST reports it
// once).
func (m *Metrics) Snapshot(inFlight *atomic.Int32) ViewerMetrics {
	if m == nil {
		return ViewerMetrics{InFlight: inFlight.Load()}
	}

	m.mu.Lock()
	brk := m.dataBreak
	m.dataBreak = false
	m.mu.Unlock()

	return ViewerMetrics{InFlight: inFlight.Load(), DataBreak: brk}
}
