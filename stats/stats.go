// The MIT License (MIT)
//
// Copyright (c) 2013-2017 Oryx(ossrs)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// The libre stats package exposes the engines' activity counters (STUN
// transactions started, BFCP requests issued, SIP NOTIFYs received, ICE
// checks performed, transport connections accepted) as Prometheus
// collectors, each also sampled over rolling 10s/30s/300s windows via
// kxps.
package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-libre/libre/kxps"
	"github.com/go-libre/libre/logger"
)

// Counter is a monotonic event counter satisfying kxps.KrpsSource, so
// any subsystem counter can be dropped straight into a rolling-rate
// sampler.
type Counter struct {
	n uint64
}

// Add increments the counter by delta and returns the new total.
func (c *Counter) Add(delta uint64) uint64 { return atomic.AddUint64(&c.n, delta) }

// NbRequests satisfies kxps.KrpsSource.
func (c *Counter) NbRequests() uint64 { return atomic.LoadUint64(&c.n) }

// namedCounter pairs a Counter with the Prometheus metric name and help
// text describing what it counts.
type namedCounter struct {
	name, help string
	counter    *Counter
	krps       kxps.Krps
	desc       *prometheus.Desc
	rateDesc   *prometheus.Desc
}

// Registry owns every engine counter this process tracks and implements
// prometheus.Collector directly, following the sockstats
// TCPInfoCollector shape: Describe/Collect driven from a slice of
// metric descriptors built once at construction time.
type Registry struct {
	ctx      logger.Context
	counters []*namedCounter
}

// NewRegistry creates an empty Registry. Counters are added via Counter
// and registered with the process default registerer by the caller
// (typically prometheus.MustRegister(registry)).
func NewRegistry(ctx logger.Context) *Registry {
	return &Registry{ctx: ctx}
}

// Counter registers and returns a new named Counter, with a rolling
// kxps.Krps sampler over it. name/help follow Prometheus naming
// conventions, e.g. "libre_stun_transactions_started_total".
func (r *Registry) Counter(name, help string) *Counter {
	c := &Counter{}
	nc := &namedCounter{
		name: name, help: help, counter: c,
		krps: kxps.NewKrps(r.ctx, c),
		desc: prometheus.NewDesc(name, help, nil, nil),
		rateDesc: prometheus.NewDesc(name+"_rps", help+" (requests/sec, sampled over 10s/30s/300s windows)",
			[]string{"window"}, nil),
	}
	r.counters = append(r.counters, nc)
	return c
}

// Start begins every registered counter's rolling-rate sampler.
func (r *Registry) Start() error {
	for _, nc := range r.counters {
		if err := nc.krps.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Describe implements prometheus.Collector.
func (r *Registry) Describe(descs chan<- *prometheus.Desc) {
	for _, nc := range r.counters {
		descs <- nc.desc
		descs <- nc.rateDesc
	}
}

// Collect implements prometheus.Collector.
func (r *Registry) Collect(metrics chan<- prometheus.Metric) {
	for _, nc := range r.counters {
		metrics <- prometheus.MustNewConstMetric(nc.desc, prometheus.CounterValue, float64(nc.counter.NbRequests()))
		metrics <- prometheus.MustNewConstMetric(nc.rateDesc, prometheus.GaugeValue, nc.krps.Rps10s(), "10s")
		metrics <- prometheus.MustNewConstMetric(nc.rateDesc, prometheus.GaugeValue, nc.krps.Rps30s(), "30s")
		metrics <- prometheus.MustNewConstMetric(nc.rateDesc, prometheus.GaugeValue, nc.krps.Rps300s(), "300s")
	}
}

// GaugeFunc is a point-in-time sample, e.g. transport.Cache.Len or
// stun.Table.Len, exposed without a rolling-rate sampler since it's
// already a level, not a count of events.
type GaugeFunc struct {
	desc *prometheus.Desc
	fn   func() int
}

// GaugeFuncs wraps a set of point-in-time samplers (connection cache
// size, pending transaction counts, ...) as one Prometheus collector.
type GaugeFuncs struct {
	gauges []GaugeFunc
}

// NewGaugeFuncs creates an empty GaugeFuncs collector.
func NewGaugeFuncs() *GaugeFuncs { return &GaugeFuncs{} }

// Add registers a gauge sampled by calling fn on every Collect.
func (g *GaugeFuncs) Add(name, help string, fn func() int) {
	g.gauges = append(g.gauges, GaugeFunc{desc: prometheus.NewDesc(name, help, nil, nil), fn: fn})
}

// Describe implements prometheus.Collector.
func (g *GaugeFuncs) Describe(descs chan<- *prometheus.Desc) {
	for _, gf := range g.gauges {
		descs <- gf.desc
	}
}

// Collect implements prometheus.Collector.
func (g *GaugeFuncs) Collect(metrics chan<- prometheus.Metric) {
	for _, gf := range g.gauges {
		metrics <- prometheus.MustNewConstMetric(gf.desc, prometheus.GaugeValue, float64(gf.fn()))
	}
}
