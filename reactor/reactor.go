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

// The libre reactor package is the single-threaded event loop every
// protocol engine in this module runs on: timers kept in a deadline-ordered
// heap and a thread-safe wake-up queue, all drained from one goroutine so
// engine state never needs its own locking. It does not poll file
// descriptors; socket readiness reaches it through the wake-up queue.
package reactor

import (
	"container/heap"
	"sync"
	"time"

	"github.com/go-libre/libre/logger"
)

// Context carries a connection id for log correlation, mirroring the
// logger package's own Context so reactor logging threads through the
// same ctx callers already pass around.
type Context = logger.Context

// TimerHandle cancels a scheduled timer. Canceling twice, or after it has
// fired, is a no-op.
type TimerHandle interface {
	Cancel()
}

// WakeupHandler is invoked on the reactor goroutine for a message enqueued
// from any other goroutine via Reactor.Wakeup.
type WakeupHandler func(id string, data interface{})

type timerEntry struct {
	deadline time.Time
	seq      uint64
	fn       func()
	canceled bool
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

type wakeupEntry struct {
	id      string
	data    interface{}
	handler WakeupHandler
}

// Reactor drains timers and an MPSC wake-up queue on a single goroutine.
// Readiness-driven I/O is delivered by Transport, which calls into the
// reactor's Wakeup queue when its own goroutines observe socket events;
// Reactor itself owns no file descriptors.
type Reactor struct {
	ctx Context

	mu      sync.Mutex
	timers  timerHeap
	seq     uint64
	wakeups chan wakeupEntry

	stop chan struct{}
	done chan struct{}
}

// New creates a Reactor. Run must be called to start draining it.
func New(ctx Context) *Reactor {
	return &Reactor{
		ctx:     ctx,
		wakeups: make(chan wakeupEntry, 256),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// After schedules fn to run on the reactor goroutine after d elapses.
func (r *Reactor) After(d time.Duration, fn func()) TimerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e := &timerEntry{deadline: time.Now().Add(d), seq: r.seq, fn: fn}
	heap.Push(&r.timers, e)
	return e
}

// Cancel marks the timer canceled; a pending fire becomes a silent skip.
func (e *timerEntry) Cancel() {
	e.canceled = true
}

// Wakeup enqueues (id, data) to be delivered to handler on the reactor
// goroutine, in FIFO order relative to other Wakeup calls. Safe to call
// from any goroutine, including concurrently.
func (r *Reactor) Wakeup(handler WakeupHandler, id string, data interface{}) {
	select {
	case r.wakeups <- wakeupEntry{id: id, data: data, handler: handler}:
	case <-r.stop:
	}
}

// Run drains timers and the wake-up queue until Stop is called. It blocks
// the calling goroutine; callers typically run it in its own goroutine.
func (r *Reactor) Run() {
	defer close(r.done)

	for {
		d, fn := r.nextTimer()
		if fn != nil {
			fn()
			continue
		}

		timer := time.NewTimer(d)
		select {
		case <-r.stop:
			timer.Stop()
			return
		case w := <-r.wakeups:
			timer.Stop()
			r.deliver(w)
		case <-timer.C:
		}
	}
}

func (r *Reactor) deliver(w wakeupEntry) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.W(r.ctx, "reactor: wakeup handler panic", rec)
		}
	}()
	w.handler(w.id, w.data)
}

// nextTimer pops and returns the next non-canceled due timer's fn, or a
// wait duration until the next scheduled one if none are due yet.
func (r *Reactor) nextTimer() (time.Duration, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for r.timers.Len() > 0 {
		top := r.timers[0]
		if top.canceled {
			heap.Pop(&r.timers)
			continue
		}
		if !top.deadline.After(now) {
			heap.Pop(&r.timers)
			return 0, top.fn
		}
		return top.deadline.Sub(now), nil
	}
	return 24 * time.Hour, nil
}

// Stop terminates Run and waits for it to return.
func (r *Reactor) Stop() {
	close(r.stop)
	<-r.done
}
