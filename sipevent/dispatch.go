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

package sipevent

import (
	"sync"

	"github.com/go-libre/libre/errs"
)

// Dispatcher routes an inbound NOTIFY to the subscription it belongs to.
// A subscription is registered under its dialog's half-key
// (call-id, local-tag) until its remote tag is known, since a forking
// proxy can deliver the first NOTIFY before any 2xx response fixes it.
// Dispatch matches the full key first, then falls back to the half-key:
// whichever candidate dialog's NOTIFY arrives first wins the fork and
// every other candidate sharing that half-key is torn down.
type Dispatcher struct {
	mu   sync.Mutex
	full map[string]*Subscription
	half map[string][]*Subscription
}

// NewDispatcher creates an empty NOTIFY dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		full: make(map[string]*Subscription),
		half: make(map[string][]*Subscription),
	}
}

// Register adds s under its dialog's current key: the half-key while
// its remote tag is still unknown (the common case, right after Start),
// the full key once a response or NOTIFY has fixed it.
func (d *Dispatcher) Register(s *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registerLocked(s)
}

func (d *Dispatcher) registerLocked(s *Subscription) {
	if s.dialog.RemoteTag == "" {
		hk := s.dialog.HalfKey()
		d.half[hk] = append(d.half[hk], s)
		return
	}
	d.full[s.dialog.Key()] = s
}

// promote moves s from its half-key bucket to the full key once a 2xx
// response (rather than a racing NOTIFY) fixes its remote tag first;
// Dispatch's own fork resolution handles the NOTIFY-first case.
func (d *Dispatcher) promote(s *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	hk := s.dialog.HalfKey()
	d.half[hk] = removeSubscription(d.half[hk], s)
	if len(d.half[hk]) == 0 {
		delete(d.half, hk)
	}
	d.full[s.dialog.Key()] = s
}

// Forget removes s from every key it may be registered under, e.g. on
// Close or once a fork it lost has been terminated.
func (d *Dispatcher) Forget(s *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.full, s.dialog.Key())
	hk := s.dialog.HalfKey()
	d.half[hk] = removeSubscription(d.half[hk], s)
	if len(d.half[hk]) == 0 {
		delete(d.half, hk)
	}
}

// resolveForkLocked drops the half-key bucket hk entirely, returning
// every candidate other than winner so the caller can terminate them as
// the fork's losers.
func (d *Dispatcher) resolveForkLocked(winner *Subscription, hk string) []*Subscription {
	losers := removeSubscription(d.half[hk], winner)
	delete(d.half, hk)
	return losers
}

func removeSubscription(list []*Subscription, target *Subscription) []*Subscription {
	out := list[:0]
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// Dispatch routes one inbound NOTIFY identified by (call-id, local-tag,
// remote-tag) to its subscription: dialog.Key() first, dialog.HalfKey()
// against the still-forking candidates second. A half-key match
// completes that dialog (binds its remote tag) and terminates every
// sibling fork candidate still registered under the same half-key.
func (d *Dispatcher) Dispatch(callID, localTag, remoteTag, eventHeader, substateHeader string, body []byte) error {
	full := &Dialog{CallID: callID, LocalTag: localTag, RemoteTag: remoteTag}

	d.mu.Lock()
	if s, ok := d.full[full.Key()]; ok {
		d.mu.Unlock()
		return s.OnNotify(eventHeader, substateHeader, body)
	}

	hk := full.HalfKey()
	candidates := d.half[hk]
	if len(candidates) == 0 {
		d.mu.Unlock()
		return errs.New(errs.Protocol, "sipevent: no subscription for NOTIFY dialog")
	}
	winner := candidates[0]
	losers := d.resolveForkLocked(winner, hk)
	d.mu.Unlock()

	winner.dialog.RemoteTag = remoteTag
	d.mu.Lock()
	d.full[winner.dialog.Key()] = winner
	d.mu.Unlock()

	for _, loser := range losers {
		loser.terminate(errs.New(errs.Protocol, "sipevent: lost NOTIFY fork race"))
	}

	return winner.OnNotify(eventHeader, substateHeader, body)
}
