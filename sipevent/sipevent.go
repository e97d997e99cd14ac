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

// The libre sipevent package is the dialog-scoped subscribe/notify state
// machine: refresh scheduling, auth retry and exponential-jitter backoff
// on top of request/response events a SIP core collaborator delivers.
package sipevent

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/go-libre/libre/errs"
	"github.com/go-libre/libre/httpauth"
	"github.com/go-libre/libre/reactor"
)

// State is a subscription's lifecycle stage
type State int

const (
	StateInit State = iota
	StatePending
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SubstateValue is the parsed Subscription-State header.
type SubstateValue struct {
	State   string // "active", "pending" or "terminated"
	Expires uint32
	Reason  string
}

// DecodeSubstate parses `active|pending|terminated[;expires=N][;reason=...]`,
// grounded on sipevent_substate_decode.
func DecodeSubstate(header string) (*SubstateValue, error) {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return nil, errs.New(errs.BadMessage, "sipevent: empty Subscription-State")
	}
	sv := &SubstateValue{State: strings.ToLower(strings.TrimSpace(parts[0]))}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "expires":
			if n, err := strconv.ParseUint(strings.TrimSpace(kv[1]), 10, 32); err == nil {
				sv.Expires = uint32(n)
			}
		case "reason":
			sv.Reason = strings.Trim(strings.TrimSpace(kv[1]), `"`)
		}
	}
	return sv, nil
}

// Dialog identifies and addresses a SIP peer relationship.
type Dialog struct {
	CallID     string
	LocalTag   string
	RemoteTag  string
	LocalCSeq  uint32
	RemoteCSeq uint32
	TargetURI  string
	RouteSet   []string
}

const dialogIDCharset = "0123456789abcdef"

// newDialogToken generates a dialog identifier (Call-ID or a tag); these
// only need to be unique among this process's concurrent dialogs, not
// cryptographically unpredictable.
func newDialogToken(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = dialogIDCharset[rand.Intn(len(dialogIDCharset))]
	}
	return string(b)
}

// Key returns the full dialog match key.
func (d *Dialog) Key() string { return d.CallID + "|" + d.LocalTag + "|" + d.RemoteTag }

// HalfKey returns the (call-id, local-tag) half-match key used to accept
// the first NOTIFY that completes a forked dialog
func (d *Dialog) HalfKey() string { return d.CallID + "|" + d.LocalTag }

// Sink receives subscription lifecycle events.
type Sink interface {
	OnNotify(body []byte)
	OnClose(err error)
}

// RequestFunc sends a SUBSCRIBE/REFER and delivers the final response (or
// a transport error) to the given callback; non-final responses are the
// transport layer's concern, not this package's.
type RequestFunc func(method string, headers map[string]string, done func(status int, headers map[string]string, err error))

const (
	minRetryBackoff = 30 * time.Second
	maxRetryBackoff = 1800 * time.Second
)

// backoffDelay computes min(1800s, 30s*2^min(failc,6)) * jitter(0.5..1.0),
//
func backoffDelay(failc int) time.Duration {
	n := failc
	if n > 6 {
		n = 6
	}
	base := minRetryBackoff * time.Duration(1<<uint(n))
	if base > maxRetryBackoff {
		base = maxRetryBackoff
	}
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(base) * jitter)
}

// Subscription is one dialog-scoped SIP event subscription or REFER.
type Subscription struct {
	r    *reactor.Reactor
	send RequestFunc
	sink Sink

	event   string
	id      string
	isRefer bool
	referTo string

	dialog     *Dialog
	dispatcher *Dispatcher
	state      State
	expires    uint32
	failc      int

	auth       *httpauth.Challenge
	authUser   string
	authPass   string

	refreshTimer reactor.TimerHandle
	retryTimer   reactor.TimerHandle
	closed       bool
	minExpires   uint32
}

// Config configures a new subscription.
type Config struct {
	Event          string
	ID             string
	Expires        uint32
	RequestURI     string
	FromURI        string
	AuthUser       string
	AuthPass       string
	Refer          bool
	ReferTo        string
}

// New creates a subscription in StateInit. Call Start to send the
// initial SUBSCRIBE (or REFER). dispatcher may be nil, for a caller that
// routes inbound NOTIFY requests to this subscription some other way
// (e.g. it owns exactly one dialog and already knows which).
func New(r *reactor.Reactor, cfg Config, send RequestFunc, sink Sink, dispatcher *Dispatcher) *Subscription {
	return &Subscription{
		r: r, send: send, sink: sink,
		event: cfg.Event, id: cfg.ID, expires: cfg.Expires,
		isRefer: cfg.Refer, referTo: cfg.ReferTo,
		authUser: cfg.AuthUser, authPass: cfg.AuthPass,
		dialog: &Dialog{
			TargetURI: cfg.RequestURI,
			CallID:    newDialogToken(16),
			LocalTag:  newDialogToken(8),
		},
		dispatcher: dispatcher,
		state:      StateInit,
	}
}

// State returns the subscription's current lifecycle stage.
func (s *Subscription) State() State { return s.state }

// Dialog returns the subscription's dialog, for a Dispatcher or a test
// to inspect or key off of.
func (s *Subscription) Dialog() *Dialog { return s.dialog }

// Start sends the initial SUBSCRIBE (or REFER for a refer-variant
// subscription), transitioning init -> pending. If a dispatcher was
// given to New, the dialog is registered under its half-key (call-id,
// local-tag) so a NOTIFY arriving ahead of the 2xx response can still
// find it.
func (s *Subscription) Start() {
	s.state = StatePending
	if s.dispatcher != nil {
		s.dispatcher.Register(s)
	}
	s.sendRequest(s.expires)
}

func (s *Subscription) method() string {
	if s.isRefer {
		return "REFER"
	}
	return "SUBSCRIBE"
}

func (s *Subscription) sendRequest(expires uint32) {
	headers := map[string]string{
		"Content-Length": "0",
		"Call-ID":        s.dialog.CallID,
		"From-Tag":       s.dialog.LocalTag,
	}
	if !s.isRefer {
		headers["Event"] = s.event
		headers["Expires"] = strconv.FormatUint(uint64(expires), 10)
	} else {
		headers["Refer-To"] = s.referTo
	}
	if s.auth != nil {
		headers["Authorization"] = httpauth.MakeResponse(s.auth, s.method(), s.dialog.TargetURI, s.authUser, s.authPass, "", "")
	}

	s.send(s.method(), headers, func(status int, respHeaders map[string]string, err error) {
		if s.closed {
			return
		}
		if err != nil {
			s.scheduleRetry()
			return
		}
		s.handleResponse(status, respHeaders, expires)
	})
}

func (s *Subscription) handleResponse(status int, headers map[string]string, requestedExpires uint32) {
	switch {
	case status >= 200 && status < 300:
		s.onSuccess(status, headers, requestedExpires)
	case status == 401 || status == 407:
		s.onAuthChallenge(headers)
	case status == 403:
		s.auth = nil
		s.terminate(errs.New(errs.Protocol, "sipevent: 403 forbidden"))
	case status == 408 || status == 481:
		if s.dispatcher != nil {
			s.dispatcher.Forget(s)
		}
		s.dialog = &Dialog{
			TargetURI: s.dialog.TargetURI,
			CallID:    newDialogToken(16),
			LocalTag:  newDialogToken(8),
		}
		if s.dispatcher != nil {
			s.dispatcher.Register(s)
		}
		s.state = StateTerminated
		s.scheduleRetry()
	case status == 423:
		s.onIntervalTooSmall(headers)
	default:
		s.failc++
		s.scheduleRetry()
	}
}

func (s *Subscription) onSuccess(status int, headers map[string]string, requestedExpires uint32) {
	if s.dialog.RemoteTag == "" {
		if tag, ok := headers["To-Tag"]; ok {
			s.dialog.RemoteTag = tag
			if s.dispatcher != nil {
				s.dispatcher.promote(s)
			}
		}
		if rt, ok := headers["Record-Route"]; ok {
			s.dialog.RouteSet = strings.Split(rt, ",")
		}
	}
	expires := requestedExpires
	if v, ok := headers["Expires"]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			expires = uint32(n)
		}
	}
	s.expires = expires
	s.state = StateActive
	s.failc = 0

	if !s.isRefer {
		s.scheduleRefresh(expires)
	}
}

// scheduleRefresh arms the refresh timer at 0.9*expires seconds, per
// the dialog state machine and its round-trip law: rescheduling before
// the prior timer fires yields a single next-fire time relative to the
// new expires.
func (s *Subscription) scheduleRefresh(expires uint32) {
	if s.refreshTimer != nil {
		s.refreshTimer.Cancel()
	}
	delay := time.Duration(float64(expires)*0.9) * time.Second
	s.refreshTimer = s.r.After(delay, func() {
		if s.state == StateActive {
			s.sendRequest(s.expires)
		}
	})
}

func (s *Subscription) onAuthChallenge(headers map[string]string) {
	raw, ok := headers["WWW-Authenticate"]
	if !ok {
		raw, ok = headers["Proxy-Authenticate"]
	}
	if !ok {
		s.failc++
		s.scheduleRetry()
		return
	}
	chall, err := httpauth.DecodeChallenge(raw)
	if err != nil {
		s.failc++
		s.scheduleRetry()
		return
	}
	s.auth = chall
	s.sendRequest(s.expires)
}

func (s *Subscription) onIntervalTooSmall(headers map[string]string) {
	if v, ok := headers["Min-Expires"]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			min := uint32(n)
			if min > s.expires {
				s.minExpires = min
				s.expires = min
				s.sendRequest(min)
				return
			}
		}
	}
	s.failc++
	s.scheduleRetry()
}

func (s *Subscription) scheduleRetry() {
	if s.retryTimer != nil {
		s.retryTimer.Cancel()
	}
	delay := backoffDelay(s.failc)
	s.retryTimer = s.r.After(delay, func() {
		if !s.closed {
			s.sendRequest(s.expires)
		}
	})
}

// OnNotify dispatches an inbound NOTIFY. Returns an error for an
// Event-header mismatch; otherwise updates the subscription per the
// Subscription-State header and forwards the body to the sink.
func (s *Subscription) OnNotify(eventHeader string, substateHeader string, body []byte) error {
	if eventHeader != "" && eventHeader != s.event {
		return errs.New(errs.BadMessage, "sipevent: Event header mismatch")
	}
	sv, err := DecodeSubstate(substateHeader)
	if err != nil {
		return err
	}
	switch sv.State {
	case "active", "pending":
		if sv.Expires > 0 {
			s.expires = sv.Expires
			s.scheduleRefresh(sv.Expires)
		}
		if sv.State == "active" {
			s.state = StateActive
		} else {
			s.state = StatePending
		}
	case "terminated":
		s.terminate(errs.New(errs.Protocol, fmt.Sprintf("sipevent: terminated: %s", sv.Reason)))
		return nil
	}
	if s.sink != nil {
		s.sink.OnNotify(body)
	}
	return nil
}

// Close sends a terminating SUBSCRIBE with Expires: 0 (not applicable to
// REFER, which has no auto-refresh to tear down).
func (s *Subscription) Close() {
	if s.closed {
		return
	}
	if !s.isRefer && s.state == StateActive {
		s.sendRequest(0)
	}
	s.terminate(nil)
}

// terminate cancels timers, flips to terminated and fires the sink's
// close callback exactly once. It sets the closed flag, after which
// Close, a second terminate and any late SUBSCRIBE response or retry
// callback return without acting.
func (s *Subscription) terminate(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.state = StateTerminated
	if s.dispatcher != nil {
		s.dispatcher.Forget(s)
	}
	if s.refreshTimer != nil {
		s.refreshTimer.Cancel()
	}
	if s.retryTimer != nil {
		s.retryTimer.Cancel()
	}
	if s.sink != nil {
		s.sink.OnClose(err)
	}
}
