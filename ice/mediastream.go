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

package ice

import (
	"sync"
	"time"

	"github.com/go-libre/libre/reactor"
	"github.com/go-libre/libre/stun"
)

// pacingRTP and pacingOther are the two scheduler tick intervals: a
// faster cadence for media streams carrying RTP, a slower one for
// everything else (e.g. BFCP-over-ICE).
const (
	pacingRTP   = 20 * time.Millisecond
	pacingOther = 500 * time.Millisecond
)

// SendFunc transmits a raw STUN datagram to dst over this media stream's
// component componentID. Sockets/multiplexing are the caller's concern;
// the agent only ever calls this with already-encoded bytes.
type SendFunc func(componentID int, dst string, raw []byte) error

// SelectedFunc is invoked once per component when its checklist settles
// on a selected pair ("concluding").
type SelectedFunc func(componentID int, pair *Pair)

// MediaStream runs one checklist: pacing scheduler, outgoing connectivity
// checks, and the bookkeeping that turns succeeded checks into a
// selected pair per component.
type MediaStream struct {
	mu sync.Mutex

	session *Session
	r       *reactor.Reactor
	isRTP   bool
	first   bool

	locals     []*Candidate
	remotes    []*Candidate
	remoteUfrag string
	remotePwd   string

	pairs     []*Pair
	triggered []*Pair
	state     ChecklistState

	send       SendFunc
	onSelected SelectedFunc
	selected   map[int]*Pair

	txns        *stun.Table
	pacingTimer reactor.TimerHandle
	stopped     bool
}

func newMediaStream(s *Session, first bool) *MediaStream {
	return &MediaStream{
		session:  s,
		r:        s.r,
		first:    first,
		state:    ChecklistNull,
		selected: make(map[int]*Pair),
		txns:     stun.NewTable(),
	}
}

// SetRTP marks this stream as RTP-carrying, selecting the 20ms pacing
// tick instead of the 500ms default.
func (ms *MediaStream) SetRTP(rtp bool) { ms.isRTP = rtp }

// SetLocalCandidates installs the gathered local candidate set.
// Gathering itself (host enumeration, STUN/TURN allocation) is outside
// this module's core; callers hand in the result.
func (ms *MediaStream) SetLocalCandidates(locals []*Candidate) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.locals = locals
}

// SetRemoteDescription installs the remote ufrag/pwd and candidate set
// and forms the checklist.
func (ms *MediaStream) SetRemoteDescription(ufrag, pwd string, remotes []*Candidate) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.remoteUfrag, ms.remotePwd = ufrag, pwd
	ms.remotes = remotes
	localIsControlling := ms.session.Role == RoleControlling
	ms.pairs = FormChecklist(ms.locals, ms.remotes, localIsControlling, ms.first)
	ms.state = ChecklistRunning
}

// Start installs send and onSelected and begins the pacing scheduler.
func (ms *MediaStream) Start(send SendFunc, onSelected SelectedFunc) {
	ms.mu.Lock()
	ms.send = send
	ms.onSelected = onSelected
	ms.mu.Unlock()
	ms.scheduleTick()
}

// Stop halts the pacing scheduler; outstanding transactions are left to
// time out on their own.
func (ms *MediaStream) Stop() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.stopped = true
	if ms.pacingTimer != nil {
		ms.pacingTimer.Cancel()
	}
}

func (ms *MediaStream) pacingInterval() time.Duration {
	if ms.isRTP {
		return pacingRTP
	}
	return pacingOther
}

func (ms *MediaStream) scheduleTick() {
	ms.mu.Lock()
	if ms.stopped {
		ms.mu.Unlock()
		return
	}
	interval := ms.pacingInterval()
	ms.mu.Unlock()
	ms.pacingTimer = ms.r.After(interval, ms.tick)
}

// tick performs scheduling rule: pop the triggered queue,
// else the highest-priority waiting pair, else unfreeze the
// highest-priority frozen pair, else mark the checklist complete and,
// for a controlling agent using regular nomination, send the winning
// pair's dedicated USE-CANDIDATE check ("Concluding").
func (ms *MediaStream) tick() {
	ms.mu.Lock()
	if ms.stopped {
		ms.mu.Unlock()
		return
	}
	pair, nominate := ms.nextPairLocked()
	ms.mu.Unlock()

	if pair != nil {
		ms.performCheck(pair, nominate)
	}
	ms.scheduleTick()
}

func (ms *MediaStream) nextPairLocked() (*Pair, bool) {
	if len(ms.triggered) > 0 {
		p := ms.triggered[0]
		ms.triggered = ms.triggered[1:]
		return p, false
	}

	var best *Pair
	for _, p := range ms.pairs {
		if p.State == PairWaiting && (best == nil || p.PairPriority > best.PairPriority) {
			best = p
		}
	}
	if best != nil {
		return best, false
	}

	for _, p := range ms.pairs {
		if p.State == PairFrozen && (best == nil || p.PairPriority > best.PairPriority) {
			best = p
		}
	}
	if best != nil {
		best.State = PairWaiting
		return best, false
	}

	ms.maybeCompleteLocked()
	return ms.nextNominationLocked()
}

// nextNominationLocked returns the next component's winning pair still
// awaiting its dedicated nomination check, for a controlling agent using
// regular nomination once the checklist has settled. Each pair is
// returned (and marked via UseCandidate) at most once; handleCheckResult
// sets Nominated when the check succeeds, and concludeLocked picks it up
// from there.
func (ms *MediaStream) nextNominationLocked() (*Pair, bool) {
	if ms.state != ChecklistCompleted || ms.session.Role != RoleControlling ||
		ms.session.Conf.Nomination != NominationRegular {
		return nil, false
	}
	for _, pair := range componentSelectedPairs(ms) {
		if !pair.Nominated && !pair.UseCandidate {
			pair.UseCandidate = true
			return pair, true
		}
	}
	return nil, false
}

func (ms *MediaStream) maybeCompleteLocked() {
	if ms.state == ChecklistCompleted || ms.state == ChecklistFailed {
		return
	}
	for _, p := range ms.pairs {
		if p.State == PairWaiting || p.State == PairInProgress || p.State == PairFrozen {
			return
		}
	}
	anyValid := false
	for _, p := range ms.pairs {
		if p.Valid {
			anyValid = true
			break
		}
	}
	if anyValid {
		ms.state = ChecklistCompleted
	} else {
		ms.state = ChecklistFailed
	}
}

// queueTriggered pushes pair to the front of the triggered-check queue,
// skipping a duplicate already queued or already in progress.
func (ms *MediaStream) queueTriggered(pair *Pair) {
	if pair.State == PairInProgress {
		return
	}
	for _, p := range ms.triggered {
		if p == pair {
			return
		}
	}
	ms.triggered = append([]*Pair{pair}, ms.triggered...)
}

func componentSelectedPairs(ms *MediaStream) map[int]*Pair {
	out := make(map[int]*Pair)
	for _, p := range ms.pairs {
		if !p.Valid {
			continue
		}
		cur, ok := out[p.Local.ComponentID]
		if !ok || p.PairPriority > cur.PairPriority {
			out[p.Local.ComponentID] = p
		}
	}
	return out
}
