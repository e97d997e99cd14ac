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
	"time"

	"github.com/go-libre/libre/stun"
)

// PairState is a candidate pair's connectivity-check state.
type PairState int

const (
	PairFrozen PairState = iota
	PairWaiting
	PairInProgress
	PairSucceeded
	PairFailed
)

func (s PairState) String() string {
	switch s {
	case PairFrozen:
		return "frozen"
	case PairWaiting:
		return "waiting"
	case PairInProgress:
		return "in-progress"
	case PairSucceeded:
		return "succeeded"
	case PairFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pair is an ICE candidate pair
type Pair struct {
	Local, Remote *Candidate
	PairPriority  uint64
	State         PairState
	Default       bool
	Valid         bool
	Nominated     bool
	UseCandidate  bool
	RTT           time.Duration
	LastError     error

	checkTID    stun.TransactionID // set while a check is outstanding
	hasCheckTID bool
}

// PairPriorityOf computes 2^32*min(G,D) + 2*max(G,D) + (G>D?1:0), per
// RFC 5245, where G is the controlling agent's candidate priority and
// D is the controlled agent's.
func PairPriorityOf(controllingPriority, controlledPriority uint32) uint64 {
	g, d := uint64(controllingPriority), uint64(controlledPriority)
	min, max := g, d
	if d < g {
		min, max = d, g
	}
	var tie uint64
	if g > d {
		tie = 1
	}
	return (uint64(1)<<32)*min + 2*max + tie
}

// NewPair builds a pair, computing PairPriority from the local/remote
// candidate priorities according to which side is controlling.
func NewPair(local, remote *Candidate, localIsControlling bool) *Pair {
	var prio uint64
	if localIsControlling {
		prio = PairPriorityOf(local.Priority, remote.Priority)
	} else {
		prio = PairPriorityOf(remote.Priority, local.Priority)
	}
	return &Pair{Local: local, Remote: remote, PairPriority: prio, State: PairFrozen}
}

// FoundationKey groups pairs for the frozen/waiting initialization, keyed
// by (local foundation, remote foundation).
func (p *Pair) FoundationKey() string {
	return p.Local.Foundation + "|" + p.Remote.Foundation
}
