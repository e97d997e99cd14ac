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
	"crypto/rand"
	"encoding/binary"

	"github.com/pion/randutil"

	"github.com/go-libre/libre/errs"
	"github.com/go-libre/libre/reactor"
)

// Role is which side of the ICE role-conflict arbitration an agent plays.
type Role int

const (
	RoleControlling Role = iota
	RoleControlled
)

// Mode selects full ICE vs ICE-lite
type Mode int

const (
	ModeFull Mode = iota
	ModeLite
)

// Nomination selects regular (explicit USE-CANDIDATE after a successful
// check) vs aggressive (USE-CANDIDATE set on every initial check).
type Nomination int

const (
	NominationRegular Nomination = iota
	NominationAggressive
)

// Conf is the session's tunable connectivity-check behavior.
type Conf struct {
	Nomination Nomination
	RTO        int // ms, 0 = package default
	RC         int // max retransmit count, 0 = package default
}

var ufragCharset = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// Session owns every MediaStream of one ICE agent instance.
type Session struct {
	r *reactor.Reactor

	LocalUfrag string
	LocalPwd   string
	Tiebreaker uint64
	Role       Role
	Mode       Mode
	Conf       Conf

	streams       []*MediaStream
	firstStreamed bool
}

// NewSession creates a Session with freshly generated local ufrag (>= 4
// chars), local pwd (>= 22 chars) and tiebreaker ufrag
// and pwd use pion/randutil's crypto-secure string generator, matching
// pion/webrtc's own ICE credential generation; the tiebreaker is drawn
// directly from crypto/rand since it's a raw 64-bit value, not a string.
func NewSession(r *reactor.Reactor, role Role, mode Mode, conf Conf) (*Session, error) {
	ufrag, err := randutil.GenerateCryptoRandomString(8, ufragCharset)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "ice: ufrag generation failed", err)
	}
	pwd, err := randutil.GenerateCryptoRandomString(24, ufragCharset)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "ice: pwd generation failed", err)
	}

	var tbBytes [8]byte
	if _, err := rand.Read(tbBytes[:]); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "ice: tiebreaker rng failed", err)
	}

	return &Session{
		r: r, LocalUfrag: ufrag, LocalPwd: pwd,
		Tiebreaker: binary.BigEndian.Uint64(tbBytes[:]),
		Role:       role, Mode: mode, Conf: conf,
	}, nil
}

// AddMediaStream creates a MediaStream owned by this session. State
// initialization only happens on the first stream
// added.
func (s *Session) AddMediaStream() *MediaStream {
	first := !s.firstStreamed
	s.firstStreamed = true
	ms := newMediaStream(s, first)
	s.streams = append(s.streams, ms)
	return ms
}

// SwitchRole flips controlling<->controlled, used during role-conflict
// resolution.
func (s *Session) SwitchRole() {
	if s.Role == RoleControlling {
		s.Role = RoleControlled
	} else {
		s.Role = RoleControlling
	}
}
