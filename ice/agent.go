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
	"fmt"
	"strings"
	"time"

	"github.com/go-libre/libre/errs"
	"github.com/go-libre/libre/stun"
)

// performCheck sends a STUN Binding Request for pair
// "Performing a check": USERNAME is "remote-ufrag:local-ufrag", PRIORITY
// carries the peer-reflexive priority this local candidate would have,
// ICE-CONTROLLING/ICE-CONTROLLED carries the session tiebreaker, and
// USE-CANDIDATE is set only when controlling and either using aggressive
// nomination or sending this pair's dedicated nomination check (nominate).
func (ms *MediaStream) performCheck(pair *Pair, nominate bool) {
	ms.mu.Lock()
	pair.State = PairInProgress
	session := ms.session
	remotePwd := ms.remotePwd
	ms.mu.Unlock()

	tid, err := stun.NewTransactionID()
	if err != nil {
		ms.failPair(pair, err)
		return
	}

	m := &stun.Message{Method: stun.MethodBinding, Class: stun.ClassRequest, TID: tid}
	m.Add(stun.AttrUsername, []byte(ms.remoteUfrag+":"+session.LocalUfrag))

	prflxPriority := Priority(TypePrflx, pair.Local.LocalPref, pair.Local.ComponentID)
	var prioBuf [4]byte
	putU32(prioBuf[:], prflxPriority)
	m.Add(stun.AttrPriority, prioBuf[:])

	var tbBuf [8]byte
	putU64(tbBuf[:], session.Tiebreaker)
	nominating := session.Role == RoleControlling &&
		(session.Conf.Nomination == NominationAggressive || nominate)
	if session.Role == RoleControlling {
		m.Add(stun.AttrIceControlling, tbBuf[:])
		if nominating {
			m.Add(stun.AttrUseCandidate, nil)
		}
	} else {
		m.Add(stun.AttrIceControlled, tbBuf[:])
	}

	raw := stun.Encode(m, []byte(remotePwd), true)

	result := func(resp *stun.Message, rerr error) {
		ms.handleCheckResult(pair, nominating, resp, rerr)
	}
	send := func(b []byte) error { return ms.send(pair.Local.ComponentID, pair.Remote.Address, b) }

	rto := stun.ICEDefaultRTO
	if session.Conf.RTO > 0 {
		rto = time.Duration(session.Conf.RTO) * time.Millisecond
	}
	txn, err := ms.txns.Start(ms.r, tid, raw, send, false, rto, session.Conf.RC, result)
	if err != nil {
		ms.failPair(pair, err)
		return
	}
	ms.mu.Lock()
	pair.checkTID = txn.TID()
	pair.hasCheckTID = true
	ms.mu.Unlock()
}

func (ms *MediaStream) failPair(pair *Pair, err error) {
	ms.mu.Lock()
	pair.State = PairFailed
	pair.LastError = err
	ms.maybeCompleteLocked()
	ms.mu.Unlock()
}

// handleCheckResult processes the response (or timeout) to a check this
// agent initiated "Response handling".
func (ms *MediaStream) handleCheckResult(pair *Pair, nominating bool, resp *stun.Message, rerr error) {
	if rerr != nil {
		ms.failPair(pair, rerr)
		return
	}

	if resp.Class == stun.ClassError {
		if v, ok := resp.Get(stun.AttrErrorCode); ok {
			if code, _, _ := stun.DecodeErrorCode(v); code == 487 {
				ms.handleRoleConflict(pair)
				return
			}
		}
		ms.failPair(pair, errs.New(errs.Protocol, "ice: check failed with error response"))
		return
	}

	xmaVal, ok := resp.Get(stun.AttrXorMappedAddress)
	if !ok {
		ms.failPair(pair, errs.New(errs.BadMessage, "ice: response missing xor-mapped-address"))
		return
	}
	mappedAddr, err := stun.DecodeXorMappedAddress(xmaVal, resp.TID, true)
	if err != nil {
		ms.failPair(pair, err)
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	local := ms.findOrSynthesizeLocal(mappedAddr, pair.Local)
	valid := ms.findOrCreateValidPair(local, pair.Remote)
	valid.State = PairSucceeded
	valid.Valid = true
	pair.State = PairSucceeded

	if nominating {
		valid.Nominated = true
	}
	ms.unfreezeSiblingsLocked(pair)
	ms.maybeCompleteLocked()
	if valid.Nominated {
		ms.concludeLocked()
	}
}

// findOrSynthesizeLocal returns the local candidate whose address equals
// mappedAddr, synthesizing a peer-reflexive candidate sharing checkedLocal's
// base if none is already known
func (ms *MediaStream) findOrSynthesizeLocal(mappedAddr string, checkedLocal *Candidate) *Candidate {
	for _, l := range ms.locals {
		if l.Address == mappedAddr {
			return l
		}
	}
	prflx := NewCandidate(TypePrflx, checkedLocal.Foundation, checkedLocal.ComponentID,
		mappedAddr, checkedLocal.LocalPref, checkedLocal.Base)
	ms.locals = append(ms.locals, prflx)
	return prflx
}

// findOrCreateValidPair returns the (local, remote) pair from the
// checklist if present, else constructs and appends a new valid pair for
// a synthesized peer-reflexive local candidate.
func (ms *MediaStream) findOrCreateValidPair(local, remote *Candidate) *Pair {
	for _, p := range ms.pairs {
		if p.Local == local && p.Remote == remote {
			return p
		}
	}
	p := NewPair(local, remote, ms.session.Role == RoleControlling)
	ms.pairs = append(ms.pairs, p)
	return p
}

// unfreezeSiblingsLocked unfreezes every other frozen pair sharing
// pair's foundation, per RFC 5245 §7.1.3.2.3.
func (ms *MediaStream) unfreezeSiblingsLocked(pair *Pair) {
	for _, p := range ms.pairs {
		if p != pair && p.State == PairFrozen && p.FoundationKey() == pair.FoundationKey() {
			p.State = PairWaiting
		}
	}
}

// handleRoleConflict implements role-conflict resolution:
// on a 487 response, switch role and retry the pair as a fresh
// triggered check.
func (ms *MediaStream) handleRoleConflict(pair *Pair) {
	ms.mu.Lock()
	ms.session.SwitchRole()
	pair.State = PairWaiting
	ms.queueTriggered(pair)
	ms.mu.Unlock()
}

// concludeLocked implements the "concluding" step: for each
// component, select the highest-priority valid pair whose Nominated flag
// is set. Under controlled-side or aggressive nomination that flag is
// set as soon as the winning check succeeds; under the controlling
// side's default (regular) nomination it is only set once
// nextNominationLocked's dedicated USE-CANDIDATE check for that pair
// succeeds, after the checklist has otherwise settled. A checklist with
// no valid pair for some component never completes via this path
// (maybeCompleteLocked marks it Failed instead once nothing is left to
// check).
func (ms *MediaStream) concludeLocked() {
	best := make(map[int]*Pair)
	for _, p := range ms.pairs {
		if !p.Valid || !p.Nominated {
			continue
		}
		if cur, ok := best[p.Local.ComponentID]; !ok || p.PairPriority > cur.PairPriority {
			best[p.Local.ComponentID] = p
		}
	}
	for componentID, pair := range best {
		if prev, done := ms.selected[componentID]; done && prev == pair {
			continue
		}
		ms.selected[componentID] = pair
		if ms.onSelected != nil {
			go ms.onSelected(componentID, pair)
		}
	}
}

// validateInboundUsername splits a USERNAME attribute value of the form
// "local:remote" (as seen by the request's recipient) and reports
// whether the local half matches ours.
func (ms *MediaStream) validateInboundUsername(value []byte) bool {
	parts := strings.SplitN(string(value), ":", 2)
	if len(parts) != 2 {
		return false
	}
	return parts[0] == ms.session.LocalUfrag
}

// HandleInbound processes a STUN Binding Request arriving on this media
// stream from from "Inbound STUN server": fingerprint
// then integrity (against the local password), USERNAME validation,
// role/tiebreaker arbitration, peer-reflexive remote-candidate synthesis,
// triggered-check scheduling, and USE-CANDIDATE nomination when
// controlled. It returns the raw response datagram to send back, or an
// error if the request was rejected (the caller is still expected to
// have sent whatever error response the returned bytes encode, when
// non-nil).
func (ms *MediaStream) HandleInbound(raw []byte, fromAddr string, fromComponentID int) ([]byte, error) {
	stripped := stun.StripFingerprint(raw)
	if len(stripped) != len(raw) {
		if err := stun.VerifyFingerprint(raw); err != nil {
			return nil, err
		}
	}

	m, _, err := stun.Decode(stripped)
	if err != nil {
		return nil, err
	}
	if m.Method != stun.MethodBinding || m.Class != stun.ClassRequest {
		return nil, errs.New(errs.Protocol, "ice: not a binding request")
	}

	ms.mu.Lock()
	localPwd := ms.session.LocalPwd
	ms.mu.Unlock()

	if err := stun.VerifyIntegrity(stripped, []byte(localPwd)); err != nil {
		return ms.errorResponse(m, 401, "Unauthorized"), err
	}

	usernameVal, ok := m.Get(stun.AttrUsername)
	if !ok || !ms.validateInboundUsername(usernameVal) {
		return ms.errorResponse(m, 401, "Unauthorized"), errs.New(errs.AuthFailed, "ice: username mismatch")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if resp, conflict := ms.arbitrateRoleLocked(m); conflict {
		return resp, errs.New(errs.Protocol, "ice: role conflict")
	}

	useCandidate := false
	if _, ok := m.Get(stun.AttrUseCandidate); ok {
		useCandidate = true
	}

	var priority uint32
	if v, ok := m.Get(stun.AttrPriority); ok && len(v) == 4 {
		priority = getU32(v)
	}

	remote := ms.findOrSynthesizeRemoteLocked(fromAddr, fromComponentID, priority)
	local := ms.localForComponentLocked(fromComponentID)
	pair := ms.findOrCreateValidPairUnsafeLocked(local, remote)

	switch pair.State {
	case PairSucceeded:
		// already valid; still eligible for (re)nomination below.
	case PairFailed:
		pair.State = PairWaiting
		ms.queueTriggered(pair)
	default:
		ms.queueTriggered(pair)
	}

	if useCandidate && ms.session.Role == RoleControlled {
		pair.Valid = true
		pair.Nominated = true
		if pair.hasCheckTID {
			ms.txns.Cancel(pair.checkTID)
			pair.hasCheckTID = false
		}
		ms.concludeLocked()
	}

	xorVal, err := stun.EncodeXorMappedAddress(fromAddr, m.TID, true)
	if err != nil {
		return nil, err
	}
	respMsg := &stun.Message{Method: stun.MethodBinding, Class: stun.ClassSuccess, TID: m.TID}
	respMsg.Add(stun.AttrXorMappedAddress, xorVal)
	return stun.Encode(respMsg, []byte(localPwd), true), nil
}

// arbitrateRoleLocked implements ICE-CONTROLLING/
// ICE-CONTROLLED tiebreak rule. If both sides claim controlling, a peer
// tiebreaker greater than or equal to ours makes this agent switch to
// controlled and accept the request; a smaller one makes this agent keep
// its role and answer 487. If both sides claim controlled, a peer
// tiebreaker smaller than ours makes this agent switch to controlling;
// otherwise it keeps its role and answers 487. The bool result reports
// whether a 487 response was produced.
func (ms *MediaStream) arbitrateRoleLocked(m *stun.Message) ([]byte, bool) {
	controllingVal, isControlling := m.Get(stun.AttrIceControlling)
	controlledVal, isControlled := m.Get(stun.AttrIceControlled)

	if isControlling && ms.session.Role == RoleControlling {
		peerTB := getU64(controllingVal)
		if peerTB >= ms.session.Tiebreaker {
			ms.session.Role = RoleControlled
		} else {
			return ms.errorResponse(m, 487, "Role Conflict"), true
		}
	} else if isControlled && ms.session.Role == RoleControlled {
		peerTB := getU64(controlledVal)
		if peerTB < ms.session.Tiebreaker {
			ms.session.Role = RoleControlling
		} else {
			return ms.errorResponse(m, 487, "Role Conflict"), true
		}
	}
	return nil, false
}

func (ms *MediaStream) errorResponse(req *stun.Message, code int, reason string) []byte {
	m := &stun.Message{Method: req.Method, Class: stun.ClassError, TID: req.TID}
	m.Add(stun.AttrErrorCode, stun.EncodeErrorCode(code, reason))
	return stun.Encode(m, nil, true)
}

func (ms *MediaStream) localForComponentLocked(componentID int) *Candidate {
	for _, l := range ms.locals {
		if l.ComponentID == componentID {
			return l
		}
	}
	return nil
}

// findOrSynthesizeRemoteLocked returns the known remote candidate at
// fromAddr, or synthesizes a peer-reflexive one carrying the request's
// PRIORITY attribute when the request comes from an address not in the
// remote candidate set.
func (ms *MediaStream) findOrSynthesizeRemoteLocked(fromAddr string, componentID int, priority uint32) *Candidate {
	for _, r := range ms.remotes {
		if r.Address == fromAddr {
			return r
		}
	}
	prflx := &Candidate{
		Type: TypePrflx, Foundation: fmt.Sprintf("prflx-%s", fromAddr),
		ComponentID: componentID, Address: fromAddr, Transport: "udp",
		Priority: priority,
	}
	ms.remotes = append(ms.remotes, prflx)
	return prflx
}

func (ms *MediaStream) findOrCreateValidPairUnsafeLocked(local, remote *Candidate) *Pair {
	if local == nil {
		local = &Candidate{ComponentID: remote.ComponentID}
	}
	for _, p := range ms.pairs {
		if p.Local == local && p.Remote == remote {
			return p
		}
	}
	p := NewPair(local, remote, ms.session.Role == RoleControlling)
	ms.pairs = append(ms.pairs, p)
	return p
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}

func getU32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4 && i < len(b); i++ {
		v = v<<8 | uint32(b[i])
	}
	return v
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
