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

// The libre ice package implements the RFC 5245 connectivity-check
// agent: candidate/pair bookkeeping, checklist formation, a pacing
// scheduler, an inbound STUN server for triggered checks, and the
// nomination/concluding logic that picks a selected pair per component.
package ice

import "fmt"

// CandType is the ICE candidate type.
type CandType int

const (
	TypeHost CandType = iota
	TypeSrflx
	TypePrflx
	TypeRelay
)

func (t CandType) String() string {
	switch t {
	case TypeHost:
		return "host"
	case TypeSrflx:
		return "srflx"
	case TypePrflx:
		return "prflx"
	case TypeRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// typePreference is the type_pref term of the priority formula, ordered
// host > prflx > srflx > relay per RFC 5245 §4.1.2.2.
func (t CandType) typePreference() uint32 {
	switch t {
	case TypeHost:
		return 126
	case TypeSrflx:
		return 100
	case TypePrflx:
		return 110
	case TypeRelay:
		return 0
	default:
		return 0
	}
}

// Candidate is an ICE candidate
type Candidate struct {
	Type        CandType
	Foundation  string
	ComponentID int
	Priority    uint32
	LocalPref   uint32 // retained to recompute a peer-reflexive PRIORITY for this candidate's base
	Address     string // "ip:port"
	Base        *Candidate // self for host candidates
	RelatedAddr string
	Transport   string // "udp"
}

// NewCandidate computes Priority = type_pref<<24 | local_pref<<8 |
// (256-component_id) localPref ranks candidates of the
// same type (e.g. by interface preference); pass 65535 when there is
// only one.
func NewCandidate(typ CandType, foundation string, componentID int, address string, localPref uint32, base *Candidate) *Candidate {
	c := &Candidate{
		Type: typ, Foundation: foundation, ComponentID: componentID,
		Address: address, Transport: "udp", LocalPref: localPref,
	}
	if base != nil {
		c.Base = base
	} else {
		c.Base = c
	}
	c.Priority = Priority(typ, localPref, componentID)
	return c
}

// Priority computes the RFC 5245 §4.1.2.1 candidate priority formula.
func Priority(typ CandType, localPref uint32, componentID int) uint32 {
	return typ.typePreference()<<24 | (localPref&0xFFFF)<<8 | uint32(256-componentID)
}

func (c *Candidate) String() string {
	return fmt.Sprintf("%s/%s/%d/%s", c.Type, c.Foundation, c.ComponentID, c.Address)
}

// BaseAddress is the address of the candidate this one was derived
// from: itself for a host candidate, otherwise its Base's address.
func (c *Candidate) BaseAddress() string {
	if c.Base == nil {
		return c.Address
	}
	return c.Base.Address
}
