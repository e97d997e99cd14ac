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

// The libre bfcp package is the Binary Floor Control Protocol message
// codec: a 12-byte header plus a sequence of 2-byte-tagged, 4-byte
// padded TLV attributes, some of which nest further attributes.
package bfcp

import (
	"github.com/go-libre/libre/buf"
	"github.com/go-libre/libre/errs"
)

// Primitive is the BFCP message primitive (FloorRequest, FloorRelease,
// ...); the core only needs to carry it opaquely through transactions.
type Primitive uint8

// AttrType is a BFCP attribute type code (the upper 7 bits of the type
// byte; the LSB on the wire carries the Mandatory flag separately).
type AttrType uint8

const (
	AttrBeneficiaryID        AttrType = 1
	AttrFloorID              AttrType = 2
	AttrFloorRequestID       AttrType = 3
	AttrPriority             AttrType = 4
	AttrRequestStatus        AttrType = 5
	AttrErrorCode            AttrType = 6
	AttrErrorInfo            AttrType = 7
	AttrParticipantProvInfo  AttrType = 8
	AttrStatusInfo           AttrType = 9
	AttrSupportedAttributes  AttrType = 10
	AttrSupportedPrimitives  AttrType = 11
	AttrUserDisplayName      AttrType = 12
	AttrUserURI              AttrType = 13
	AttrBeneficiaryInfo      AttrType = 14
	AttrFloorRequestInfo     AttrType = 15
	AttrRequestedByInfo      AttrType = 16
	AttrFloorRequestStatus   AttrType = 17
	AttrOverallRequestStatus AttrType = 18
)

// groupedTypes is the fixed set of attribute types that nest other
// attributes behind a 2-byte preamble
var groupedTypes = map[AttrType]bool{
	AttrBeneficiaryInfo:      true,
	AttrFloorRequestInfo:     true,
	AttrRequestedByInfo:      true,
	AttrFloorRequestStatus:   true,
	AttrOverallRequestStatus: true,
}

const headerSize = 12
const attrHdrSize = 2

// Attr is one decoded BFCP attribute. Grouped attributes carry their
// 2-byte preamble in Preamble and their nested attributes in Children;
// leaf attributes carry their raw value in Value.
type Attr struct {
	Type      AttrType
	Mandatory bool
	Preamble  [2]byte
	Value     []byte
	Children  []*Attr
}

// Message is a decoded or to-be-encoded BFCP message.
type Message struct {
	Primitive     Primitive
	ConferenceID  uint32
	TransactionID uint16
	UserID        uint16
	Attrs         []*Attr
}

// EncodeHeader+attrs writes a full message: 12-byte header (length field
// patched to the attribute region's 32-bit-word count) then attributes.
func Encode(m *Message) []byte {
	b := buf.New(64)
	b.WriteU8(1 << 5) // version=1 in the upper 3 bits, I|R|res all zero
	b.WriteU8(uint8(m.Primitive))
	b.WriteU16(0) // length placeholder, patched below
	b.WriteU32(m.ConferenceID)
	b.WriteU16(m.TransactionID)
	b.WriteU16(m.UserID)

	for _, a := range m.Attrs {
		encodeAttr(b, a)
	}

	attrBytes := b.End() - headerSize
	words := uint16(attrBytes / 4)
	data := b.Bytes()
	data[2] = byte(words >> 8)
	data[3] = byte(words)
	return b.Bytes()
}

func encodeAttr(b *buf.Buffer, a *Attr) {
	start := b.End()
	b.WriteU8(uint8(a.Type)<<1 | boolBit(a.Mandatory))
	b.WriteU8(0) // length placeholder

	if groupedTypes[a.Type] {
		b.WriteBytes(a.Preamble[:])
		for _, child := range a.Children {
			encodeAttr(b, child)
		}
	} else {
		b.WriteBytes(a.Value)
	}

	for (b.End()-start)%4 != 0 {
		b.WriteU8(0)
	}

	data := b.Bytes()
	data[start+1] = byte(b.End() - start)
}

func boolBit(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// Decode parses a full BFCP message. It returns errs.NeedsMoreData if p
// is shorter than the declared length, errs.BadMessage for a malformed
// header or an attribute whose total_length is below attrHdrSize.
func Decode(p []byte) (*Message, error) {
	if len(p) < headerSize {
		return nil, errs.New(errs.NeedsMoreData, "bfcp: short header")
	}
	if p[0]>>5 != 1 {
		return nil, errs.New(errs.BadMessage, "bfcp: unsupported version")
	}
	words := int(p[2])<<8 | int(p[3])
	attrLen := words * 4
	if len(p) < headerSize+attrLen {
		return nil, errs.New(errs.NeedsMoreData, "bfcp: attrs truncated")
	}

	m := &Message{
		Primitive:     Primitive(p[1]),
		ConferenceID:  uint32(p[4])<<24 | uint32(p[5])<<16 | uint32(p[6])<<8 | uint32(p[7]),
		TransactionID: uint16(p[8])<<8 | uint16(p[9]),
		UserID:        uint16(p[10])<<8 | uint16(p[11]),
	}

	region := p[headerSize : headerSize+attrLen]
	attrs, err := decodeAttrs(region)
	if err != nil {
		return nil, err
	}
	m.Attrs = attrs
	return m, nil
}

func decodeAttrs(region []byte) ([]*Attr, error) {
	var out []*Attr
	off := 0
	for off < len(region) {
		if off+attrHdrSize > len(region) {
			return nil, errs.New(errs.BadMessage, "bfcp: truncated attribute header")
		}
		typeByte := region[off]
		totalLen := int(region[off+1])
		if totalLen < attrHdrSize {
			return nil, errs.New(errs.BadMessage, "bfcp: attribute total_length too small")
		}
		if off+totalLen > len(region) {
			return nil, errs.New(errs.BadMessage, "bfcp: attribute overruns region")
		}

		a := &Attr{
			Type:      AttrType(typeByte >> 1),
			Mandatory: typeByte&0x01 != 0,
		}
		valueRegion := region[off+attrHdrSize : off+totalLen]

		if groupedTypes[a.Type] {
			if len(valueRegion) < 2 {
				return nil, errs.New(errs.BadMessage, "bfcp: grouped attribute missing preamble")
			}
			copy(a.Preamble[:], valueRegion[:2])
			children, err := decodeAttrs(trimPadding(valueRegion[2:]))
			if err != nil {
				return nil, err
			}
			a.Children = children
		} else {
			a.Value = append([]byte(nil), valueRegion...)
		}

		out = append(out, a)
		off += totalLen
		// totalLen is already a multiple of 4 by construction of a
		// well-formed encoder, but decode tolerates padding beyond the
		// declared children bytes by relying on totalLen alone.
	}
	return out, nil
}

// trimPadding is a no-op placeholder: nested children are bounded by
// their own totalLen fields, and any trailing zero padding within the
// parent's region simply yields no further attributes once offsets run
// past real data.
func trimPadding(b []byte) []byte { return b }

// Get returns the first direct child attribute of type t, if any.
func (a *Attr) Get(t AttrType) (*Attr, bool) {
	for _, c := range a.Children {
		if c.Type == t {
			return c, true
		}
	}
	return nil, false
}

// Get returns the first top-level attribute of type t, if any.
func (m *Message) Get(t AttrType) (*Attr, bool) {
	for _, a := range m.Attrs {
		if a.Type == t {
			return a, true
		}
	}
	return nil, false
}

// U16Value interprets a leaf attribute's value as a big-endian u16
// (BENEFICIARY-ID, FLOOR-ID, FLOOR-REQUEST-ID all share this shape).
func (a *Attr) U16Value() uint16 {
	if len(a.Value) < 2 {
		return 0
	}
	return uint16(a.Value[0])<<8 | uint16(a.Value[1])
}

// NewU16Attr builds a leaf attribute carrying a big-endian u16 value.
func NewU16Attr(t AttrType, mandatory bool, v uint16) *Attr {
	return &Attr{Type: t, Mandatory: mandatory, Value: []byte{byte(v >> 8), byte(v)}}
}
