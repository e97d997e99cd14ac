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

// The libre stun package is the RFC 5389 message codec and client
// transaction engine the ICE agent's connectivity checks and its inbound
// binding server both build on.
package stun

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"net"
	"strconv"

	"github.com/go-libre/libre/buf"
	"github.com/go-libre/libre/crypto"
	"github.com/go-libre/libre/errs"
)

const magicCookie uint32 = 0x2112A442

// Class is the STUN message class (request/indication/success/error).
type Class uint16

const (
	ClassRequest    Class = 0x000
	ClassIndication Class = 0x010
	ClassSuccess    Class = 0x100
	ClassError      Class = 0x110
)

// Method is the STUN method; Binding is the only one the ICE core uses.
type Method uint16

const MethodBinding Method = 0x001

// AttrType names a STUN attribute type.
type AttrType uint16

const (
	AttrMappedAddress     AttrType = 0x0001
	AttrUsername          AttrType = 0x0006
	AttrMessageIntegrity  AttrType = 0x0008
	AttrErrorCode         AttrType = 0x0009
	AttrUnknownAttributes AttrType = 0x000A
	AttrXorMappedAddress  AttrType = 0x0020
	AttrPriority          AttrType = 0x0024
	AttrUseCandidate      AttrType = 0x0025
	AttrFingerprint       AttrType = 0x8028
	AttrIceControlled     AttrType = 0x8029
	AttrIceControlling    AttrType = 0x802A
)

const fingerprintXor uint32 = 0x5354554e

// TransactionID is the 96-bit STUN transaction id.
type TransactionID [12]byte

// NewTransactionID draws a cryptographically random transaction id:
// STUN tids must be crypto-random to prevent cross-talk between
// concurrent transactions.
func NewTransactionID() (TransactionID, error) {
	var tid TransactionID
	if _, err := rand.Read(tid[:]); err != nil {
		return tid, errs.Wrap(errs.InvalidArgument, "stun: rng failure", err)
	}
	return tid, nil
}

// Attr is one decoded STUN attribute.
type Attr struct {
	Type  AttrType
	Value []byte
}

// Message is a decoded or to-be-encoded STUN message.
type Message struct {
	Method Method
	Class  Class
	TID    TransactionID
	Attrs  []Attr
}

// Add appends a raw attribute.
func (m *Message) Add(t AttrType, value []byte) {
	m.Attrs = append(m.Attrs, Attr{Type: t, Value: value})
}

// Get returns the first attribute of type t, if present.
func (m *Message) Get(t AttrType) ([]byte, bool) {
	for _, a := range m.Attrs {
		if a.Type == t {
			return a.Value, true
		}
	}
	return nil, false
}

func messageTypeField(class Class, method Method) uint16 {
	return uint16(method) | uint16(class)
}

// Encode serializes m. If integrityKey is non-nil, a MESSAGE-INTEGRITY
// attribute (HMAC-SHA1 over everything up to itself, with the length
// field pre-adjusted to include it) is appended. If fingerprint is true,
// a FINGERPRINT attribute (CRC32 of everything before it, XORed with
// 0x5354554e) is appended last.
func Encode(m *Message, integrityKey []byte, fingerprint bool) []byte {
	b := buf.New(64)
	b.WriteU16(messageTypeField(m.Class, m.Method))
	b.WriteU16(0) // length placeholder
	b.WriteU32(magicCookie)
	b.WriteBytes(m.TID[:])

	for _, a := range m.Attrs {
		writeAttr(b, a.Type, a.Value)
	}

	if integrityKey != nil {
		// Pre-adjust length to include the 24-byte MESSAGE-INTEGRITY
		// attribute before computing the HMAC over the header.
		patchLength(b, attrRegionLen(b)+24)
		mac := crypto.NewHMAC(integrityKey).Digest(b.Bytes())
		writeAttr(b, AttrMessageIntegrity, mac)
	}

	if fingerprint {
		patchLength(b, attrRegionLen(b)+8)
		sum := crc32.ChecksumIEEE(b.Bytes()) ^ fingerprintXor
		var fp [4]byte
		binary.BigEndian.PutUint32(fp[:], sum)
		writeAttr(b, AttrFingerprint, fp[:])
	}

	patchLength(b, attrRegionLen(b))
	return b.Bytes()
}

func attrRegionLen(b *buf.Buffer) int {
	return b.End() - 20
}

func patchLength(b *buf.Buffer, attrLen int) {
	data := b.Bytes()
	binary.BigEndian.PutUint16(data[2:4], uint16(attrLen))
}

func writeAttr(b *buf.Buffer, t AttrType, value []byte) {
	b.WriteU16(uint16(t))
	b.WriteU16(uint16(len(value)))
	b.WriteBytes(value)
	if pad := (4 - len(value)%4) % 4; pad > 0 {
		b.WriteBytes(make([]byte, pad))
	}
}

// Decode parses a STUN message. It returns errs.NeedsMoreData if p is
// too short for the declared length, errs.BadMessage for a malformed
// header or truncated attribute.
func Decode(p []byte) (*Message, []AttrType, error) {
	if len(p) < 20 {
		return nil, nil, errs.New(errs.NeedsMoreData, "stun: short header")
	}
	typ := binary.BigEndian.Uint16(p[0:2])
	length := int(binary.BigEndian.Uint16(p[2:4]))
	cookie := binary.BigEndian.Uint32(p[4:8])
	if cookie != magicCookie {
		return nil, nil, errs.New(errs.BadMessage, "stun: bad magic cookie")
	}
	if len(p) < 20+length {
		return nil, nil, errs.New(errs.NeedsMoreData, "stun: attrs truncated")
	}

	m := &Message{
		Method: Method(typ &^ 0x110),
		Class:  Class(typ & 0x110),
	}
	copy(m.TID[:], p[8:20])

	var unknown []AttrType
	off := 20
	end := 20 + length
	for off+4 <= end {
		t := AttrType(binary.BigEndian.Uint16(p[off : off+2]))
		l := int(binary.BigEndian.Uint16(p[off+2 : off+4]))
		off += 4
		if off+l > end {
			return nil, nil, errs.New(errs.BadMessage, "stun: attribute overruns message")
		}
		val := p[off : off+l]
		m.Attrs = append(m.Attrs, Attr{Type: t, Value: append([]byte(nil), val...)})
		off += l
		if pad := (4 - l%4) % 4; pad > 0 {
			off += pad
		}
		if !knownAttr(t) {
			unknown = append(unknown, t)
		}
	}
	return m, unknown, nil
}

// knownAttr reports whether t is an attribute this codec understands.
// Per RFC 5389, types >= 0x8000 are comprehension-optional: an unknown
// one in that range is skipped silently, never added to the
// unknown-comprehension-required list Decode returns.
func knownAttr(t AttrType) bool {
	switch t {
	case AttrMappedAddress, AttrUsername, AttrMessageIntegrity, AttrErrorCode,
		AttrUnknownAttributes, AttrXorMappedAddress, AttrPriority, AttrUseCandidate,
		AttrFingerprint, AttrIceControlled, AttrIceControlling:
		return true
	default:
		return t >= 0x8000
	}
}

// VerifyFingerprint validates a trailing FINGERPRINT attribute against
// the bytes preceding it.
func VerifyFingerprint(raw []byte) error {
	if len(raw) < 8 {
		return errs.New(errs.BadMessage, "stun: message too short for fingerprint")
	}
	tail := raw[len(raw)-8:]
	if AttrType(binary.BigEndian.Uint16(tail[0:2])) != AttrFingerprint {
		return errs.New(errs.BadMessage, "stun: no trailing fingerprint")
	}
	want := binary.BigEndian.Uint32(tail[4:8])
	got := crc32.ChecksumIEEE(raw[:len(raw)-8]) ^ fingerprintXor
	if want != got {
		return errs.New(errs.BadMessage, "stun: fingerprint mismatch")
	}
	return nil
}

// VerifyIntegrity recomputes MESSAGE-INTEGRITY over raw up to that
// attribute and compares it in constant time against key. raw must not
// include any attribute that comes after MESSAGE-INTEGRITY on the wire
// (i.e. callers strip FINGERPRINT first if present).
func VerifyIntegrity(raw []byte, key []byte) error {
	if len(raw) < 24 {
		return errs.New(errs.BadMessage, "stun: message too short for integrity")
	}
	tail := raw[len(raw)-24:]
	if AttrType(binary.BigEndian.Uint16(tail[0:2])) != AttrMessageIntegrity {
		return errs.New(errs.BadMessage, "stun: no trailing message-integrity")
	}
	mac := tail[4:24]
	header := raw[:len(raw)-24]
	if err := crypto.VerifyHMAC(key, header, mac); err != nil {
		return errs.Wrap(errs.AuthFailed, "stun: integrity mismatch", err)
	}
	return nil
}

// EncodeXorMappedAddress builds the value of an XOR-MAPPED-ADDRESS (or
// MAPPED-ADDRESS, with xor=false) attribute for "ip:port", per RFC 5389
// §15.2. IPv4 only: the ICE core in this module gathers IPv4 candidates.
func EncodeXorMappedAddress(addr string, tid TransactionID, xor bool) ([]byte, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "stun: bad address", err)
	}
	ip := net.ParseIP(host).To4()
	if ip == nil {
		return nil, errs.New(errs.InvalidArgument, "stun: only ipv4 addresses are supported")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, errs.New(errs.InvalidArgument, "stun: bad port")
	}

	v := make([]byte, 8)
	v[0] = 0
	v[1] = 0x01 // family: IPv4
	portVal := uint16(port)
	copy(v[4:8], ip)

	if xor {
		portVal ^= uint16(magicCookie >> 16)
		var cookieAndTid [16]byte
		binary.BigEndian.PutUint32(cookieAndTid[0:4], magicCookie)
		copy(cookieAndTid[4:16], tid[:])
		for i := 0; i < 4; i++ {
			v[4+i] ^= cookieAndTid[i]
		}
	}
	binary.BigEndian.PutUint16(v[2:4], portVal)
	return v, nil
}

// DecodeXorMappedAddress parses an XOR-MAPPED-ADDRESS (or, with
// xor=false, MAPPED-ADDRESS) attribute value into "ip:port". Only the
// IPv4 family is supported.
func DecodeXorMappedAddress(value []byte, tid TransactionID, xor bool) (string, error) {
	if len(value) < 8 {
		return "", errs.New(errs.BadMessage, "stun: mapped-address too short")
	}
	if value[1] != 0x01 {
		return "", errs.New(errs.BadMessage, "stun: unsupported address family")
	}
	port := binary.BigEndian.Uint16(value[2:4])
	ip := append([]byte(nil), value[4:8]...)

	if xor {
		port ^= uint16(magicCookie >> 16)
		var cookieAndTid [16]byte
		binary.BigEndian.PutUint32(cookieAndTid[0:4], magicCookie)
		copy(cookieAndTid[4:16], tid[:])
		for i := 0; i < 4; i++ {
			ip[i] ^= cookieAndTid[i]
		}
	}
	return fmt.Sprintf("%s:%d", net.IP(ip).String(), port), nil
}

// EncodeErrorCode builds an ERROR-CODE attribute value for the given
// three-digit code (e.g. 487) and reason phrase, per RFC 5389 §15.6.
func EncodeErrorCode(code int, reason string) []byte {
	v := make([]byte, 4+len(reason))
	v[2] = byte(code / 100)
	v[3] = byte(code % 100)
	copy(v[4:], reason)
	return v
}

// DecodeErrorCode parses an ERROR-CODE attribute value into its numeric
// code and reason phrase.
func DecodeErrorCode(value []byte) (int, string, error) {
	if len(value) < 4 {
		return 0, "", errs.New(errs.BadMessage, "stun: error-code too short")
	}
	code := int(value[2])*100 + int(value[3])
	return code, string(value[4:]), nil
}

// StripFingerprint returns raw with its trailing FINGERPRINT attribute
// removed, if present, for integrity verification
// ("fingerprint covers everything up to but excluding itself").
func StripFingerprint(raw []byte) []byte {
	if len(raw) >= 8 {
		tail := raw[len(raw)-8:]
		if AttrType(binary.BigEndian.Uint16(tail[0:2])) == AttrFingerprint {
			trimmed := append([]byte(nil), raw[:len(raw)-8]...)
			binary.BigEndian.PutUint16(trimmed[2:4], uint16(len(trimmed)-20))
			return trimmed
		}
	}
	return raw
}
