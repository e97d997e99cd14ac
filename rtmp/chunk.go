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

package rtmp

import (
	"bufio"
	"io"

	"github.com/go-libre/libre/buf"
	"github.com/go-libre/libre/errs"
	"github.com/go-libre/libre/transport"
)

// maxMessagePayload caps a single RTMP message's reassembled payload,
// shared with the HTTP body reassembly cap since both ride one
// byte-stream transport.
const maxMessagePayload = transport.CapHTTPRTMP

// chunkID is the chunk stream id (RTMP "cs id"), distinct from the
// message stream id carried in MessageHeader.streamID.
type chunkID uint32

const (
	chunkIDProtocolControl chunkID = 0x02 + iota
	chunkIDOverConnection
	chunkIDOverConnection2
	chunkIDOverStream
	chunkIDOverStream2
	chunkIDVideo
	chunkIDAudio
)

// maxChunkStreams caps the number of distinct chunk stream ids a single
// connection dechunker tracks concurrently; a peer opening more than
// this many is treated as a protocol violation rather than an unbounded
// allocation.
const maxChunkStreams = 64

// formatType selects the chunk message header encoding (fmt field in the
// chunk basic header).
type formatType uint8

const (
	// Type 0: 11-byte header, MUST start every chunk stream and MUST be
	// used whenever the stream timestamp goes backward.
	formatType0 formatType = iota
	// Type 1: 7-byte header, reuses the message stream id of the
	// preceding chunk.
	formatType1
	// Type 2: 3-byte header, reuses stream id and message length too.
	formatType2
	// Type 3: no header; takes every field from the preceding chunk.
	formatType3
)

// messageHeaderSizes is the wire size of the chunk message header,
// indexed by format: 11/7/3/0 bytes for format 0/1/2/3.
var messageHeaderSizes = []int{11, 7, 3, 0}

// extendedTimestampSentinel is the sentinel normal-timestamp value (0x00ffffff)
// that forces a trailing 4-byte extended timestamp field.
const extendedTimestampSentinel = uint64(0xffffff)

// defaultChunkSize is the chunk payload size new connections start with,
// before any Set Chunk Size control message changes it.
const defaultChunkSize = 128

// chunkStream is the per-cs-id dechunker state: the message header
// most recently seen on this id (inherited by format 1/2/3 chunks) and
// the message currently being reassembled.
type chunkStream struct {
	format            formatType
	cid               chunkID
	header            MessageHeader
	message           *Message
	count             uint64
	extendedTimestamp bool
}

func newChunkStream() *chunkStream {
	return &chunkStream{}
}

// writeBasicHeader encodes the chunk basic header for cid, in the
// 1/2/3-byte form RFC-mandated by how large cid is:
//
//	2-63:       1 byte,  fmt<<6 | cid
//	64-319:     2 bytes, fmt<<6 | 0, then (cid-64) as a single byte
//	320-65599:  3 bytes, fmt<<6 | 1, then (cid-64) as little-endian u16
//
// The original source's header encoder wrote only the 1-byte form,
// silently truncating any cid above 63; this restores the full range the
// wire format allows.
func writeBasicHeader(format formatType, cid chunkID) ([]byte, error) {
	switch {
	case cid >= 2 && cid <= 63:
		return []byte{byte(format)<<6 | byte(cid)}, nil
	case cid >= 64 && cid <= 319:
		return []byte{byte(format) << 6, byte(cid - 64)}, nil
	case cid >= 320 && cid <= 65599:
		rest := uint16(cid - 64)
		return []byte{byte(format)<<6 | 1, byte(rest), byte(rest >> 8)}, nil
	default:
		return nil, errs.New(errs.InvalidArgument, "rtmp: chunk id out of range")
	}
}

// basicHeaderSize returns how many bytes writeBasicHeader would emit for
// cid, without allocating.
func basicHeaderSize(cid chunkID) int {
	switch {
	case cid <= 63:
		return 1
	case cid <= 319:
		return 2
	default:
		return 3
	}
}

func (p *Protocol) readBasicHeader() (format formatType, cid chunkID, err error) {
	b0, err := p.r.ReadByte()
	if err != nil {
		return
	}
	format = formatType((b0 >> 6) & 0x03)
	low6 := b0 & 0x3f

	// 2-63: the low 6 bits of the first byte are the id itself.
	if low6 > 1 {
		cid = chunkID(low6)
		return
	}

	// low6==0 selects the 2-byte form (64-319); low6==1 selects the
	// 3-byte form (320-65599, id-64 little-endian over the next 2
	// bytes). The original source collapsed both into one path by
	// overwriting cid with 64+b1 before checking which form was meant,
	// so the 3-byte form could never actually be reached.
	b1, err := p.r.ReadByte()
	if err != nil {
		return
	}
	if low6 == 0 {
		cid = chunkID(64 + uint32(b1))
		return
	}

	b2, err := p.r.ReadByte()
	if err != nil {
		return
	}
	cid = chunkID(64 + uint32(b1) + uint32(b2)*256)
	return
}

// readMessageHeader parses the chunk message header that follows the
// basic header, applying the format 0/1/2/3 inheritance rules from the
// chunk stream's prior header.
func (p *Protocol) readMessageHeader(chunk *chunkStream, format formatType) (err error) {
	var isFirstChunkOfMsg bool
	if chunk.message == nil {
		isFirstChunkOfMsg = true
	}

	// A fresh chunk stream must start with fmt=0, except FMLE's known
	// fmt=1 ping quirk on the protocol-control cid.
	if chunk.count == 0 && format != formatType0 {
		if chunk.header.betterCid == chunkIDProtocolControl && format == formatType1 {
			// Accepted to interoperate with FMLE-style pings.
		} else {
			return errs.New(errs.BadMessage, "rtmp: fresh chunk stream must start with format 0")
		}
	}

	if chunk.message != nil && format == formatType0 {
		return errs.New(errs.BadMessage, "rtmp: format 0 chunk on an in-progress message")
	}

	if chunk.message == nil {
		chunk.message = NewMessage()
	}

	raw, err := readExact(p.r, messageHeaderSizes[format])
	if err != nil {
		return
	}
	h := buf.Wrap(raw)

	if format <= formatType2 {
		delta, _ := h.ReadU24()
		chunk.header.timestampDelta = delta

		chunk.extendedTimestamp = uint64(delta) >= extendedTimestampSentinel
		if !chunk.extendedTimestamp {
			if format == formatType0 {
				chunk.header.timestamp = uint64(delta)
			} else {
				chunk.header.timestamp += uint64(delta)
			}
		}

		if format <= formatType1 {
			payloadLength, _ := h.ReadU24()
			if !isFirstChunkOfMsg && chunk.header.payloadLength != payloadLength {
				return errs.New(errs.BadMessage, "rtmp: chunk message length changed mid-message")
			}
			if payloadLength > maxMessagePayload {
				return errs.New(errs.Overflow, "rtmp: message length exceeds cap")
			}
			chunk.header.payloadLength = payloadLength

			mt, _ := h.ReadU8()
			chunk.header.messageType = MessageType(mt)

			if format == formatType0 {
				var sid [4]byte
				b4, _ := h.ReadBytes(4)
				copy(sid[:], b4)
				chunk.header.streamID = uint32(sid[0]) | uint32(sid[1])<<8 | uint32(sid[2])<<16 | uint32(sid[3])<<24
			}
		}
	} else if isFirstChunkOfMsg && !chunk.extendedTimestamp {
		chunk.header.timestamp += uint64(chunk.header.timestampDelta)
	}

	if chunk.extendedTimestamp {
		extRaw, err2 := readExact(p.r, 4)
		if err2 != nil {
			return err2
		}
		timestamp := buf.Wrap(extRaw)
		ts, _ := timestamp.ReadU32()
		// Treated as a 31-bit value: some peers use the full 32 bits but
		// RTMP/FLV timestamps are specified as signed 31-bit milliseconds.
		chunk.header.timestamp = uint64(ts & 0x7fffffff)
	}
	chunk.header.timestamp &= 0x7fffffff

	chunk.message.MessageHeader = chunk.header
	chunk.count++

	return
}

// readExact reads exactly n bytes, returning an empty slice for n==0
// without touching the reader (format 3 chunks carry no header at all).
func readExact(r *bufio.Reader, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r, p); err != nil {
		return nil, err
	}
	return p, nil
}
