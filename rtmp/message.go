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
	"github.com/go-libre/libre/buf"
)

// MessageType is the RTMP message type id. Ids 1-7 are reserved for
// protocol control messages; the rest carry application data.
type MessageType uint8

const (
	MessageTypeSetChunkSize               MessageType = 0x01 + iota
	MessageTypeAbort                                  // 0x02
	MessageTypeAcknowledgement                        // 0x03
	MessageTypeUserControl                            // 0x04
	MessageTypeWindowAcknowledgementSize              // 0x05
	MessageTypeSetPeerBandwidth                       // 0x06
	MessageTypeEdgeAndOriginServerCommand             // 0x07

	MessageTypeAudio MessageType = 0x08
	MessageTypeVideo MessageType = 0x09

	MessageTypeAMF3Command MessageType = 17 // 0x11
	MessageTypeAMF0Command MessageType = 20 // 0x14
	MessageTypeAMF0Data    MessageType = 18 // 0x12
	MessageTypeAMF3Data    MessageType = 15 // 0x0f
)

// MessageHeader is the decoded chunk message header, shared by the
// in-progress chunkStream and the fully reassembled Message it produces.
type MessageHeader struct {
	timestampDelta uint32
	payloadLength  uint32
	messageType    MessageType
	streamID       uint32

	betterCid chunkID
	timestamp uint64
}

// Message is a fully reassembled RTMP message, ready for DecodeMessage.
type Message struct {
	MessageHeader
	payload []byte
}

func NewMessage() *Message {
	return &Message{}
}

// generateC0Header builds the format-0 (11 or 15-byte, plus basic
// header) chunk header used for the first chunk of a message.
func (v *Message) generateC0Header() ([]byte, error) {
	basic, err := writeBasicHeader(formatType0, v.betterCid)
	if err != nil {
		return nil, err
	}

	b := buf.New(len(basic) + 11 + 4)
	b.WriteBytes(basic)

	if v.timestamp < extendedTimestampSentinel {
		b.WriteU24(uint32(v.timestamp))
	} else {
		b.WriteU24(uint32(extendedTimestampSentinel))
	}
	b.WriteU24(v.payloadLength)
	b.WriteU8(byte(v.messageType))
	// stream id is little-endian on the wire.
	b.WriteU8(byte(v.streamID))
	b.WriteU8(byte(v.streamID >> 8))
	b.WriteU8(byte(v.streamID >> 16))
	b.WriteU8(byte(v.streamID >> 24))

	if v.timestamp >= extendedTimestampSentinel {
		b.WriteU32(uint32(v.timestamp))
	}

	return b.Bytes(), nil
}

// generateC3Header builds the format-3 (no message header, just the
// basic header and an optional extended timestamp) chunk header used
// for every chunk of a message after the first.
func (v *Message) generateC3Header() ([]byte, error) {
	basic, err := writeBasicHeader(formatType3, v.betterCid)
	if err != nil {
		return nil, err
	}

	b := buf.New(len(basic) + 4)
	b.WriteBytes(basic)

	// Real encoders (FMS/AMS, Flash, FMLE) always carry the extended
	// timestamp in the format-3 header even though the wire format only
	// strictly requires it on format 0/1/2; matching that keeps this
	// interoperable rather than strictly minimal.
	if v.timestamp >= extendedTimestampSentinel {
		b.WriteU32(uint32(v.timestamp))
	}

	return b.Bytes(), nil
}
