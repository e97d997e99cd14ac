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
	"github.com/go-libre/libre/errs"
)

// SetChunkSize (type 1) notifies the peer of the new maximum chunk
// payload size.
type SetChunkSize struct {
	ChunkSize uint32
}

func NewSetChunkSize() *SetChunkSize {
	return &SetChunkSize{ChunkSize: defaultChunkSize}
}

func (v *SetChunkSize) BetterCid() chunkID  { return chunkIDProtocolControl }
func (v *SetChunkSize) Type() MessageType   { return MessageTypeSetChunkSize }
func (v *SetChunkSize) Size() int           { return 4 }

func (v *SetChunkSize) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return errs.New(errs.NeedsMoreData, "rtmp: set-chunk-size short")
	}
	b := buf.Wrap(data)
	v.ChunkSize, _ = b.ReadU32()
	return nil
}

func (v *SetChunkSize) MarshalBinary() ([]byte, error) {
	b := buf.New(4)
	b.WriteU32(v.ChunkSize)
	return b.Bytes(), nil
}

// WindowAcknowledgementSize (type 5) tells the peer which window size
// to use when sending acknowledgements.
type WindowAcknowledgementSize struct {
	AckSize uint32
}

func NewWindowAcknowledgementSize() *WindowAcknowledgementSize {
	return &WindowAcknowledgementSize{}
}

func (v *WindowAcknowledgementSize) BetterCid() chunkID { return chunkIDProtocolControl }
func (v *WindowAcknowledgementSize) Type() MessageType  { return MessageTypeWindowAcknowledgementSize }
func (v *WindowAcknowledgementSize) Size() int          { return 4 }

func (v *WindowAcknowledgementSize) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return errs.New(errs.NeedsMoreData, "rtmp: window-ack-size short")
	}
	b := buf.Wrap(data)
	v.AckSize, _ = b.ReadU32()
	return nil
}

func (v *WindowAcknowledgementSize) MarshalBinary() ([]byte, error) {
	b := buf.New(4)
	b.WriteU32(v.AckSize)
	return b.Bytes(), nil
}

// LimitType marks a SetPeerBandwidth limit as hard, soft or dynamic.
type LimitType uint8

const (
	LimitTypeHard LimitType = iota
	LimitTypeSoft
	LimitTypeDynamic
)

// SetPeerBandwidth (type 6) updates the output bandwidth the peer
// should use.
type SetPeerBandwidth struct {
	Bandwidth uint32
	LimitType LimitType
}

func NewSetPeerBandwidth() *SetPeerBandwidth {
	return &SetPeerBandwidth{}
}

func (v *SetPeerBandwidth) BetterCid() chunkID { return chunkIDProtocolControl }
func (v *SetPeerBandwidth) Type() MessageType  { return MessageTypeSetPeerBandwidth }
func (v *SetPeerBandwidth) Size() int          { return 5 }

func (v *SetPeerBandwidth) UnmarshalBinary(data []byte) error {
	if len(data) < 5 {
		return errs.New(errs.NeedsMoreData, "rtmp: set-peer-bandwidth short")
	}
	b := buf.Wrap(data)
	v.Bandwidth, _ = b.ReadU32()
	lt, _ := b.ReadU8()
	v.LimitType = LimitType(lt)
	return nil
}

func (v *SetPeerBandwidth) MarshalBinary() ([]byte, error) {
	b := buf.New(5)
	b.WriteU32(v.Bandwidth)
	b.WriteU8(byte(v.LimitType))
	return b.Bytes(), nil
}

// UserControlEvent is the 2-byte event type of a User Control message
// (type 4).
type UserControlEvent uint16

const (
	UserControlStreamBegin UserControlEvent = iota
	UserControlStreamEOF
	UserControlStreamDry
	UserControlSetBufferLength
	UserControlStreamIsRecorded
	_ // 5 is reserved
	UserControlPingRequest
	UserControlPingResponse
)

// UserControl (type 4) carries one of the StreamBegin/StreamEOF/
// PingRequest/PingResponse events named above. Data holds whatever
// 4-byte (or 8-byte, for SetBufferLength) payload the event defines;
// callers that care about a specific event's fields decode Data
// themselves.
type UserControl struct {
	Event UserControlEvent
	Data  []byte
}

func NewUserControl() *UserControl {
	return &UserControl{}
}

func (v *UserControl) BetterCid() chunkID { return chunkIDProtocolControl }
func (v *UserControl) Type() MessageType  { return MessageTypeUserControl }
func (v *UserControl) Size() int          { return 2 + len(v.Data) }

func (v *UserControl) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return errs.New(errs.NeedsMoreData, "rtmp: user-control short")
	}
	b := buf.Wrap(data)
	ev, _ := b.ReadU16()
	v.Event = UserControlEvent(ev)
	v.Data = append([]byte(nil), b.Unread()...)
	return nil
}

func (v *UserControl) MarshalBinary() ([]byte, error) {
	b := buf.New(2 + len(v.Data))
	b.WriteU16(uint16(v.Event))
	b.WriteBytes(v.Data)
	return b.Bytes(), nil
}

// NewStreamBegin builds a StreamBegin event for streamID.
func NewStreamBegin(streamID uint32) *UserControl {
	b := buf.New(4)
	b.WriteU32(streamID)
	return &UserControl{Event: UserControlStreamBegin, Data: b.Bytes()}
}

// NewStreamEOF builds a StreamEOF event for streamID.
func NewStreamEOF(streamID uint32) *UserControl {
	b := buf.New(4)
	b.WriteU32(streamID)
	return &UserControl{Event: UserControlStreamEOF, Data: b.Bytes()}
}

// NewPingResponse echoes the PingRequest's timestamp back to the peer.
func NewPingResponse(timestamp uint32) *UserControl {
	b := buf.New(4)
	b.WriteU32(timestamp)
	return &UserControl{Event: UserControlPingResponse, Data: b.Bytes()}
}
