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
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/go-libre/libre/amf0"
	"github.com/go-libre/libre/buf"
)

// settings is the per-direction chunk size, updated by a Set Chunk Size
// control message.
type settings struct {
	chunkSize uint32
}

func newSettings() *settings {
	return &settings{chunkSize: defaultChunkSize}
}

// StreamState is the protocol's bookkeeping for one NetStream: the
// message stream id RTMP multiplexes play/publish/audio/video messages
// over, and what it's currently being used for.
type StreamState struct {
	ID         uint32
	Name       string
	Mode       string // publish mode: "live", "record" or "append"
	Publishing bool
	Playing    bool
}

// Protocol dechunks and reassembles RTMP messages off rw, decodes them
// into Packets, and tracks the connection's chunk-size settings,
// outstanding command transactions and NetStream table.
type Protocol struct {
	r *bufio.Reader
	w *bufio.Writer

	input struct {
		opt    *settings
		chunks map[chunkID]*chunkStream

		transactions  map[amf0.Number]amf0.String
		ltransactions sync.Mutex
	}
	output struct {
		opt *settings
	}

	nextTransactionID amf0.Number
	ltransactionID    sync.Mutex

	streams      map[uint32]*StreamState
	lstreams     sync.Mutex
	nextStreamID uint32

	// CommandHandler, when set, is invoked for every incoming command
	// this protocol doesn't fully interpret itself: createStream,
	// publish, play, onStatus and anything an application recognizes
	// that this package does not.
	CommandHandler func(streamID uint32, cmd *CommandPacket)
}

func NewProtocol(rw io.ReadWriter) *Protocol {
	v := &Protocol{
		r: bufio.NewReader(rw),
		w: bufio.NewWriter(rw),
	}

	v.input.opt = newSettings()
	v.input.chunks = map[chunkID]*chunkStream{}
	v.input.transactions = map[amf0.Number]amf0.String{}

	v.output.opt = newSettings()

	// Transaction id 0 is reserved for fire-and-forget notifications
	// (onStatus, etc); connect always uses 1.
	v.nextTransactionID = 2

	v.streams = map[uint32]*StreamState{}
	v.nextStreamID = 1

	return v
}

// NewTransactionID allocates the next command transaction id.
func (v *Protocol) NewTransactionID() amf0.Number {
	v.ltransactionID.Lock()
	defer v.ltransactionID.Unlock()

	id := v.nextTransactionID
	v.nextTransactionID++
	return id
}

// AllocateStream reserves a message stream id for a NetStream the local
// side is about to createStream/publish/play.
func (v *Protocol) AllocateStream() *StreamState {
	v.lstreams.Lock()
	defer v.lstreams.Unlock()

	s := &StreamState{ID: v.nextStreamID}
	v.streams[s.ID] = s
	v.nextStreamID++
	return s
}

// Stream looks up a tracked NetStream by its message stream id.
func (v *Protocol) Stream(id uint32) (*StreamState, bool) {
	v.lstreams.Lock()
	defer v.lstreams.Unlock()

	s, ok := v.streams[id]
	return s, ok
}

func (v *Protocol) closeStream(id uint32) {
	v.lstreams.Lock()
	defer v.lstreams.Unlock()
	delete(v.streams, id)
}

func (v *Protocol) ExpectPacket(filter func(*Message, Packet) bool) (m *Message, pkt Packet, err error) {
	for {
		if m, err = v.ReadMessage(); err != nil {
			return
		}

		if pkt, err = v.DecodeMessage(m); err != nil {
			return
		}

		if filter(m, pkt) {
			return
		}
	}
}

func (v *Protocol) ExpectMessage(types ...MessageType) (m *Message, err error) {
	for {
		if m, err = v.ReadMessage(); err != nil {
			return
		}

		if len(types) == 0 {
			return
		}

		for _, t := range types {
			if m.messageType == t {
				return
			}
		}
	}
}

// parseAMFObject decodes the command name out of an AMF0/AMF3 command
// payload and picks the concrete Packet type to finish decoding it into:
// a _result/_error reply is matched against the pending transaction
// table (and decoded as the reply shape that request expects); anything
// else is an incoming request, decoded as ConnectAppPacket for connect
// and as the generic CommandPacket for every other command name.
func (v *Protocol) parseAMFObject(p []byte) (pkt Packet, err error) {
	var commandName amf0.String
	if err = commandName.UnmarshalBinary(p); err != nil {
		return
	}

	if commandName == commandResult || commandName == commandError {
		var transactionID amf0.Number
		if err = transactionID.UnmarshalBinary(p[commandName.Size():]); err != nil {
			return
		}

		var requestName amf0.String
		if err = func() error {
			v.input.ltransactions.Lock()
			defer v.input.ltransactions.Unlock()

			var ok bool
			if requestName, ok = v.input.transactions[transactionID]; !ok {
				return fmt.Errorf("no matching request for transaction %v", float64(transactionID))
			}
			delete(v.input.transactions, transactionID)

			return nil
		}(); err != nil {
			return
		}

		switch requestName {
		case commandConnect:
			pkt = NewConnectAppResPacket(transactionID)
		default:
			pkt = &CommandPacket{}
		}
		return pkt, pkt.UnmarshalBinary(p)
	}

	switch commandName {
	case commandConnect:
		pkt = NewConnectAppPacket()
	default:
		pkt = &CommandPacket{}
	}
	return pkt, pkt.UnmarshalBinary(p)
}

func (v *Protocol) DecodeMessage(m *Message) (pkt Packet, err error) {
	p := m.payload[:]
	if len(p) == 0 {
		return nil, fmt.Errorf("empty packet")
	}

	switch m.messageType {
	case MessageTypeAMF3Command, MessageTypeAMF3Data:
		p = p[1:]
	}

	switch m.messageType {
	case MessageTypeSetChunkSize:
		pkt = NewSetChunkSize()
	case MessageTypeWindowAcknowledgementSize:
		pkt = NewWindowAcknowledgementSize()
	case MessageTypeSetPeerBandwidth:
		pkt = NewSetPeerBandwidth()
	case MessageTypeUserControl:
		pkt = NewUserControl()
	case MessageTypeAMF0Command, MessageTypeAMF3Command, MessageTypeAMF0Data, MessageTypeAMF3Data:
		if pkt, err = v.parseAMFObject(p); err != nil {
			return nil, fmt.Errorf("parse amf %v failed, %v", m.messageType, err)
		}
		return pkt, nil
	default:
		return nil, fmt.Errorf("unknown message type %v", m.messageType)
	}

	if err = pkt.UnmarshalBinary(p); err != nil {
		return nil, fmt.Errorf("unmarshal %v failed, %v", m.messageType, err)
	}

	return
}

func (v *Protocol) ReadMessage() (m *Message, err error) {
	for m == nil {
		var cid chunkID
		var format formatType
		if format, cid, err = v.readBasicHeader(); err != nil {
			return
		}

		chunk, ok := v.input.chunks[cid]
		if !ok {
			if len(v.input.chunks) >= maxChunkStreams {
				return nil, fmt.Errorf("rtmp: too many concurrent chunk streams")
			}
			chunk = newChunkStream()
			v.input.chunks[cid] = chunk
			chunk.header.betterCid = cid
		}

		if err = v.readMessageHeader(chunk, format); err != nil {
			return
		}

		if m, err = v.readMessagePayload(chunk); err != nil {
			return
		}

		if err = v.onMessageArrivated(m); err != nil {
			return
		}
	}

	return
}

func (v *Protocol) readMessagePayload(chunk *chunkStream) (m *Message, err error) {
	if chunk.message.payloadLength == 0 {
		m = chunk.message
		chunk.message = nil
		return
	}

	chunkedPayloadSize := int(chunk.message.payloadLength) - len(chunk.message.payload)
	if chunkedPayloadSize > int(v.input.opt.chunkSize) {
		chunkedPayloadSize = int(v.input.opt.chunkSize)
	}

	b := make([]byte, chunkedPayloadSize)
	if _, err = io.ReadFull(v.r, b); err != nil {
		return
	}

	chunk.message.payload = append(chunk.message.payload, b...)

	if int(chunk.message.payloadLength) == len(chunk.message.payload) {
		m = chunk.message
		chunk.message = nil
	}

	return
}

// onMessageArrivated applies the protocol-level effects of a few message
// types as they arrive: SetChunkSize updates the input chunk size, a
// PingRequest User Control gets an automatic PingResponse, and command
// messages update the stream table and are forwarded to CommandHandler.
// _result/_error replies are left undecoded here: decoding one consumes
// its pending transaction entry, which the caller's DecodeMessage needs.
func (v *Protocol) onMessageArrivated(m *Message) (err error) {
	var pkt Packet
	switch m.messageType {
	case MessageTypeAMF0Command, MessageTypeAMF3Command:
		p := m.payload
		if m.messageType == MessageTypeAMF3Command && len(p) > 0 {
			p = p[1:]
		}
		var name amf0.String
		if name.UnmarshalBinary(p) == nil && (name == commandResult || name == commandError) {
			return
		}
		if pkt, err = v.DecodeMessage(m); err != nil {
			return
		}
	case MessageTypeSetChunkSize, MessageTypeUserControl, MessageTypeWindowAcknowledgementSize:
		if pkt, err = v.DecodeMessage(m); err != nil {
			return
		}
	}

	switch pkt := pkt.(type) {
	case *SetChunkSize:
		v.input.opt.chunkSize = pkt.ChunkSize
	case *UserControl:
		if pkt.Event == UserControlPingRequest {
			b := buf.Wrap(pkt.Data)
			ts, _ := b.ReadU32()
			return v.WritePacket(NewPingResponse(ts), 0)
		}
	case *CommandPacket:
		v.dispatchCommand(m.streamID, pkt)
	}

	return
}

func (v *Protocol) dispatchCommand(streamID uint32, pkt *CommandPacket) {
	switch pkt.CommandName {
	case commandPublish:
		if s, ok := v.Stream(streamID); ok && len(pkt.Args) >= 2 {
			if name, ok := pkt.Args[1].(*amf0.String); ok {
				s.Name = string(*name)
			}
			if len(pkt.Args) >= 3 {
				if mode, ok := pkt.Args[2].(*amf0.String); ok {
					s.Mode = string(*mode)
				}
			}
			s.Publishing = true
		}
	case commandPlay:
		if s, ok := v.Stream(streamID); ok && len(pkt.Args) >= 2 {
			if name, ok := pkt.Args[1].(*amf0.String); ok {
				s.Name = string(*name)
			}
			s.Playing = true
		}
	case commandDeleteStream:
		if len(pkt.Args) >= 2 {
			if id, ok := pkt.Args[1].(*amf0.Number); ok {
				v.closeStream(uint32(*id))
			}
		}
	}

	if v.CommandHandler != nil {
		v.CommandHandler(streamID, pkt)
	}
}

func (v *Protocol) WritePacket(pkt Packet, streamID int) (err error) {
	m := NewMessage()

	if m.payload, err = pkt.MarshalBinary(); err != nil {
		return
	}

	m.payloadLength = uint32(len(m.payload))
	m.messageType = pkt.Type()
	m.streamID = uint32(streamID)
	m.betterCid = pkt.BetterCid()

	if err = v.writeMessage(m); err != nil {
		return
	}

	return v.onPacketWriten(m, pkt)
}

// onPacketWriten records a transaction id for any outgoing command that
// expects a _result/_error reply, so parseAMFObject can match the reply
// back to what was asked, and applies an outgoing Set Chunk Size to the
// output direction.
func (v *Protocol) onPacketWriten(m *Message, pkt Packet) (err error) {
	switch pkt := pkt.(type) {
	case *SetChunkSize:
		v.output.opt.chunkSize = pkt.ChunkSize
	case *ConnectAppPacket:
		v.registerTransaction(pkt.TransactionID, pkt.CommandName)
	case *CommandPacket:
		if pkt.TransactionID != 0 {
			v.registerTransaction(pkt.TransactionID, pkt.CommandName)
		}
	}
	return
}

func (v *Protocol) registerTransaction(tid amf0.Number, name amf0.String) {
	v.input.ltransactions.Lock()
	defer v.input.ltransactions.Unlock()
	v.input.transactions[tid] = name
}

func (v *Protocol) writeMessage(m *Message) (err error) {
	var c0h, c3h []byte
	if c0h, err = m.generateC0Header(); err != nil {
		return
	}
	if c3h, err = m.generateC3Header(); err != nil {
		return
	}

	var h []byte
	p := m.payload
	for len(p) > 0 {
		if h == nil {
			h = c0h
		} else {
			h = c3h
		}

		if _, err = io.Copy(v.w, bytes.NewReader(h)); err != nil {
			return
		}

		size := len(p)
		if size > int(v.output.opt.chunkSize) {
			size = int(v.output.opt.chunkSize)
		}

		if _, err = io.Copy(v.w, bytes.NewReader(p[:size])); err != nil {
			return
		}
		p = p[size:]
	}

	return v.w.Flush()
}
