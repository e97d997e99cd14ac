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
	"encoding"
	"fmt"

	"github.com/go-libre/libre/amf0"
	"github.com/go-libre/libre/errs"
)

// Command name constants, matching the literal AMF0 strings peers send.
const (
	commandConnect          = amf0.String("connect")
	commandCreateStream     = amf0.String("createStream")
	commandCloseStream      = amf0.String("closeStream")
	commandDeleteStream     = amf0.String("deleteStream")
	commandPlay             = amf0.String("play")
	commandPause            = amf0.String("pause")
	commandPublish          = amf0.String("publish")
	commandOnBWDone         = amf0.String("onBWDone")
	commandOnStatus         = amf0.String("onStatus")
	commandResult           = amf0.String("_result")
	commandError            = amf0.String("_error")
	commandReleaseStream    = amf0.String("releaseStream")
	commandFCPublish        = amf0.String("FCPublish")
	commandFCUnpublish      = amf0.String("FCUnpublish")
	commandRtmpSampleAccess = amf0.String("|RtmpSampleAccess")
)

// Packet is any RTMP message payload carried as the body of a Message.
type Packet interface {
	Size() int
	encoding.BinaryUnmarshaler
	encoding.BinaryMarshaler

	BetterCid() chunkID
	Type() MessageType
}

// objectCallPacket is the (name, transaction id, command object[, args
// object]) shape the connect command uses.
type objectCallPacket struct {
	CommandName   amf0.String
	TransactionID amf0.Number
	CommandObject *amf0.Object
	Args          *amf0.Object
}

func (v *objectCallPacket) BetterCid() chunkID { return chunkIDOverConnection }
func (v *objectCallPacket) Type() MessageType  { return MessageTypeAMF0Command }

func (v *objectCallPacket) Size() int {
	size := v.CommandName.Size() + v.TransactionID.Size() + v.CommandObject.Size()
	if v.Args != nil {
		size += v.Args.Size()
	}
	return size
}

func (v *objectCallPacket) UnmarshalBinary(data []byte) (err error) {
	p := data

	if err = v.CommandName.UnmarshalBinary(p); err != nil {
		return
	}
	p = p[v.CommandName.Size():]

	if err = v.TransactionID.UnmarshalBinary(p); err != nil {
		return
	}
	p = p[v.TransactionID.Size():]

	if err = v.CommandObject.UnmarshalBinary(p); err != nil {
		return fmt.Errorf("command object, %v", err)
	}
	p = p[v.CommandObject.Size():]

	if len(p) == 0 {
		return
	}

	v.Args = amf0.NewObject()
	if err = v.Args.UnmarshalBinary(p); err != nil {
		return fmt.Errorf("args object, %v", err)
	}

	return
}

func (v *objectCallPacket) MarshalBinary() (data []byte, err error) {
	var pb []byte
	if pb, err = v.CommandName.MarshalBinary(); err != nil {
		return
	}
	data = append(data, pb...)

	if pb, err = v.TransactionID.MarshalBinary(); err != nil {
		return
	}
	data = append(data, pb...)

	if pb, err = v.CommandObject.MarshalBinary(); err != nil {
		return
	}
	data = append(data, pb...)

	if v.Args != nil {
		if pb, err = v.Args.MarshalBinary(); err != nil {
			return
		}
		data = append(data, pb...)
	}

	return
}

// ConnectAppPacket is the client's connect command, requesting a server
// application instance.
type ConnectAppPacket struct {
	objectCallPacket
}

func NewConnectAppPacket() *ConnectAppPacket {
	v := &ConnectAppPacket{}
	v.CommandName = commandConnect
	v.CommandObject = amf0.NewObject()
	v.TransactionID = amf0.Number(1.0)
	return v
}

func (v *ConnectAppPacket) UnmarshalBinary(data []byte) (err error) {
	if err = v.objectCallPacket.UnmarshalBinary(data); err != nil {
		return
	}
	if v.CommandName != commandConnect {
		return errs.New(errs.BadMessage, fmt.Sprintf("rtmp: invalid connect command name %v", string(v.CommandName)))
	}
	if v.TransactionID != 1.0 {
		return errs.New(errs.BadMessage, fmt.Sprintf("rtmp: invalid connect transaction id %v", float64(v.TransactionID)))
	}
	return
}

// ConnectAppResPacket is the server's reply to ConnectAppPacket.
type ConnectAppResPacket struct {
	objectCallPacket
}

func NewConnectAppResPacket(tid amf0.Number) *ConnectAppResPacket {
	v := &ConnectAppResPacket{}
	v.CommandName = commandResult
	v.CommandObject = amf0.NewObject()
	v.TransactionID = tid
	return v
}

func (v *ConnectAppResPacket) UnmarshalBinary(data []byte) (err error) {
	if err = v.objectCallPacket.UnmarshalBinary(data); err != nil {
		return
	}
	if v.CommandName != commandResult {
		return errs.New(errs.BadMessage, fmt.Sprintf("rtmp: invalid connect-result command name %v", string(v.CommandName)))
	}
	return
}

// CommandPacket is the (name, transaction id, arg...) shape every
// command other than connect uses: createStream takes a single null,
// play/publish take (null, name[, mode/start]), deleteStream takes
// (null, stream_id), _result/_error/onStatus echo whatever the sender
// put there. Args is the ordered value list DecodeAll produced, with
// its null-object placeholder (if any) included.
type CommandPacket struct {
	CommandName   amf0.String
	TransactionID amf0.Number
	Args          []amf0.Amf0
}

func NewCommandPacket(name amf0.String, tid amf0.Number, args ...amf0.Amf0) *CommandPacket {
	return &CommandPacket{CommandName: name, TransactionID: tid, Args: args}
}

func (v *CommandPacket) BetterCid() chunkID { return chunkIDOverStream }
func (v *CommandPacket) Type() MessageType  { return MessageTypeAMF0Command }

func (v *CommandPacket) Size() int {
	size := v.CommandName.Size() + v.TransactionID.Size()
	for _, a := range v.Args {
		size += a.Size()
	}
	return size
}

func (v *CommandPacket) UnmarshalBinary(data []byte) (err error) {
	if err = v.CommandName.UnmarshalBinary(data); err != nil {
		return
	}
	data = data[v.CommandName.Size():]

	if err = v.TransactionID.UnmarshalBinary(data); err != nil {
		return
	}
	data = data[v.TransactionID.Size():]

	values, err := amf0.DecodeAll(data)
	if err != nil {
		return fmt.Errorf("command args, %v", err)
	}
	args := make([]amf0.Amf0, len(values))
	for i := range values {
		args[i] = values[i]
	}
	v.Args = args
	return nil
}

func (v *CommandPacket) MarshalBinary() (data []byte, err error) {
	var pb []byte
	if pb, err = v.CommandName.MarshalBinary(); err != nil {
		return
	}
	data = append(data, pb...)

	if pb, err = v.TransactionID.MarshalBinary(); err != nil {
		return
	}
	data = append(data, pb...)

	for _, a := range v.Args {
		if pb, err = a.MarshalBinary(); err != nil {
			return
		}
		data = append(data, pb...)
	}
	return
}

// NewCreateStreamPacket builds a createStream(null) request.
func NewCreateStreamPacket(tid amf0.Number) *CommandPacket {
	return NewCommandPacket(amf0.String("createStream"), tid, amf0.NewNull())
}

// NewPlayPacket builds a play(null, streamName) request.
func NewPlayPacket(tid amf0.Number, streamName string) *CommandPacket {
	return NewCommandPacket(commandPlay, tid, amf0.NewNull(), amf0.NewString(streamName))
}

// NewPublishPacket builds a publish(null, streamName, mode) request.
func NewPublishPacket(tid amf0.Number, streamName, mode string) *CommandPacket {
	return NewCommandPacket(commandPublish, tid, amf0.NewNull(), amf0.NewString(streamName), amf0.NewString(mode))
}

// NewDeleteStreamPacket builds a deleteStream(null, streamID) request.
func NewDeleteStreamPacket(tid amf0.Number, streamID uint32) *CommandPacket {
	return NewCommandPacket(commandDeleteStream, tid, amf0.NewNull(), amf0.NewNumber(float64(streamID)))
}

// NewOnStatusPacket builds an onStatus(null, infoObject) notification.
func NewOnStatusPacket(level, code, description string) *CommandPacket {
	info := amf0.NewObject()
	info.Set("level", amf0.NewString(level))
	info.Set("code", amf0.NewString(code))
	info.Set("description", amf0.NewString(description))
	return NewCommandPacket(commandOnStatus, amf0.Number(0), amf0.NewNull(), info)
}
