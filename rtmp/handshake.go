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
	"bytes"
	"io"
	"math/rand"
)

// HandshakeState names where a side sits in the uninitialized ->
// version-sent -> ack-sent -> done progression of the plain (unencrypted)
// RTMP handshake.
type HandshakeState int

const (
	HandshakeUninitialized HandshakeState = iota
	HandshakeVersionSent
	HandshakeAckSent
	HandshakeDone
)

// Handshake drives the C0/C1/S0/S1/S2/C2 exchange. Only the plain
// handshake is implemented; the complex (digest-signed) variant some
// encoders use for DRM handshaking is out of scope.
type Handshake struct {
	r     *rand.Rand
	state HandshakeState
}

func NewHandshake(r *rand.Rand) *Handshake {
	return &Handshake{r: r, state: HandshakeUninitialized}
}

// State reports the handshake's current progress.
func (v *Handshake) State() HandshakeState { return v.state }

func (v *Handshake) WriteC0S0(w io.Writer) (err error) {
	r := bytes.NewReader([]byte{0x03})
	if _, err = io.Copy(w, r); err != nil {
		return
	}
	v.state = HandshakeVersionSent
	return
}

func (v *Handshake) ReadC0S0(r io.Reader) (c0 []byte, err error) {
	b := &bytes.Buffer{}
	if _, err = io.CopyN(b, r, 1); err != nil {
		return
	}
	c0 = b.Bytes()
	return
}

func (v *Handshake) WriteC1S1(w io.Writer) (err error) {
	p := make([]byte, 1536)

	if _, err = v.r.Read(p[8:]); err != nil {
		return
	}

	r := bytes.NewReader(p)
	if _, err = io.Copy(w, r); err != nil {
		return
	}

	return
}

func (v *Handshake) ReadC1S1(r io.Reader) (c1 []byte, err error) {
	b := &bytes.Buffer{}
	if _, err = io.CopyN(b, r, 1536); err != nil {
		return
	}
	c1 = b.Bytes()
	v.state = HandshakeAckSent
	return
}

func (v *Handshake) WriteC2S2(w io.Writer, s1c1 []byte) (err error) {
	r := bytes.NewReader(s1c1[:])
	if _, err = io.Copy(w, r); err != nil {
		return
	}
	return
}

func (v *Handshake) ReadC2S2(r io.Reader) (c2 []byte, err error) {
	b := &bytes.Buffer{}
	if _, err = io.CopyN(b, r, 1536); err != nil {
		return
	}
	c2 = b.Bytes()
	v.state = HandshakeDone
	return
}
