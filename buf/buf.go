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

// The libre buf package is the owned byte buffer every codec in this
// module reads from and writes to: pos <= end <= size, reads advance pos,
// writes past end advance end. There is no explicit resize call: a write
// that does not fit grows the backing array itself.
package buf

import (
	"encoding/binary"

	"github.com/go-libre/libre/errs"
)

// Buffer is an owned byte region with independent read/write cursors.
type Buffer struct {
	data []byte
	pos  int
	end  int
}

// New allocates a Buffer with the given initial capacity.
func New(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// Wrap builds a Buffer over an existing slice, positioned for reading:
// pos=0, end=len(p).
func Wrap(p []byte) *Buffer {
	return &Buffer{data: p, pos: 0, end: len(p)}
}

// Pos returns the read cursor; writes always append at End.
func (b *Buffer) Pos() int { return b.pos }

// End returns the high-water mark of written data.
func (b *Buffer) End() int { return b.end }

// SetPos repositions the cursor, clamped to [0, end].
func (b *Buffer) SetPos(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > b.end {
		pos = b.end
	}
	b.pos = pos
}

// Left returns the number of unread bytes between pos and end.
func (b *Buffer) Left() int { return b.end - b.pos }

// Bytes returns the written region [0, end) without advancing pos.
func (b *Buffer) Bytes() []byte { return b.data[:b.end] }

// Unread returns the unread region [pos, end) without advancing pos.
func (b *Buffer) Unread() []byte { return b.data[b.pos:b.end] }

func (b *Buffer) grow(need int) {
	if b.end+need <= len(b.data) {
		return
	}
	size := len(b.data) * 2
	if size < b.end+need {
		size = b.end + need
	}
	if size < 64 {
		size = 64
	}
	nd := make([]byte, size)
	copy(nd, b.data[:b.end])
	b.data = nd
}

// ReadBytes reads n bytes, advancing pos. Returns errs.NeedsMoreData if
// fewer than n bytes remain.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if b.Left() < n {
		return nil, errs.New(errs.NeedsMoreData, "buf: short read")
	}
	p := b.data[b.pos : b.pos+n]
	b.pos += n
	return p, nil
}

// ReadU8 reads one byte.
func (b *Buffer) ReadU8() (byte, error) {
	p, err := b.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// ReadU16 reads a big-endian uint16.
func (b *Buffer) ReadU16() (uint16, error) {
	p, err := b.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

// ReadU24 reads a big-endian 24-bit unsigned integer (RTMP timestamp/length fields).
func (b *Buffer) ReadU24() (uint32, error) {
	p, err := b.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2]), nil
}

// ReadU32 reads a big-endian uint32.
func (b *Buffer) ReadU32() (uint32, error) {
	p, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

// WriteBytes appends p, growing the buffer and advancing end (not pos).
func (b *Buffer) WriteBytes(p []byte) {
	b.grow(len(p))
	copy(b.data[b.end:], p)
	b.end += len(p)
}

// WriteU8 appends one byte.
func (b *Buffer) WriteU8(v byte) {
	b.WriteBytes([]byte{v})
}

// WriteU16 appends a big-endian uint16.
func (b *Buffer) WriteU16(v uint16) {
	var p [2]byte
	binary.BigEndian.PutUint16(p[:], v)
	b.WriteBytes(p[:])
}

// WriteU24 appends a big-endian 24-bit unsigned integer.
func (b *Buffer) WriteU24(v uint32) {
	b.WriteBytes([]byte{byte(v >> 16), byte(v >> 8), byte(v)})
}

// WriteU32 appends a big-endian uint32.
func (b *Buffer) WriteU32(v uint32) {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], v)
	b.WriteBytes(p[:])
}

// Reset rewinds pos and end to 0 without releasing the backing array, so
// the Buffer can be reused across reassembly slots.
func (b *Buffer) Reset() {
	b.pos = 0
	b.end = 0
}
