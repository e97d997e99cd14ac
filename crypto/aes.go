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

// The libre crypto package is the AEAD/HMAC/compare surface the transport
// and SRTP-adjacent collaborators consume. It is built directly on
// crypto/aes, crypto/cipher, crypto/hmac, crypto/sha1 and crypto/subtle:
// no example repo in the retrieval pack reaches for a third-party AEAD or
// HMAC primitive (the pack's DTLS/TLS needs route through crypto/tls or
// pion/dtls, a full record layer kept external to this module's core),
// so there is no ecosystem library to wire here.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/go-libre/libre/errs"
)

// Direction toggles encrypt/decrypt without discarding the key schedule:
// a directional change must be explicit, never inferred from call order.
type Direction int

const (
	DirEncrypt Direction = iota
	DirDecrypt
)

// AEAD is the symmetric cipher surface this module requires: CTR and GCM
// modes share it; for CTR, GetAuthTag/Authenticate return errs.NotSupported.
type AEAD interface {
	// SetIV installs (or replaces) the initialization vector / nonce.
	SetIV(iv []byte) error
	// Encrypt produces ciphertext for plaintext in, using the current IV.
	Encrypt(dst, src []byte) ([]byte, error)
	// Decrypt produces plaintext for ciphertext in, using the current IV.
	Decrypt(dst, src []byte) ([]byte, error)
	// GetAuthTag returns the GCM authentication tag truncated to tagLen bytes,
	// valid after Encrypt. CTR implementations return errs.NotSupported.
	GetAuthTag(tagLen int) ([]byte, error)
	// Authenticate stages the peer-supplied tag for the next Decrypt call,
	// which fails with errs.AuthFailed if it does not match the ciphertext.
	// CTR implementations return errs.NotSupported.
	Authenticate(tag []byte) error
}

// ctrCipher implements AEAD in AES-CTR mode (no authentication).
type ctrCipher struct {
	block cipher.Block
	iv    []byte
	dir   Direction
}

// NewCTR builds an AES-CTR cipher for a 128/192/256-bit key.
func NewCTR(key []byte, dir Direction) (AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "crypto: aes key", err)
	}
	return &ctrCipher{block: block, dir: dir}, nil
}

func (c *ctrCipher) SetIV(iv []byte) error {
	if len(iv) != aes.BlockSize {
		return errs.New(errs.InvalidArgument, "crypto: ctr iv must be 16 bytes")
	}
	c.iv = append([]byte(nil), iv...)
	return nil
}

func (c *ctrCipher) stream() (cipher.Stream, error) {
	if c.iv == nil {
		return nil, errs.New(errs.InvalidArgument, "crypto: iv not set")
	}
	return cipher.NewCTR(c.block, c.iv), nil
}

func (c *ctrCipher) Encrypt(dst, src []byte) ([]byte, error) {
	s, err := c.stream()
	if err != nil {
		return nil, err
	}
	if dst == nil {
		dst = make([]byte, len(src))
	}
	s.XORKeyStream(dst, src)
	return dst, nil
}

func (c *ctrCipher) Decrypt(dst, src []byte) ([]byte, error) {
	// CTR is symmetric: the keystream XOR undoes itself regardless of
	// the Direction the cipher was constructed with.
	return c.Encrypt(dst, src)
}

func (c *ctrCipher) GetAuthTag(int) ([]byte, error) {
	return nil, errs.New(errs.NotSupported, "crypto: ctr has no auth tag")
}

func (c *ctrCipher) Authenticate([]byte) error {
	return errs.New(errs.NotSupported, "crypto: ctr has no auth tag")
}

// gcmCipher implements AEAD in AES-GCM mode (128/256-bit key).
type gcmCipher struct {
	aead    cipher.AEAD
	iv      []byte
	lastTag []byte
	dir     Direction
}

// NewGCM builds an AES-GCM cipher for a 128 or 256-bit key.
func NewGCM(key []byte, dir Direction) (AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "crypto: aes key", err)
	}
	g, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "crypto: gcm init", err)
	}
	return &gcmCipher{aead: g, dir: dir}, nil
}

func (g *gcmCipher) SetIV(iv []byte) error {
	if len(iv) != g.aead.NonceSize() {
		return errs.New(errs.InvalidArgument, "crypto: gcm nonce size mismatch")
	}
	g.iv = append([]byte(nil), iv...)
	return nil
}

func (g *gcmCipher) Encrypt(dst, src []byte) ([]byte, error) {
	if g.iv == nil {
		return nil, errs.New(errs.InvalidArgument, "crypto: iv not set")
	}
	sealed := g.aead.Seal(nil, g.iv, src, nil)
	pt, tag := sealed[:len(sealed)-g.aead.Overhead()], sealed[len(sealed)-g.aead.Overhead():]
	g.lastTag = tag
	if dst == nil {
		dst = make([]byte, len(pt))
	}
	copy(dst, pt)
	return dst[:len(pt)], nil
}

func (g *gcmCipher) Decrypt(dst, src []byte) ([]byte, error) {
	if g.iv == nil {
		return nil, errs.New(errs.InvalidArgument, "crypto: iv not set")
	}
	if len(g.lastTag) == 0 {
		return nil, errs.New(errs.InvalidArgument, "crypto: no auth tag staged, call Authenticate first")
	}
	sealed := append(append([]byte(nil), src...), g.lastTag...)
	pt, err := g.aead.Open(nil, g.iv, sealed, nil)
	if err != nil {
		return nil, errs.Wrap(errs.AuthFailed, "crypto: gcm open", err)
	}
	if dst == nil {
		dst = make([]byte, len(pt))
	}
	copy(dst, pt)
	return dst[:len(pt)], nil
}

func (g *gcmCipher) GetAuthTag(tagLen int) ([]byte, error) {
	if len(g.lastTag) == 0 {
		return nil, errs.New(errs.InvalidArgument, "crypto: no auth tag, encrypt first")
	}
	if tagLen <= 0 || tagLen > len(g.lastTag) {
		tagLen = len(g.lastTag)
	}
	return g.lastTag[:tagLen], nil
}

func (g *gcmCipher) Authenticate(tag []byte) error {
	g.lastTag = append([]byte(nil), tag...)
	return nil
}
