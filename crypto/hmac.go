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

package crypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"

	"github.com/go-libre/libre/errs"
)

// HMAC is a stateful HMAC-SHA1: create(key),
// digest(data, out, out_len), resetting on every Digest call.
type HMAC struct {
	key []byte
}

// NewHMAC creates an HMAC-SHA1 instance bound to key.
func NewHMAC(key []byte) *HMAC {
	return &HMAC{key: append([]byte(nil), key...)}
}

// Digest computes HMAC-SHA1(key, data), resetting internal state first so
// repeated calls on the same instance never leak state across messages.
func (h *HMAC) Digest(data []byte) []byte {
	mac := hmac.New(sha1.New, h.key)
	mac.Write(data)
	return mac.Sum(nil)
}

// MD5Sum returns the MD5 digest of data, used by httpauth HA1/HA2 hashing.
func MD5Sum(data []byte) [md5.Size]byte {
	return md5.Sum(data)
}

// ConstantTimeCompare is a branchless XOR-OR accumulator: it
// never short-circuits on the first mismatched byte, so timing does not
// leak the position of a difference. Unequal lengths are also compared
// in constant time relative to the longer input.
func ConstantTimeCompare(a, b []byte) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var diff byte
	for i := 0; i < n; i++ {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		diff |= av ^ bv
	}
	if len(a) != len(b) {
		diff |= 1
	}
	return diff == 0
}

// VerifyHMAC reports whether mac is the HMAC-SHA1 of data under key,
// comparing in constant time and returning errs.AuthFailed on mismatch.
func VerifyHMAC(key, data, mac []byte) error {
	expect := NewHMAC(key).Digest(data)
	if !ConstantTimeCompare(expect, mac) {
		return errs.New(errs.AuthFailed, "crypto: hmac mismatch")
	}
	return nil
}
