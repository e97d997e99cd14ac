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

// The libre httpauth package implements RFC 2617 HTTP Digest
// authentication, shared by the SIP-event and BFCP/transport layers for
// 401/407 challenge handling. Parsed header fields are held in
// github.com/icholy/digest's Parts map, matching flowpbx-flowpbx's use
// of that library for the same concern; the MD5 digest math and
// constant-time comparison are ours
package httpauth

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/icholy/digest"

	"github.com/go-libre/libre/crypto"
	"github.com/go-libre/libre/errs"
)

// Challenge is the decoded WWW-Authenticate/Proxy-Authenticate header.
type Challenge struct {
	Realm     string
	Nonce     string
	Opaque    string
	Stale     bool
	Algorithm string
	Qop       string
}

// DecodeChallenge parses a `Digest realm="...", nonce="...", ...` header
// value. Realm and Nonce are mandatory; their absence is
// a bad-message.
func DecodeChallenge(header string) (*Challenge, error) {
	params, err := splitDigestParams(header)
	if err != nil {
		return nil, err
	}

	c := &Challenge{
		Realm:     params["realm"],
		Nonce:     params["nonce"],
		Opaque:    params["opaque"],
		Algorithm: params["algorithm"],
		Qop:       params["qop"],
	}
	c.Stale = strings.EqualFold(params["stale"], "true")

	if c.Realm == "" || c.Nonce == "" {
		return nil, errs.New(errs.BadMessage, "httpauth: challenge missing realm/nonce")
	}
	return c, nil
}

// Response is the decoded Authorization/Proxy-Authorization header.
type Response struct {
	Username string
	Realm    string
	Nonce    string
	Uri      string
	Response string
	Nc       string
	Cnonce   string
	Qop      string
}

// DecodeResponse parses an Authorization header value. Resolves an
// ambiguity in the original source by following RFC 2617's stricter
// rule: if Qop is present, Nc and Cnonce MUST also be present.
func DecodeResponse(header string) (*Response, error) {
	params, err := splitDigestParams(header)
	if err != nil {
		return nil, err
	}

	r := &Response{
		Username: params["username"],
		Realm:    params["realm"],
		Nonce:    params["nonce"],
		Uri:      params["uri"],
		Response: params["response"],
		Nc:       params["nc"],
		Cnonce:   params["cnonce"],
		Qop:      params["qop"],
	}

	if r.Realm == "" || r.Nonce == "" || r.Response == "" || r.Username == "" || r.Uri == "" {
		return nil, errs.New(errs.BadMessage, "httpauth: response missing mandatory field")
	}
	if r.Qop != "" && (r.Nc == "" || r.Cnonce == "") {
		return nil, errs.New(errs.BadMessage, "httpauth: qop present without nc/cnonce")
	}
	return r, nil
}

// splitDigestParams tokenizes a "Digest <params>" header into
// icholy/digest's Parts map (itself a plain map[string]string keyed by
// lowercase field name), so the mandatory-field checks below share that
// library's representation instead of a locally invented one.
func splitDigestParams(header string) (digest.Parts, error) {
	header = strings.TrimSpace(header)
	const prefix = "Digest"
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(prefix)) {
		return nil, errs.New(errs.BadMessage, "httpauth: missing Digest prefix")
	}
	rest := strings.TrimSpace(header[len(prefix):])

	parts := digest.Parts{}
	for _, seg := range splitParams(rest) {
		kv := strings.SplitN(seg, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		parts[key] = val
	}
	return parts, nil
}

// splitParams splits a comma-separated digest parameter list while
// respecting double-quoted values that may themselves contain commas.
func splitParams(s string) []string {
	var out []string
	inQuotes := false
	start := 0
	for i, r := range s {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// HA1 computes MD5("user:realm:pwd"), optionally re-hashed with
// nonce/cnonce for MD5-sess
func HA1(username, realm, password, algorithm, nonce, cnonce string) [16]byte {
	ha1 := crypto.MD5Sum([]byte(fmt.Sprintf("%s:%s:%s", username, realm, password)))
	if strings.EqualFold(algorithm, "MD5-sess") {
		ha1 = crypto.MD5Sum([]byte(fmt.Sprintf("%x:%s:%s", ha1, nonce, cnonce)))
	}
	return ha1
}

// HA2 computes MD5("method:uri"), or with auth-int MD5("method:uri:MD5(body)").
func HA2(method, uri, qop string, body []byte) [16]byte {
	if strings.EqualFold(qop, "auth-int") {
		bodyHash := crypto.MD5Sum(body)
		return crypto.MD5Sum([]byte(fmt.Sprintf("%s:%s:%x", method, uri, bodyHash)))
	}
	return crypto.MD5Sum([]byte(fmt.Sprintf("%s:%s", method, uri)))
}

// authenticate computes MD5(HA1:nonce:[nc:cnonce:qop:]HA2)
func authenticate(ha1, ha2 [16]byte, nonce, nc, cnonce, qop string) [16]byte {
	if qop != "" {
		return crypto.MD5Sum([]byte(fmt.Sprintf("%x:%s:%s:%s:%s:%x", ha1, nonce, nc, cnonce, qop, ha2)))
	}
	return crypto.MD5Sum([]byte(fmt.Sprintf("%x:%s:%x", ha1, nonce, ha2)))
}

// VerifyResponse recomputes the digest from resp and ha1, comparing it in
// constant time to resp.Response. Grounded on httpauth_digest_response_auth.
func VerifyResponse(resp *Response, method string, ha1 [16]byte) error {
	if len(resp.Response) != 32 {
		return errs.New(errs.AuthFailed, "httpauth: response digest must be 32 hex chars")
	}
	ha2 := HA2(method, resp.Uri, resp.Qop, nil)
	want := authenticate(ha1, ha2, resp.Nonce, resp.Nc, resp.Cnonce, resp.Qop)

	got, err := hex.DecodeString(resp.Response)
	if err != nil {
		return errs.Wrap(errs.BadMessage, "httpauth: response not hex", err)
	}
	if !crypto.ConstantTimeCompare(want[:], got) {
		return errs.New(errs.AuthFailed, "httpauth: digest mismatch")
	}
	return nil
}

// MakeResponse builds an Authorization header value for (method, uri)
// against chall, authenticating as user/pwd. cnonce/nc are supplied by the
// caller so SIP-event's per-transaction nonce-count bookkeeping (the
// dialog, not this package, owns the counter) stays outside this package.
func MakeResponse(chall *Challenge, method, uri, username, password, cnonce, nc string) string {
	ha1 := HA1(username, chall.Realm, password, chall.Algorithm, chall.Nonce, cnonce)
	ha2 := HA2(method, uri, chall.Qop, nil)
	digestVal := authenticate(ha1, ha2, chall.Nonce, nc, cnonce, chall.Qop)

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%x"`,
		username, chall.Realm, chall.Nonce, uri, digestVal)
	if chall.Opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, chall.Opaque)
	}
	if chall.Qop != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, chall.Qop, nc, cnonce)
	}
	return b.String()
}
