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

package transport

import (
	"net"
	"net/url"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/go-libre/libre/errs"
)

// wsConn adapts a gobwas/ws-framed connection to net.Conn's Read/Write
// surface so Conn can treat FlavorWS/FlavorWSS the same as a raw stream,
// matching sipgo's use of gobwas/ws for its websocket transport.
type wsConn struct {
	net.Conn
	pending []byte
}

// DialWS performs the client-side WS handshake (plain or already-TLS'd
// conn) and wraps it for use with Cache.Dial.
func DialWS(conn net.Conn, rawURL string) (net.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "transport: invalid ws url", err)
	}
	_, _, _, err = ws.Dialer{}.Upgrade(conn, u)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionReset, "transport: ws upgrade failed", err)
	}
	return &wsConn{Conn: conn}, nil
}

// AcceptWS performs the server-side WS handshake over an accepted conn.
func AcceptWS(conn net.Conn) (net.Conn, error) {
	if _, err := ws.Upgrade(conn); err != nil {
		return nil, errs.Wrap(errs.BadMessage, "transport: ws accept failed", err)
	}
	return &wsConn{Conn: conn}, nil
}

func (w *wsConn) Read(p []byte) (int, error) {
	for len(w.pending) == 0 {
		msg, err := wsutil.ReadClientBinary(w.Conn)
		if err != nil {
			msg, err = wsutil.ReadServerBinary(w.Conn)
			if err != nil {
				return 0, err
			}
		}
		w.pending = msg
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsConn) Write(p []byte) (int, error) {
	if err := wsutil.WriteClientBinary(w.Conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
