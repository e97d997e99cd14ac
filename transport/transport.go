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

// The libre transport package is the stream-socket connection cache
// SIP, BFCP and RTMP share: one entry per (peer, flavor), a FIFO send
// queue drained on establishment, an idle timer reset on every successful
// write and Feed, a 32s accept timer stopped by MarkEstablished, and an
// optional keepalive heartbeat that runs on its own period and is not
// reset by I/O.
package transport

import (
	"net"
	"sync"
	"time"

	"github.com/go-libre/libre/errs"
	"github.com/go-libre/libre/logger"
)

// Flavor names a stream transport variant. ws/wss ride on gobwas/ws
// framing; tcp/tls are plain net.Conn / tls.Conn.
type Flavor int

const (
	FlavorTCP Flavor = iota
	FlavorTLS
	FlavorWS
	FlavorWSS
)

func (f Flavor) String() string {
	switch f {
	case FlavorTCP:
		return "tcp"
	case FlavorTLS:
		return "tls"
	case FlavorWS:
		return "ws"
	case FlavorWSS:
		return "wss"
	default:
		return "unknown"
	}
}

// Key identifies a cached connection.
type Key struct {
	Peer   string
	Flavor Flavor
}

const (
	DefaultIdleTimeout     = 900 * time.Second
	DefaultAcceptTimeout   = 32 * time.Second
	DefaultKeepaliveResp   = 10 * time.Second
	DefaultKeepalivePeriod = 120 * time.Second

	// CapSIPBFCP and CapHTTPRTMP are the two reassembly caps this module
	// assigns per consumer: small framed protocols get 64KiB, byte-stream
	// ones needing larger bodies (HTTP, RTMP) get 512KiB.
	CapSIPBFCP  = 65536
	CapHTTPRTMP = 524288
)

// sendEntry is one queued outbound write plus its completion callback.
type sendEntry struct {
	bytes      []byte
	completion func(err error)
}

// Conn is one cached stream connection, reference counted across users
// (SIP, BFCP, HTTP, RTMP) that share it through the Cache.
type Conn struct {
	mu sync.Mutex

	key        Key
	conn       net.Conn
	established bool
	closed     bool

	sendQueue []sendEntry
	refs      int

	reassembly    []byte
	reassemblyCap int

	idleTimer      *time.Timer
	idleTimeout    time.Duration
	acceptTimer    *time.Timer
	keepaliveStop  chan struct{}

	onClose []func(err error)

	cache *Cache
}

// Peer returns the (peer,flavor) key this connection is cached under.
func (c *Conn) Peer() Key { return c.key }

// Established reports whether the handshake (TLS, if secure) finished.
func (c *Conn) Established() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.established
}

// AddRef takes an owning reference; the connection survives in the cache
// as long as any owner holds one.
func (c *Conn) AddRef() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
}

// Release drops an owning reference. With no references left and an
// empty send queue, the connection is removed from its cache.
func (c *Conn) Release() {
	c.mu.Lock()
	c.refs--
	drop := c.refs <= 0 && len(c.sendQueue) == 0 && !c.closed
	c.mu.Unlock()

	if drop {
		c.cache.forget(c.key)
	}
}

// OnClose registers a callback invoked when the connection closes, for
// keepalive subscribers
func (c *Conn) OnClose(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Send hands bytes to the underlying write if established, else enqueues
// them FIFO; queued entries drain in order once the connection
// establishes. completion may be nil.
func (c *Conn) Send(b []byte, completion func(err error)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if completion != nil {
			completion(errs.New(errs.NotConnected, "transport: connection closed"))
		}
		return
	}
	if !c.established {
		c.sendQueue = append(c.sendQueue, sendEntry{bytes: b, completion: completion})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.writeOne(b, completion)
}

func (c *Conn) writeOne(b []byte, completion func(err error)) {
	_, err := c.conn.Write(b)
	if err != nil {
		c.fail(errs.Wrap(errs.ConnectionReset, "transport: write failed", err))
		if completion != nil {
			completion(err)
		}
		return
	}
	c.resetIdle()
	if completion != nil {
		completion(nil)
	}
}

// markEstablished drains the send queue in FIFO order; a write error
// completes its own entry and fails every remaining entry the same way.
func (c *Conn) markEstablished() {
	c.mu.Lock()
	c.established = true
	queue := c.sendQueue
	c.sendQueue = nil
	c.mu.Unlock()

	for _, e := range queue {
		if c.Closed() {
			if e.completion != nil {
				e.completion(errs.New(errs.ConnectionReset, "transport: closed while queued"))
			}
			continue
		}
		c.writeOne(e.bytes, e.completion)
	}
}

// Closed reports whether the connection has been torn down.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Feed appends freshly read bytes to the reassembly buffer and returns
// it; callers (SIP/BFCP/RTMP framers) consume a prefix and call Consume
// to drop it. Exceeding the reassembly cap fails the connection with
// errs.Overflow
func (c *Conn) Feed(b []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reassembly = append(c.reassembly, b...)
	if len(c.reassembly) > c.reassemblyCap {
		err := errs.New(errs.Overflow, "transport: reassembly cap exceeded")
		go c.Close(err)
		return nil, err
	}
	if c.idleTimer != nil {
		c.idleTimer.Reset(c.idleTimeout)
	}
	return c.reassembly, nil
}

// Consume drops the first n bytes of the reassembly buffer.
func (c *Conn) Consume(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= len(c.reassembly) {
		c.reassembly = c.reassembly[:0]
		return
	}
	c.reassembly = append(c.reassembly[:0], c.reassembly[n:]...)
}

func (c *Conn) resetIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idleTimer != nil {
		c.idleTimer.Reset(c.idleTimeout)
	}
}

func (c *Conn) fail(err error) {
	c.Close(err)
}

// Close invokes every pending send-queue completion with err, fires
// onClose subscribers, and unlinks the connection from its cache.
func (c *Conn) Close(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	queue := c.sendQueue
	c.sendQueue = nil
	subs := c.onClose
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	if c.acceptTimer != nil {
		c.acceptTimer.Stop()
	}
	if c.keepaliveStop != nil {
		close(c.keepaliveStop)
	}
	c.mu.Unlock()

	if err == nil {
		err = errs.New(errs.ConnectionReset, "transport: closed")
	}
	for _, e := range queue {
		if e.completion != nil {
			e.completion(err)
		}
	}
	for _, fn := range subs {
		fn(err)
	}
	_ = c.conn.Close()
	c.cache.forget(c.key)
}

// StartKeepalive begins sending a CRLF-CRLF heartbeat every period,
// closing the connection if a response (signaled via Pong) doesn't
// arrive within DefaultKeepaliveResp
func (c *Conn) StartKeepalive(period time.Duration) {
	c.mu.Lock()
	if c.keepaliveStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.keepaliveStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := c.conn.Write([]byte("\r\n\r\n")); err != nil {
					c.Close(errs.Wrap(errs.ConnectionReset, "transport: keepalive write failed", err))
					return
				}
				timer := time.NewTimer(DefaultKeepaliveResp)
				select {
				case <-timer.C:
					c.Close(errs.New(errs.Timeout, "transport: keepalive response timeout"))
					return
				case <-stop:
					timer.Stop()
					return
				}
			}
		}
	}()
}

// Cache is the shared stream-connection cache for HTTP, SIP, BFCP.
type Cache struct {
	mu    sync.Mutex
	conns map[Key]*Conn
	ctx   logger.Context
}

// NewCache creates an empty connection cache.
func NewCache(ctx logger.Context) *Cache {
	return &Cache{conns: make(map[Key]*Conn), ctx: ctx}
}

// Dial finds or creates a connection to peer over flavor, dialing lazily
// if absent, and returns an owning reference (caller must Release it).
func (ch *Cache) Dial(key Key, dial func() (net.Conn, error), reassemblyCap int) (*Conn, error) {
	ch.mu.Lock()
	if c, ok := ch.conns[key]; ok {
		c.AddRef()
		ch.mu.Unlock()
		return c, nil
	}
	c := &Conn{
		key:           key,
		reassemblyCap: reassemblyCap,
		idleTimeout:   DefaultIdleTimeout,
		refs:          1,
		cache:         ch,
	}
	ch.conns[key] = c
	ch.mu.Unlock()

	conn, err := dial()
	if err != nil {
		ch.forget(key)
		return nil, errs.Wrap(errs.ConnectionReset, "transport: dial failed", err)
	}
	c.conn = conn
	c.idleTimer = time.AfterFunc(c.idleTimeout, func() {
		c.Close(errs.New(errs.Timeout, "transport: idle timeout"))
	})
	c.markEstablished()
	return c, nil
}

// Accept wraps an inbound net.Conn as a cached connection, starting the
// 32s accept timer; callers call MarkEstablished once any TLS handshake
// completes.
func (ch *Cache) Accept(key Key, conn net.Conn, reassemblyCap int) *Conn {
	c := &Conn{
		key:           key,
		conn:          conn,
		reassemblyCap: reassemblyCap,
		idleTimeout:   DefaultIdleTimeout,
		refs:          1,
		cache:         ch,
	}
	c.acceptTimer = time.AfterFunc(DefaultAcceptTimeout, func() {
		c.Close(errs.New(errs.Timeout, "transport: accept timeout"))
	})

	ch.mu.Lock()
	ch.conns[key] = c
	ch.mu.Unlock()
	return c
}

// MarkEstablished stops the accept timer, starts the idle timer and
// drains the send queue. Call once the handshake (TLS, if secure) is
// done.
func (c *Conn) MarkEstablished() {
	c.mu.Lock()
	if c.acceptTimer != nil {
		c.acceptTimer.Stop()
		c.acceptTimer = nil
	}
	c.idleTimer = time.AfterFunc(c.idleTimeout, func() {
		c.Close(errs.New(errs.Timeout, "transport: idle timeout"))
	})
	c.mu.Unlock()
	c.markEstablished()
}

// Lookup returns the cached connection for key, if any, without creating
// one. Caller must AddRef before using it beyond the lookup.
func (ch *Cache) Lookup(key Key) (*Conn, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	c, ok := ch.conns[key]
	return c, ok
}

func (ch *Cache) forget(key Key) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if c, ok := ch.conns[key]; ok {
		c.mu.Lock()
		refs, qlen := c.refs, len(c.sendQueue)
		c.mu.Unlock()
		if refs > 0 || qlen > 0 {
			return
		}
		delete(ch.conns, key)
	}
}

// Len reports how many connections are currently cached, for tests and
// diagnostics.
func (ch *Cache) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.conns)
}
