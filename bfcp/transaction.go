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

package bfcp

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go-libre/libre/errs"
	"github.com/go-libre/libre/reactor"
	"github.com/go-libre/libre/transport"
)

// DefaultTimeout is the per-transaction response deadline.
const DefaultTimeout = 10 * time.Second

// ResultFunc is invoked exactly once when a client transaction completes.
type ResultFunc func(resp *Message, err error)

type pendingTxn struct {
	tid    uint16
	result ResultFunc
	timer  reactor.TimerHandle
	logID  string
}

// Socket is a BFCP endpoint over a reliable transport connection: it
// allocates non-zero wrapping transaction ids, matches responses, and
// times out unanswered requests at DefaultTimeout.
type Socket struct {
	mu      sync.Mutex
	conn    *transport.Conn
	nextTID uint16
	pending map[uint16]*pendingTxn
	r       *reactor.Reactor
}

// NewSocket wraps a reliable-transport connection (tcp or tls) as a BFCP
// endpoint.
func NewSocket(r *reactor.Reactor, conn *transport.Conn) *Socket {
	return &Socket{conn: conn, nextTID: 1, pending: make(map[uint16]*pendingTxn), r: r}
}

// allocTID returns the next non-zero transaction id, wrapping past 0xFFFF
// back to 1
func (s *Socket) allocTID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid := s.nextTID
	s.nextTID++
	if s.nextTID == 0 {
		s.nextTID = 1
	}
	return tid
}

// Request sends m (its TransactionID is overwritten with a freshly
// allocated one) and invokes result exactly once: on a matching reply,
// or on errs.Timeout after DefaultTimeout.
func (s *Socket) Request(m *Message, result ResultFunc) error {
	tid := s.allocTID()
	m.TransactionID = tid
	logID := uuid.NewString()

	txn := &pendingTxn{tid: tid, result: result, logID: logID}
	s.mu.Lock()
	s.pending[tid] = txn
	s.mu.Unlock()

	raw := Encode(m)
	errCh := make(chan error, 1)
	s.conn.Send(raw, func(err error) { errCh <- err })
	if err := <-errCh; err != nil {
		s.mu.Lock()
		delete(s.pending, tid)
		s.mu.Unlock()
		return errs.Wrap(errs.ConnectionReset, "bfcp: request send failed", err)
	}

	txn.timer = s.r.After(DefaultTimeout, func() { s.complete(tid, nil, errs.New(errs.Timeout, "bfcp: transaction timed out")) })
	return nil
}

// Dispatch feeds one fully-framed inbound message. If its tid matches a
// pending transaction, that transaction completes; otherwise the message
// is handed to unsolicited (a server-side request or a notify).
func (s *Socket) Dispatch(m *Message, unsolicited func(*Message)) {
	s.mu.Lock()
	_, ok := s.pending[m.TransactionID]
	s.mu.Unlock()

	if ok {
		s.complete(m.TransactionID, m, nil)
		return
	}
	if unsolicited != nil {
		unsolicited(m)
	}
}

func (s *Socket) complete(tid uint16, resp *Message, err error) {
	s.mu.Lock()
	txn, ok := s.pending[tid]
	if ok {
		delete(s.pending, tid)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if txn.timer != nil {
		txn.timer.Cancel()
	}
	txn.result(resp, err)
}

// Reply builds an error-reply or success reply re-using req's
// (conference_id, tid, user_id)
func Reply(req *Message, primitive Primitive, attrs []*Attr) *Message {
	return &Message{
		Primitive:     primitive,
		ConferenceID:  req.ConferenceID,
		TransactionID: req.TransactionID,
		UserID:        req.UserID,
		Attrs:         attrs,
	}
}

// ErrorCode values used in BFCP_ERROR_CODE replies; only the ones the
// core itself generates (unknown primitive, unknown mandatory
// attribute) are named here.
const (
	ErrorCodeUnknownMandatory uint8 = 4
	ErrorCodeInvalidPrimitive uint8 = 3
)

// NewErrorReply builds an ERROR primitive reply carrying a BFCP_ERROR_CODE
// attribute, for a request that failed to decode meaningfully.
func NewErrorReply(req *Message, code uint8) *Message {
	errAttr := &Attr{Type: AttrErrorCode, Value: []byte{code}}
	return Reply(req, 0x0d /* Error primitive */, []*Attr{errAttr})
}
