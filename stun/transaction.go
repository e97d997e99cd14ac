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

package stun

import (
	"sync"
	"time"

	"github.com/go-libre/libre/errs"
	"github.com/go-libre/libre/reactor"
)

const (
	DefaultRTO      = 500 * time.Millisecond
	ICEDefaultRTO   = 100 * time.Millisecond
	DefaultMaxCount = 7
)

// ResultFunc is invoked exactly once when a transaction completes,
// successfully or with an error (timeout, bad-message, ...).
type ResultFunc func(resp *Message, err error)

// Sender writes an already-encoded STUN message to the wire.
type Sender func(raw []byte) error

// Transaction is one client-side STUN exchange: retransmitted on an
// unreliable transport with geometric RTO back-off, single-shot with a
// terminal timer on a reliable one.
type Transaction struct {
	mu       sync.Mutex
	tid      TransactionID
	send     Sender
	raw      []byte
	result   ResultFunc
	reliable bool
	rto      time.Duration
	maxCount int
	count    int
	done     bool
	timer    reactor.TimerHandle
	r        *reactor.Reactor
}

// Table tracks in-flight client transactions by transaction id; deleting
// the current entry while iterating a response handler is safe.
type Table struct {
	mu   sync.Mutex
	txns map[TransactionID]*Transaction
}

// NewTable creates an empty transaction table.
func NewTable() *Table {
	return &Table{txns: make(map[TransactionID]*Transaction)}
}

// Start begins a new client transaction: encodes and sends raw, arms the
// retransmit (or terminal) timer, and registers it in the table keyed by
// tid. rto is the initial retransmission timeout (100ms default under
// ICE, 500ms default otherwise); reliable transports
// send once and use rto*maxCount as the single terminal deadline.
func (t *Table) Start(r *reactor.Reactor, tid TransactionID, raw []byte, send Sender, reliable bool, rto time.Duration, maxCount int, result ResultFunc) (*Transaction, error) {
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	if rto <= 0 {
		rto = DefaultRTO
	}
	txn := &Transaction{
		tid: tid, send: send, raw: raw, result: result,
		reliable: reliable, rto: rto, maxCount: maxCount, r: r,
	}

	t.mu.Lock()
	t.txns[tid] = txn
	t.mu.Unlock()

	if err := send(raw); err != nil {
		t.Remove(tid)
		return nil, errs.Wrap(errs.ConnectionReset, "stun: initial send failed", err)
	}
	txn.count = 1

	if reliable {
		txn.timer = r.After(rto*time.Duration(maxCount), func() { t.fireTimeout(tid) })
	} else {
		txn.armRetransmit(t)
	}
	return txn, nil
}

// TID returns the transaction id this handle was started with.
func (txn *Transaction) TID() TransactionID { return txn.tid }

func (txn *Transaction) armRetransmit(t *Table) {
	txn.timer = txn.r.After(txn.rto, func() { t.retransmit(txn.tid) })
}

func (t *Table) retransmit(tid TransactionID) {
	t.mu.Lock()
	txn, ok := t.txns[tid]
	t.mu.Unlock()
	if !ok || txn.done {
		return
	}

	txn.mu.Lock()
	if txn.count >= txn.maxCount {
		txn.mu.Unlock()
		t.fireTimeout(tid)
		return
	}
	txn.rto *= 2
	txn.count++
	rto := txn.rto
	txn.mu.Unlock()

	if err := txn.send(txn.raw); err != nil {
		t.Complete(tid, nil, errs.Wrap(errs.ConnectionReset, "stun: retransmit failed", err))
		return
	}
	txn.timer = txn.r.After(rto, func() { t.retransmit(tid) })
}

func (t *Table) fireTimeout(tid TransactionID) {
	t.Complete(tid, nil, errs.New(errs.Timeout, "stun: transaction timed out"))
}

// Complete matches a received response (or an injected error) to its
// transaction, invoking its result callback exactly once. Calling it
// again for an already-completed or unknown tid is a no-op.
func (t *Table) Complete(tid TransactionID, resp *Message, err error) {
	t.mu.Lock()
	txn, ok := t.txns[tid]
	if ok {
		delete(t.txns, tid)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	txn.mu.Lock()
	if txn.done {
		txn.mu.Unlock()
		return
	}
	txn.done = true
	if txn.timer != nil {
		txn.timer.Cancel()
	}
	txn.mu.Unlock()

	txn.result(resp, err)
}

// Remove cancels and drops a transaction without invoking its callback
// (used for cleanup on send failure before the caller ever sees it as
// started).
func (t *Table) Remove(tid TransactionID) {
	t.mu.Lock()
	txn, ok := t.txns[tid]
	if ok {
		delete(t.txns, tid)
	}
	t.mu.Unlock()
	if ok && txn.timer != nil {
		txn.timer.Cancel()
	}
}

// Cancel destroys a transaction handle; a response arriving afterward is
// discarded since the table no longer knows the tid.
func (t *Table) Cancel(tid TransactionID) {
	t.Remove(tid)
}

// Len reports the number of in-flight transactions, for tests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.txns)
}
