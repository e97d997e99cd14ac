package stun_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-libre/libre/reactor"
	"github.com/go-libre/libre/stun"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tid, err := stun.NewTransactionID()
	require.NoError(t, err)

	m := &stun.Message{Method: stun.MethodBinding, Class: stun.ClassRequest, TID: tid}
	m.Add(stun.AttrUsername, []byte("bbbb:aaaa"))
	m.Add(stun.AttrPriority, []byte{0, 0, 0, 1})

	raw := stun.Encode(m, nil, false)
	dec, unknown, err := stun.Decode(raw)
	require.NoError(t, err)
	require.Empty(t, unknown)
	require.Equal(t, tid, dec.TID)

	u, ok := dec.Get(stun.AttrUsername)
	require.True(t, ok)
	require.Equal(t, "bbbb:aaaa", string(u))
}

func TestIntegrityAndFingerprintVerify(t *testing.T) {
	tid, _ := stun.NewTransactionID()
	m := &stun.Message{Method: stun.MethodBinding, Class: stun.ClassRequest, TID: tid}
	m.Add(stun.AttrUseCandidate, nil)

	key := []byte("aaaaaaaaaaaaaaaaaaaa")
	raw := stun.Encode(m, key, true)

	require.NoError(t, stun.VerifyFingerprint(raw))
	stripped := stun.StripFingerprint(raw)
	require.NoError(t, stun.VerifyIntegrity(stripped, key))

	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0xff
	require.Error(t, stun.VerifyFingerprint(tampered))
}

func TestIntegrityFailsOnWrongKey(t *testing.T) {
	tid, _ := stun.NewTransactionID()
	m := &stun.Message{Method: stun.MethodBinding, Class: stun.ClassRequest, TID: tid}
	raw := stun.Encode(m, []byte("rightkeyrightkeyrightkey"), false)
	err := stun.VerifyIntegrity(raw, []byte("wrongkeywrongkeywrongkey"))
	require.Error(t, err)
}

func TestDecodeShortHeaderNeedsMoreData(t *testing.T) {
	_, _, err := stun.Decode([]byte{0x00, 0x01})
	require.Error(t, err)
}

func TestTransactionRetransmitsThenTimesOut(t *testing.T) {
	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	table := stun.NewTable()
	tid, _ := stun.NewTransactionID()

	sendCount := 0
	done := make(chan error, 1)
	_, err := table.Start(r, tid, []byte("request"), func([]byte) error {
		sendCount++
		return nil
	}, false, 5*time.Millisecond, 3, func(resp *stun.Message, err error) {
		done <- err
	})
	require.NoError(t, err)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("transaction never completed")
	}
	require.GreaterOrEqual(t, sendCount, 3)
}

// TestTransactionDefaultsRTOWhenZero covers an rto<=0 caller (as the
// previous ICE call site used to pass) falling back to DefaultRTO
// instead of retransmitting in a tight loop via reactor.After(0, ...).
func TestTransactionDefaultsRTOWhenZero(t *testing.T) {
	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	table := stun.NewTable()
	tid, _ := stun.NewTransactionID()

	var sendCount int32
	_, err := table.Start(r, tid, []byte("request"), func([]byte) error {
		atomic.AddInt32(&sendCount, 1)
		return nil
	}, false, 0, 2, func(resp *stun.Message, err error) {})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&sendCount))
}

func TestTransactionCompletesOnResponse(t *testing.T) {
	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	table := stun.NewTable()
	tid, _ := stun.NewTransactionID()

	done := make(chan *stun.Message, 1)
	_, err := table.Start(r, tid, []byte("request"), func([]byte) error { return nil },
		false, 50*time.Millisecond, 7, func(resp *stun.Message, err error) {
			done <- resp
		})
	require.NoError(t, err)

	resp := &stun.Message{TID: tid}
	table.Complete(tid, resp, nil)

	select {
	case got := <-done:
		require.Equal(t, tid, got.TID)
	case <-time.After(time.Second):
		t.Fatal("completion not delivered")
	}
}
