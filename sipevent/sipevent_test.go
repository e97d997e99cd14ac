package sipevent_test

import (
	"testing"

	"github.com/go-libre/libre/reactor"
	"github.com/go-libre/libre/sipevent"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	notifies [][]byte
	closedErr error
	closed   bool
}

func (s *recordingSink) OnNotify(body []byte) { s.notifies = append(s.notifies, body) }
func (s *recordingSink) OnClose(err error)     { s.closed = true; s.closedErr = err }

func TestSubscribeSuccessSendsExpiresAndActivates(t *testing.T) {
	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	sink := &recordingSink{}
	var lastHeaders map[string]string
	send := func(method string, headers map[string]string, done func(status int, headers map[string]string, err error)) {
		lastHeaders = headers
		require.Equal(t, "SUBSCRIBE", method)
		done(200, map[string]string{"Expires": "600", "To-Tag": "tag2"}, nil)
	}

	sub := sipevent.New(r, sipevent.Config{Event: "dialog", Expires: 600, RequestURI: "sip:bob@example.com"}, send, sink, nil)
	sub.Start()

	require.Equal(t, "600", lastHeaders["Expires"])
	require.Equal(t, sipevent.StateActive, sub.State())
}

func TestDecodeSubstateParsesExpiresAndReason(t *testing.T) {
	sv, err := sipevent.DecodeSubstate(`terminated;reason=noresource`)
	require.NoError(t, err)
	require.Equal(t, "terminated", sv.State)
	require.Equal(t, "noresource", sv.Reason)

	sv2, err := sipevent.DecodeSubstate(`active;expires=540`)
	require.NoError(t, err)
	require.Equal(t, "active", sv2.State)
	require.EqualValues(t, 540, sv2.Expires)
}

func TestNotifyMismatchedEventIsBadMessage(t *testing.T) {
	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	sink := &recordingSink{}
	send := func(method string, headers map[string]string, done func(status int, headers map[string]string, err error)) {
		done(200, map[string]string{"Expires": "600"}, nil)
	}
	sub := sipevent.New(r, sipevent.Config{Event: "dialog", Expires: 600, RequestURI: "sip:bob@example.com"}, send, sink, nil)
	sub.Start()

	err := sub.OnNotify("presence", "active", []byte("body"))
	require.Error(t, err)
}

func TestNotifyTerminatedClosesSubscription(t *testing.T) {
	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	sink := &recordingSink{}
	send := func(method string, headers map[string]string, done func(status int, headers map[string]string, err error)) {
		done(200, map[string]string{"Expires": "600"}, nil)
	}
	sub := sipevent.New(r, sipevent.Config{Event: "dialog", Expires: 600, RequestURI: "sip:bob@example.com"}, send, sink, nil)
	sub.Start()

	err := sub.OnNotify("dialog", "terminated;reason=noresource", nil)
	require.NoError(t, err)
	require.Equal(t, sipevent.StateTerminated, sub.State())
	require.True(t, sink.closed)
}

func TestIntervalTooSmallRetriesOnceWithMinExpires(t *testing.T) {
	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	sink := &recordingSink{}
	attempt := 0
	var seenExpires []string
	send := func(method string, headers map[string]string, done func(status int, headers map[string]string, err error)) {
		attempt++
		seenExpires = append(seenExpires, headers["Expires"])
		if attempt == 1 {
			done(423, map[string]string{"Min-Expires": "3600"}, nil)
			return
		}
		done(200, map[string]string{"Expires": "3600"}, nil)
	}
	sub := sipevent.New(r, sipevent.Config{Event: "dialog", Expires: 600, RequestURI: "sip:bob@example.com"}, send, sink, nil)
	sub.Start()

	require.Equal(t, []string{"600", "3600"}, seenExpires)
	require.Equal(t, sipevent.StateActive, sub.State())
}

func TestDispatcherRoutesNotifyByFullKeyOnceResolved(t *testing.T) {
	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	disp := sipevent.NewDispatcher()
	sink := &recordingSink{}
	var callID string
	send := func(method string, headers map[string]string, done func(status int, headers map[string]string, err error)) {
		callID = headers["Call-ID"]
		done(200, map[string]string{"Expires": "600", "To-Tag": "remote1"}, nil)
	}
	sub := sipevent.New(r, sipevent.Config{Event: "dialog", Expires: 600, RequestURI: "sip:bob@example.com"}, send, sink, disp)
	sub.Start()
	require.NotEmpty(t, callID)

	err := disp.Dispatch(callID, sub.Dialog().LocalTag, "remote1", "dialog", "active", []byte("body"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("body")}, sink.notifies)
}

func TestDispatcherResolvesForkOnFirstNotifyAndDropsSiblings(t *testing.T) {
	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	disp := sipevent.NewDispatcher()

	sinkA := &recordingSink{}
	var callID string
	sendA := func(method string, headers map[string]string, done func(status int, headers map[string]string, err error)) {
		callID = headers["Call-ID"]
		// no To-Tag yet: this leg's dialog is still forking.
	}
	subA := sipevent.New(r, sipevent.Config{Event: "dialog", Expires: 600, RequestURI: "sip:bob@example.com"}, sendA, sinkA, disp)
	subA.Start()
	require.NotEmpty(t, callID)

	sinkB := &recordingSink{}
	sendB := func(method string, headers map[string]string, done func(status int, headers map[string]string, err error)) {}
	subB := sipevent.New(r, sipevent.Config{Event: "dialog", Expires: 600, RequestURI: "sip:bob@example.com"}, sendB, sinkB, disp)
	// Force subB onto the same dialog identity subA used, to simulate two
	// forked early dialogs sharing (call-id, local-tag) but no remote tag yet.
	subB.Dialog().CallID = callID
	subB.Dialog().LocalTag = subA.Dialog().LocalTag
	disp.Register(subB)

	err := disp.Dispatch(callID, subA.Dialog().LocalTag, "remoteA", "dialog", "active", []byte("from-A"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("from-A")}, sinkA.notifies)
	require.True(t, sinkB.closed)

	err = disp.Dispatch(callID, subA.Dialog().LocalTag, "remoteA", "dialog", "active", []byte("again"))
	require.NoError(t, err)
	require.Equal(t, 2, len(sinkA.notifies))
}
