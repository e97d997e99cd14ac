package ice

import (
	"testing"

	"github.com/go-libre/libre/reactor"
	"github.com/go-libre/libre/stun"
	"github.com/stretchr/testify/require"
)

func newInternalTestSession(t *testing.T, role Role, conf Conf) *Session {
	t.Helper()
	r := reactor.New(nil)
	s, err := NewSession(r, role, ModeFull, conf)
	require.NoError(t, err)
	return s
}

// TestNextNominationLockedSendsOneCheckPerComponent reproduces the
// controlling-side "Concluding" step under the default (regular)
// nomination mode: once every pair has settled and a component has a
// valid pair, nextNominationLocked hands that pair back exactly once,
// marking it so a later call doesn't repeat the check.
func TestNextNominationLockedSendsOneCheckPerComponent(t *testing.T) {
	session := newInternalTestSession(t, RoleControlling, Conf{Nomination: NominationRegular})
	ms := session.AddMediaStream()

	local := NewCandidate(TypeHost, "h1", 1, "127.0.0.1:5000", 65535, nil)
	remote := NewCandidate(TypeHost, "r1", 1, "10.0.0.9:4000", 65535, nil)
	pair := NewPair(local, remote, true)
	pair.State = PairSucceeded
	pair.Valid = true

	ms.pairs = []*Pair{pair}
	ms.state = ChecklistCompleted

	got, nominate := ms.nextNominationLocked()
	require.Same(t, pair, got)
	require.True(t, nominate)
	require.True(t, pair.UseCandidate)

	got, nominate = ms.nextNominationLocked()
	require.Nil(t, got)
	require.False(t, nominate)
}

// TestNextNominationLockedSkipsControlledAgent confirms the dedicated
// nomination check is never emitted on the controlled side, where
// USE-CANDIDATE arrives on the peer's check instead.
func TestNextNominationLockedSkipsControlledAgent(t *testing.T) {
	session := newInternalTestSession(t, RoleControlled, Conf{Nomination: NominationRegular})
	ms := session.AddMediaStream()

	local := NewCandidate(TypeHost, "h1", 1, "127.0.0.1:5000", 65535, nil)
	remote := NewCandidate(TypeHost, "r1", 1, "10.0.0.9:4000", 65535, nil)
	pair := NewPair(local, remote, false)
	pair.State = PairSucceeded
	pair.Valid = true

	ms.pairs = []*Pair{pair}
	ms.state = ChecklistCompleted

	got, nominate := ms.nextNominationLocked()
	require.Nil(t, got)
	require.False(t, nominate)
}

// TestNextNominationLockedSkipsAggressiveMode confirms aggressive
// nomination, which already sets USE-CANDIDATE on every initial check,
// never triggers a second dedicated check.
func TestNextNominationLockedSkipsAggressiveMode(t *testing.T) {
	session := newInternalTestSession(t, RoleControlling, Conf{Nomination: NominationAggressive})
	ms := session.AddMediaStream()

	local := NewCandidate(TypeHost, "h1", 1, "127.0.0.1:5000", 65535, nil)
	remote := NewCandidate(TypeHost, "r1", 1, "10.0.0.9:4000", 65535, nil)
	pair := NewPair(local, remote, true)
	pair.State = PairSucceeded
	pair.Valid = true

	ms.pairs = []*Pair{pair}
	ms.state = ChecklistCompleted

	got, nominate := ms.nextNominationLocked()
	require.Nil(t, got)
	require.False(t, nominate)
}

// TestHandleCheckResultNominateSetsSelectedPair exercises the nomination
// check's response path directly: a successful response with nominate
// set marks the pair Nominated and fires onSelected.
func TestHandleCheckResultNominateSetsSelectedPair(t *testing.T) {
	session := newInternalTestSession(t, RoleControlling, Conf{Nomination: NominationRegular})
	ms := session.AddMediaStream()

	local := NewCandidate(TypeHost, "h1", 1, "127.0.0.1:5000", 65535, nil)
	remote := NewCandidate(TypeHost, "r1", 1, "10.0.0.9:4000", 65535, nil)
	pair := NewPair(local, remote, true)
	pair.State = PairSucceeded
	pair.Valid = true
	ms.pairs = []*Pair{pair}
	ms.locals = []*Candidate{local}
	ms.state = ChecklistCompleted

	var selectedComponent int
	var selectedPair *Pair
	done := make(chan struct{})
	ms.onSelected = func(componentID int, p *Pair) {
		selectedComponent = componentID
		selectedPair = p
		close(done)
	}

	tid, err := stun.NewTransactionID()
	require.NoError(t, err)
	xorVal, err := stun.EncodeXorMappedAddress(local.Address, tid, true)
	require.NoError(t, err)
	resp := &stun.Message{Method: stun.MethodBinding, Class: stun.ClassSuccess, TID: tid}
	resp.Add(stun.AttrXorMappedAddress, xorVal)

	ms.handleCheckResult(pair, true, resp, nil)

	<-done
	require.True(t, pair.Nominated)
	require.Equal(t, 1, selectedComponent)
	require.Same(t, pair, selectedPair)
}

// TestFindOrSynthesizeRemoteLockedCarriesReceivedPriority covers the
// inbound PRIORITY attribute propagating into a synthesized
// peer-reflexive remote candidate, rather than defaulting to 0.
func TestFindOrSynthesizeRemoteLockedCarriesReceivedPriority(t *testing.T) {
	session := newInternalTestSession(t, RoleControlled, Conf{})
	ms := session.AddMediaStream()

	remote := ms.findOrSynthesizeRemoteLocked("10.0.0.9:4000", 1, 0x6e0001ff)
	require.Equal(t, TypePrflx, remote.Type)
	require.EqualValues(t, 0x6e0001ff, remote.Priority)

	again := ms.findOrSynthesizeRemoteLocked("10.0.0.9:4000", 1, 0xdeadbeef)
	require.Same(t, remote, again)
	require.EqualValues(t, 0x6e0001ff, again.Priority)
}

// TestHandleInboundReadsPriorityAttribute drives the inbound STUN path
// end-to-end, verifying the synthesized remote candidate's Priority
// comes from the request's PRIORITY attribute rather than 0.
func TestHandleInboundReadsPriorityAttribute(t *testing.T) {
	session := newInternalTestSession(t, RoleControlled, Conf{})
	ms := session.AddMediaStream()

	local := NewCandidate(TypeHost, "h1", 1, "127.0.0.1:5000", 65535, nil)
	ms.SetLocalCandidates([]*Candidate{local})
	ms.SetRemoteDescription("rufrag", "rpwd0000000000000000000", nil)
	ms.Start(func(componentID int, dst string, raw []byte) error { return nil }, nil)
	defer ms.Stop()

	tid, err := stun.NewTransactionID()
	require.NoError(t, err)
	m := &stun.Message{Method: stun.MethodBinding, Class: stun.ClassRequest, TID: tid}
	m.Add(stun.AttrUsername, []byte(session.LocalUfrag+":rufrag"))
	var prioBuf [4]byte
	putU32(prioBuf[:], 0x6e0001fe)
	m.Add(stun.AttrPriority, prioBuf[:])
	raw := stun.Encode(m, []byte(session.LocalPwd), true)

	_, err = ms.HandleInbound(raw, "10.0.0.9:4000", 1)
	require.NoError(t, err)

	remote := ms.findOrSynthesizeRemoteLocked("10.0.0.9:4000", 1, 0)
	require.EqualValues(t, 0x6e0001fe, remote.Priority)
}
