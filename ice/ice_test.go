package ice_test

import (
	"testing"

	"github.com/go-libre/libre/ice"
	"github.com/go-libre/libre/reactor"
	"github.com/go-libre/libre/stun"
	"github.com/stretchr/testify/require"
)

func TestCandidatePriorityOrdering(t *testing.T) {
	host := ice.Priority(ice.TypeHost, 65535, 1)
	srflx := ice.Priority(ice.TypeSrflx, 65535, 1)
	prflx := ice.Priority(ice.TypePrflx, 65535, 1)
	relay := ice.Priority(ice.TypeRelay, 65535, 1)
	require.Greater(t, host, prflx)
	require.Greater(t, prflx, srflx)
	require.Greater(t, srflx, relay)
}

func TestPairPriorityFavorsControllingCandidate(t *testing.T) {
	p1 := ice.PairPriorityOf(100, 50)
	p2 := ice.PairPriorityOf(50, 100)
	require.NotEqual(t, p1, p2)
	require.Greater(t, p1, p2)
}

// TestFormChecklistPrunesDuplicateBasePairs reproduces
// scenario 6: a single local host candidate and its derived server-
// reflexive candidate share a base, so pairing both against one remote
// candidate must collapse to the single highest-priority pair.
func TestFormChecklistPrunesDuplicateBasePairs(t *testing.T) {
	h1 := ice.NewCandidate(ice.TypeHost, "h1", 1, "10.0.0.1:5000", 65535, nil)
	s1 := ice.NewCandidate(ice.TypeSrflx, "h1", 1, "203.0.113.1:5000", 65534, h1)
	r1 := ice.NewCandidate(ice.TypeHost, "r1", 1, "10.0.0.2:6000", 65535, nil)

	pairs := ice.FormChecklist([]*ice.Candidate{h1, s1}, []*ice.Candidate{r1}, true, true)
	require.Len(t, pairs, 1)
	require.Equal(t, h1, pairs[0].Local)
}

func TestFormChecklistInitializesOnlyOneWaitingPerFoundation(t *testing.T) {
	h1 := ice.NewCandidate(ice.TypeHost, "h1", 1, "10.0.0.1:5000", 65535, nil)
	h2 := ice.NewCandidate(ice.TypeHost, "h1", 2, "10.0.0.1:5001", 65535, nil)
	r1 := ice.NewCandidate(ice.TypeHost, "r1", 1, "10.0.0.2:6000", 65535, nil)
	r2 := ice.NewCandidate(ice.TypeHost, "r1", 2, "10.0.0.2:6001", 65535, nil)

	pairs := ice.FormChecklist([]*ice.Candidate{h1, h2}, []*ice.Candidate{r1, r2}, true, true)
	require.Len(t, pairs, 2)

	waiting, frozen := 0, 0
	for _, p := range pairs {
		switch p.State {
		case ice.PairWaiting:
			waiting++
		case ice.PairFrozen:
			frozen++
		}
	}
	require.Equal(t, 1, waiting)
	require.Equal(t, 1, frozen)
}

func newTestSession(t *testing.T, role ice.Role) *ice.Session {
	t.Helper()
	r := reactor.New(nil)
	s, err := ice.NewSession(r, role, ice.ModeFull, ice.Conf{})
	require.NoError(t, err)
	return s
}

func TestInboundRequestRejectsWrongUsername(t *testing.T) {
	session := newTestSession(t, ice.RoleControlled)
	ms := session.AddMediaStream()

	local := ice.NewCandidate(ice.TypeHost, "h1", 1, "127.0.0.1:5000", 65535, nil)
	ms.SetLocalCandidates([]*ice.Candidate{local})
	ms.SetRemoteDescription("rufrag", "rpwd0000000000000000000", nil)
	ms.Start(func(componentID int, dst string, raw []byte) error { return nil }, nil)
	defer ms.Stop()

	tid, err := stun.NewTransactionID()
	require.NoError(t, err)
	m := &stun.Message{Method: stun.MethodBinding, Class: stun.ClassRequest, TID: tid}
	m.Add(stun.AttrUsername, []byte(session.LocalUfrag+"wrong:rufrag"))
	raw := stun.Encode(m, []byte(session.LocalPwd), true)

	_, err = ms.HandleInbound(raw, "10.0.0.9:4000", 1)
	require.Error(t, err)
}

func TestInboundRequestNominatesWhenControlled(t *testing.T) {
	session := newTestSession(t, ice.RoleControlled)
	ms := session.AddMediaStream()

	local := ice.NewCandidate(ice.TypeHost, "h1", 1, "127.0.0.1:5000", 65535, nil)
	remote := ice.NewCandidate(ice.TypeHost, "r1", 1, "10.0.0.9:4000", 65535, nil)
	ms.SetLocalCandidates([]*ice.Candidate{local})
	ms.SetRemoteDescription("rufrag", "rpwd0000000000000000000", []*ice.Candidate{remote})

	var selectedComponent int
	var selectedPair *ice.Pair
	done := make(chan struct{})
	ms.Start(func(componentID int, dst string, raw []byte) error { return nil }, func(componentID int, pair *ice.Pair) {
		selectedComponent = componentID
		selectedPair = pair
		close(done)
	})
	defer ms.Stop()

	tid, err := stun.NewTransactionID()
	require.NoError(t, err)
	m := &stun.Message{Method: stun.MethodBinding, Class: stun.ClassRequest, TID: tid}
	m.Add(stun.AttrUsername, []byte(session.LocalUfrag+":rufrag"))
	m.Add(stun.AttrUseCandidate, nil)
	raw := stun.Encode(m, []byte(session.LocalPwd), true)

	resp, err := ms.HandleInbound(raw, "10.0.0.9:4000", 1)
	require.NoError(t, err)
	require.NotEmpty(t, resp)

	<-done
	require.Equal(t, 1, selectedComponent)
	require.True(t, selectedPair.Nominated)
}

func TestRoleConflictControllingYieldsToLargerTiebreaker(t *testing.T) {
	session := newTestSession(t, ice.RoleControlling)
	ms := session.AddMediaStream()

	local := ice.NewCandidate(ice.TypeHost, "h1", 1, "127.0.0.1:5000", 65535, nil)
	ms.SetLocalCandidates([]*ice.Candidate{local})
	ms.SetRemoteDescription("rufrag", "rpwd0000000000000000000", nil)
	ms.Start(func(componentID int, dst string, raw []byte) error { return nil }, nil)
	defer ms.Stop()

	tid, err := stun.NewTransactionID()
	require.NoError(t, err)
	m := &stun.Message{Method: stun.MethodBinding, Class: stun.ClassRequest, TID: tid}
	m.Add(stun.AttrUsername, []byte(session.LocalUfrag+":rufrag"))
	var tb [8]byte
	larger := session.Tiebreaker | (1 << 63)
	for i := 0; i < 8; i++ {
		tb[7-i] = byte(larger >> (8 * i))
	}
	m.Add(stun.AttrIceControlling, tb[:])
	raw := stun.Encode(m, []byte(session.LocalPwd), true)

	_, err = ms.HandleInbound(raw, "10.0.0.9:4000", 1)
	require.NoError(t, err)
	require.Equal(t, ice.RoleControlled, session.Role)
}
