package httpauth_test

import (
	"testing"

	"github.com/go-libre/libre/httpauth"
	"github.com/stretchr/testify/require"
)

func TestDecodeChallengeRequiresRealmAndNonce(t *testing.T) {
	c, err := httpauth.DecodeChallenge(`Digest realm="sip.example.com", nonce="abc123", qop="auth", algorithm=MD5`)
	require.NoError(t, err)
	require.Equal(t, "sip.example.com", c.Realm)
	require.Equal(t, "abc123", c.Nonce)
	require.Equal(t, "auth", c.Qop)

	_, err = httpauth.DecodeChallenge(`Digest qop="auth"`)
	require.Error(t, err)
}

func TestDecodeResponseRejectsQopWithoutNcCnonce(t *testing.T) {
	// Open Question resolution: qop present requires nc+cnonce (RFC 2617),
	// diverging from the looser original source behavior.
	header := `Digest username="alice", realm="sip.example.com", nonce="abc123", uri="sip:bob@example.com", response="deadbeefdeadbeefdeadbeefdeadbeef", qop=auth`
	_, err := httpauth.DecodeResponse(header)
	require.Error(t, err)

	full := header + `, nc=00000001, cnonce="xyz"`
	r, err := httpauth.DecodeResponse(full)
	require.NoError(t, err)
	require.Equal(t, "00000001", r.Nc)
	require.Equal(t, "xyz", r.Cnonce)
}

func TestMakeResponseThenVerifyRoundTrip(t *testing.T) {
	chall := &httpauth.Challenge{
		Realm: "sip.example.com",
		Nonce: "abc123",
		Qop:   "auth",
	}
	header := httpauth.MakeResponse(chall, "REGISTER", "sip:example.com", "alice", "secret", "cnonce1", "00000001")

	r, err := httpauth.DecodeResponse(header)
	require.NoError(t, err)

	ha1 := httpauth.HA1("alice", chall.Realm, "secret", chall.Algorithm, chall.Nonce, r.Cnonce)
	require.NoError(t, httpauth.VerifyResponse(r, "REGISTER", ha1))
}

func TestVerifyResponseFailsOnWrongPassword(t *testing.T) {
	chall := &httpauth.Challenge{Realm: "sip.example.com", Nonce: "abc123"}
	header := httpauth.MakeResponse(chall, "REGISTER", "sip:example.com", "alice", "secret", "", "")

	r, err := httpauth.DecodeResponse(header)
	require.NoError(t, err)

	wrongHA1 := httpauth.HA1("alice", chall.Realm, "wrong", chall.Algorithm, chall.Nonce, "")
	require.Error(t, httpauth.VerifyResponse(r, "REGISTER", wrongHA1))
}
