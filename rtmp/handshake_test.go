package rtmp_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/go-libre/libre/rtmp"
	"github.com/stretchr/testify/require"
)

func TestHandshakePlainExchange(t *testing.T) {
	rd := rand.New(rand.NewSource(1))

	client := rtmp.NewHandshake(rd)
	server := rtmp.NewHandshake(rd)

	wire := &bytes.Buffer{}

	require.NoError(t, client.WriteC0S0(wire))
	require.NoError(t, client.WriteC1S1(wire))
	require.Equal(t, rtmp.HandshakeVersionSent, client.State())

	c0, err := server.ReadC0S0(wire)
	require.NoError(t, err)
	require.Equal(t, byte(0x03), c0[0])

	c1, err := server.ReadC1S1(wire)
	require.NoError(t, err)
	require.Len(t, c1, 1536)
	require.Equal(t, rtmp.HandshakeAckSent, server.State())

	require.NoError(t, server.WriteC0S0(wire))
	require.NoError(t, server.WriteC2S2(wire, c1))

	_, err = client.ReadC0S0(wire)
	require.NoError(t, err)

	_, err = client.ReadC2S2(wire)
	require.NoError(t, err)
	require.Equal(t, rtmp.HandshakeDone, client.State())
}
