package rtmp_test

import (
	"testing"

	"github.com/go-libre/libre/rtmp"
	"github.com/stretchr/testify/require"
)

func TestSetChunkSizeRoundTrip(t *testing.T) {
	v := rtmp.NewSetChunkSize()
	v.ChunkSize = 4096

	data, err := v.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, v.Size(), len(data))

	dec := &rtmp.SetChunkSize{}
	require.NoError(t, dec.UnmarshalBinary(data))
	require.Equal(t, v.ChunkSize, dec.ChunkSize)
}

func TestSetChunkSizeShortIsError(t *testing.T) {
	dec := &rtmp.SetChunkSize{}
	require.Error(t, dec.UnmarshalBinary([]byte{0x01, 0x02}))
}

func TestWindowAcknowledgementSizeRoundTrip(t *testing.T) {
	v := &rtmp.WindowAcknowledgementSize{AckSize: 2500000}

	data, err := v.MarshalBinary()
	require.NoError(t, err)

	dec := &rtmp.WindowAcknowledgementSize{}
	require.NoError(t, dec.UnmarshalBinary(data))
	require.Equal(t, v.AckSize, dec.AckSize)
}

func TestSetPeerBandwidthRoundTrip(t *testing.T) {
	v := &rtmp.SetPeerBandwidth{Bandwidth: 2500000, LimitType: rtmp.LimitTypeDynamic}

	data, err := v.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, 5, len(data))

	dec := &rtmp.SetPeerBandwidth{}
	require.NoError(t, dec.UnmarshalBinary(data))
	require.Equal(t, v.Bandwidth, dec.Bandwidth)
	require.Equal(t, v.LimitType, dec.LimitType)
}

func TestUserControlPingRoundTrip(t *testing.T) {
	v := rtmp.NewPingResponse(0x0000010f)

	data, err := v.MarshalBinary()
	require.NoError(t, err)

	dec := rtmp.NewUserControl()
	require.NoError(t, dec.UnmarshalBinary(data))
	require.Equal(t, rtmp.UserControlPingResponse, dec.Event)
	require.Equal(t, v.Data, dec.Data)
}

func TestStreamBeginAndEOF(t *testing.T) {
	begin := rtmp.NewStreamBegin(3)
	require.Equal(t, rtmp.UserControlStreamBegin, begin.Event)

	eof := rtmp.NewStreamEOF(3)
	require.Equal(t, rtmp.UserControlStreamEOF, eof.Event)
	require.Equal(t, begin.Data, eof.Data)
}
