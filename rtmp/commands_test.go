package rtmp_test

import (
	"testing"

	"github.com/go-libre/libre/amf0"
	"github.com/go-libre/libre/rtmp"
	"github.com/stretchr/testify/require"
)

func TestConnectAppPacketRoundTrip(t *testing.T) {
	pkt := rtmp.NewConnectAppPacket()
	pkt.CommandObject.Set("app", amf0.NewString("live"))
	pkt.CommandObject.Set("tcUrl", amf0.NewString("rtmp://localhost/live"))

	data, err := pkt.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, pkt.Size(), len(data))

	dec := &rtmp.ConnectAppPacket{}
	require.NoError(t, dec.UnmarshalBinary(data))
	require.EqualValues(t, 1, dec.TransactionID)

	app := dec.CommandObject.Get("app")
	require.NotNil(t, app)
	s, ok := app.(*amf0.String)
	require.True(t, ok)
	require.Equal(t, "live", string(*s))
}

func TestConnectAppPacketRejectsWrongCommandName(t *testing.T) {
	other := rtmp.NewConnectAppResPacket(amf0.Number(1))
	data, err := other.MarshalBinary()
	require.NoError(t, err)

	dec := &rtmp.ConnectAppPacket{}
	require.Error(t, dec.UnmarshalBinary(data))
}

func TestCreateStreamPacketRoundTrip(t *testing.T) {
	pkt := rtmp.NewCreateStreamPacket(amf0.Number(2))

	data, err := pkt.MarshalBinary()
	require.NoError(t, err)

	dec := &rtmp.CommandPacket{}
	require.NoError(t, dec.UnmarshalBinary(data))
	require.Equal(t, pkt.CommandName, dec.CommandName)
	require.Equal(t, pkt.TransactionID, dec.TransactionID)
	require.Len(t, dec.Args, 1)
}

func TestPublishPacketRoundTrip(t *testing.T) {
	pkt := rtmp.NewPublishPacket(amf0.Number(3), "camera", "live")

	data, err := pkt.MarshalBinary()
	require.NoError(t, err)

	dec := &rtmp.CommandPacket{}
	require.NoError(t, dec.UnmarshalBinary(data))
	require.Len(t, dec.Args, 3)

	name, ok := dec.Args[1].(*amf0.String)
	require.True(t, ok)
	require.Equal(t, "camera", string(*name))

	mode, ok := dec.Args[2].(*amf0.String)
	require.True(t, ok)
	require.Equal(t, "live", string(*mode))
}

func TestDeleteStreamPacketRoundTrip(t *testing.T) {
	pkt := rtmp.NewDeleteStreamPacket(amf0.Number(4), 7)

	data, err := pkt.MarshalBinary()
	require.NoError(t, err)

	dec := &rtmp.CommandPacket{}
	require.NoError(t, dec.UnmarshalBinary(data))
	require.Len(t, dec.Args, 2)

	id, ok := dec.Args[1].(*amf0.Number)
	require.True(t, ok)
	require.EqualValues(t, 7, *id)
}

func TestOnStatusPacketRoundTrip(t *testing.T) {
	pkt := rtmp.NewOnStatusPacket("status", "NetStream.Publish.Start", "camera is now published")

	data, err := pkt.MarshalBinary()
	require.NoError(t, err)

	dec := &rtmp.CommandPacket{}
	require.NoError(t, dec.UnmarshalBinary(data))
	require.Len(t, dec.Args, 2)

	info, ok := dec.Args[1].(*amf0.Object)
	require.True(t, ok)

	code, ok := info.Get("code").(*amf0.String)
	require.True(t, ok)
	require.Equal(t, "NetStream.Publish.Start", string(*code))
}
