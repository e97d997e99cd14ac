package rtmp_test

import (
	"bytes"

	"testing"

	"github.com/go-libre/libre/amf0"
	"github.com/go-libre/libre/rtmp"
	"github.com/stretchr/testify/require"
)

// pipe is an in-memory duplex transport: writes on one side land in the
// buffer the other side reads from.
type pipe struct {
	r *bytes.Buffer
	w *bytes.Buffer
}

func (p *pipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipe) Write(b []byte) (int, error) { return p.w.Write(b) }

func newPipePair() (client, server *pipe) {
	c2s := &bytes.Buffer{}
	s2c := &bytes.Buffer{}
	return &pipe{r: s2c, w: c2s}, &pipe{r: c2s, w: s2c}
}

func TestProtocolConnectRequestReply(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := rtmp.NewProtocol(clientConn)
	server := rtmp.NewProtocol(serverConn)

	connectApp := rtmp.NewConnectAppPacket()
	connectApp.CommandObject.Set("app", amf0.NewString("live"))
	require.NoError(t, client.WritePacket(connectApp, 0))

	m, err := server.ReadMessage()
	require.NoError(t, err)
	pkt, err := server.DecodeMessage(m)
	require.NoError(t, err)

	got, ok := pkt.(*rtmp.ConnectAppPacket)
	require.True(t, ok)
	require.Equal(t, connectApp.TransactionID, got.TransactionID)

	res := rtmp.NewConnectAppResPacket(got.TransactionID)
	require.NoError(t, server.WritePacket(res, 0))

	_, replyPkt, err := client.ExpectPacket(func(m *rtmp.Message, pkt rtmp.Packet) bool {
		_, ok := pkt.(*rtmp.ConnectAppResPacket)
		return ok
	})
	require.NoError(t, err)
	require.IsType(t, &rtmp.ConnectAppResPacket{}, replyPkt)
}

func TestProtocolSetChunkSizeAppliesToInput(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := rtmp.NewProtocol(clientConn)
	server := rtmp.NewProtocol(serverConn)

	scs := rtmp.NewSetChunkSize()
	scs.ChunkSize = 4096
	require.NoError(t, client.WritePacket(scs, 0))

	_, err := server.ReadMessage()
	require.NoError(t, err)
}

func TestProtocolPublishUpdatesStreamTable(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := rtmp.NewProtocol(clientConn)
	server := rtmp.NewProtocol(serverConn)

	stream := server.AllocateStream()

	var seen *rtmp.CommandPacket
	server.CommandHandler = func(streamID uint32, cmd *rtmp.CommandPacket) {
		seen = cmd
	}

	publish := rtmp.NewPublishPacket(client.NewTransactionID(), "camera", "live")
	require.NoError(t, client.WritePacket(publish, int(stream.ID)))

	_, err := server.ReadMessage()
	require.NoError(t, err)

	require.NotNil(t, seen)
	require.Equal(t, "publish", string(seen.CommandName))

	s, ok := server.Stream(stream.ID)
	require.True(t, ok)
	require.True(t, s.Publishing)
	require.Equal(t, "camera", s.Name)
	require.Equal(t, "live", s.Mode)
}

func TestProtocolPingRequestGetsAutomaticResponse(t *testing.T) {
	clientConn, serverConn := newPipePair()
	client := rtmp.NewProtocol(clientConn)
	server := rtmp.NewProtocol(serverConn)

	ping := rtmp.NewUserControl()
	ping.Event = rtmp.UserControlPingRequest
	ping.Data = []byte{0x00, 0x00, 0x01, 0x0f}
	require.NoError(t, client.WritePacket(ping, 0))

	_, err := server.ReadMessage()
	require.NoError(t, err)

	m, err := client.ReadMessage()
	require.NoError(t, err)
	pkt, err := client.DecodeMessage(m)
	require.NoError(t, err)

	uc, ok := pkt.(*rtmp.UserControl)
	require.True(t, ok)
	require.Equal(t, rtmp.UserControlPingResponse, uc.Event)
	require.Equal(t, ping.Data, uc.Data)
}
