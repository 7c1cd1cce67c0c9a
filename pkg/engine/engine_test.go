package engine

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/AmyangXYZ/rtseries/pkg/packet"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, cfg config.Config) (*RTSeriesEngine, *websocket.Conn) {
	t.Helper()
	e := NewEngine(cfg)
	srv := httptest.NewServer(e.Server().Handler())
	t.Cleanup(func() {
		srv.Close()
		e.Stop()
	})
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return e, conn
}

func send(t *testing.T, conn *websocket.Conn, pkt *packet.Packet) {
	t.Helper()
	buf, err := packet.Encode(pkt)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, buf))
}

func receive(t *testing.T, conn *websocket.Conn) *packet.Packet {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, buf, err := conn.ReadMessage()
	require.NoError(t, err)
	pkt, err := packet.Decode(buf)
	require.NoError(t, err)
	return pkt
}

func TestOpenSession(t *testing.T) {
	e, conn := dial(t, config.Default())
	req := packet.CreateOpenRequestPacket("admin", "password")
	send(t, conn, req)

	resp := receive(t, conn)
	assert.Equal(t, packet.PacketType_OPEN_RESPONSE, resp.GetHeader().PacketType)
	assert.True(t, resp.IsResponseTo(req.GetHeader().PacketUid))

	sessions := e.SessionManager().GetAllSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, resp.GetHeader().SessionId, sessions[0].ID())
	assert.Equal(t, "admin", sessions[0].Principal())

	var types []packet.PacketType
	for _, meta := range e.PacketSniffer().Recent() {
		types = append(types, meta.Type)
	}
	assert.Contains(t, types, packet.PacketType_OPEN_REQUEST)
}

func TestAuthenticationFailure(t *testing.T) {
	e, conn := dial(t, config.Default())
	req := packet.CreateOpenRequestPacket("admin", "nope")
	send(t, conn, req)

	resp := receive(t, conn)
	assert.Equal(t, packet.PacketType_ERROR_MESSAGE, resp.GetHeader().PacketType)
	assert.Equal(t, packet.ErrorCode_AUTHENTICATION_FAILED, resp.GetErrorCode())
	assert.True(t, resp.IsResponseTo(req.GetHeader().PacketUid))

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Empty(t, e.SessionManager().GetAllSessions())
}

func TestFirstPacketMustOpen(t *testing.T) {
	_, conn := dial(t, config.Default())
	send(t, conn, packet.CreatePingPacket(""))

	resp := receive(t, conn)
	assert.Equal(t, packet.ErrorCode_SESSION_CLOSED, resp.GetErrorCode())
}

func TestMalformedPacketIsAnswered(t *testing.T) {
	_, conn := dial(t, config.Default())
	send(t, conn, packet.CreateOpenRequestPacket("admin", "password"))
	sid := receive(t, conn).GetHeader().SessionId

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	resp := receive(t, conn)
	assert.Equal(t, packet.PacketType_ERROR_MESSAGE, resp.GetHeader().PacketType)
	assert.Equal(t, packet.ErrorCode_MALFORMED_PACKET, resp.GetErrorCode())

	ping := packet.CreatePingPacket(sid)
	send(t, conn, ping)
	pong := receive(t, conn)
	assert.Equal(t, packet.PacketType_PONG, pong.GetHeader().PacketType)
	assert.True(t, pong.IsResponseTo(ping.GetHeader().PacketUid))
}

func TestIdleSessionExpires(t *testing.T) {
	cfg := config.Default()
	cfg.Server.SessionLifetime = 1
	cfg.Server.HouseKeepingInterval = 50 * time.Millisecond
	e, conn := dial(t, cfg)

	send(t, conn, packet.CreateOpenRequestPacket("control", "password"))
	receive(t, conn)
	require.Len(t, e.SessionManager().GetAllSessions(), 1)

	assert.Eventually(t, func() bool {
		return len(e.SessionManager().GetAllSessions()) == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCloseRequest(t *testing.T) {
	e, conn := dial(t, config.Default())
	send(t, conn, packet.CreateOpenRequestPacket("admin", "password"))
	sid := receive(t, conn).GetHeader().SessionId

	send(t, conn, packet.CreateCloseRequestPacket(sid))
	resp := receive(t, conn)
	assert.Equal(t, packet.PacketType_CLOSE_RESPONSE, resp.GetHeader().PacketType)

	assert.Eventually(t, func() bool {
		return e.SessionManager().GetSession(sid) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestStartStop(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	e := NewEngine(cfg)

	done := make(chan error, 1)
	go func() { done <- e.Start() }()
	require.Eventually(t, func() bool {
		return e.Server().Addr() != cfg.Server.ListenAddr
	}, time.Second, 10*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+e.Server().Addr(), nil)
	require.NoError(t, err)
	conn.Close()

	e.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
