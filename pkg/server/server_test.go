package server_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/AmyangXYZ/rtseries/pkg/engine"
	"github.com/AmyangXYZ/rtseries/pkg/packet"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsEndpoint(t *testing.T) {
	e := engine.NewEngine(config.Default())
	srv := httptest.NewServer(e.Server().Handler())
	defer e.Stop()
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	buf, err := packet.Encode(packet.CreateOpenRequestPacket("admin", "password"))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, buf))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)
	conn.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rtseries_packets_total{direction="in",type="OPEN_REQUEST"}`)
	assert.Contains(t, string(body), "rtseries_sessions_active")
}

func TestPlainHTTPIsRejected(t *testing.T) {
	e := engine.NewEngine(config.Default())
	srv := httptest.NewServer(e.Server().Handler())
	defer e.Stop()
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
