package websocket

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suji-games/leaderboard-service/internal/config"
)

func testHub(t *testing.T, cfg *config.WebsocketConfig) *Hub {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHub(cfg, logger)
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, originAllowed(nil, "https://anywhere.example"))
	assert.True(t, originAllowed(nil, ""))

	allowed := []string{"https://play.suji.gg", "https://admin.suji.gg"}
	assert.True(t, originAllowed(allowed, "https://play.suji.gg"))
	assert.True(t, originAllowed(allowed, "https://admin.suji.gg"))
	assert.False(t, originAllowed(allowed, "https://evil.example"))
	assert.False(t, originAllowed(allowed, ""))
}

func TestServeWSOriginPolicy(t *testing.T) {
	cfg := &config.WebsocketConfig{
		AllowedOrigins:  []string{"https://play.suji.gg"},
		MaxMessageBytes: 4096,
		WriteTimeout:    time.Second,
		PongTimeout:     time.Minute,
		SendBuffer:      8,
	}
	h := testHub(t, cfg)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), http.Header{"Origin": {"https://play.suji.gg"}})
	require.NoError(t, err)
	conn.Close()
}

func TestSubscribeCommandAck(t *testing.T) {
	cfg := &config.WebsocketConfig{
		MaxMessageBytes: 4096,
		WriteTimeout:    time.Second,
		PongTimeout:     time.Minute,
		SendBuffer:      8,
	}
	h := testHub(t, cfg)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(command{Type: MessageTypeSubscribe, LeaderboardID: "weekly"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "subscribed", msg.Type)
	assert.Equal(t, "weekly", msg.LeaderboardID)

	require.Eventually(t, func() bool {
		return h.GetSubscriberCount("weekly") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSubscribeRequiresLeaderboardID(t *testing.T) {
	cfg := &config.WebsocketConfig{
		MaxMessageBytes: 4096,
		WriteTimeout:    time.Second,
		PongTimeout:     time.Minute,
		SendBuffer:      8,
	}
	h := testHub(t, cfg)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(command{Type: MessageTypeSubscribe}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypeError, msg.Type)
}
