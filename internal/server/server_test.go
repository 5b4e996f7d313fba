package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/hideandseek/internal/catalog"
	"github.com/jason-s-yu/hideandseek/internal/game"
	"github.com/jason-s-yu/hideandseek/internal/handlers"
	"github.com/jason-s-yu/hideandseek/internal/protocol"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState() *game.State {
	return game.New(game.DefaultSettings(), catalog.Default())
}

func sessionConfig() handlers.SessionConfig {
	cfg := handlers.DefaultSessionConfig()
	cfg.RateLimit = 0
	return cfg
}

// readUpdate reads lines until a game_update arrives.
func readUpdate(t *testing.T, next func() ([]byte, error)) protocol.GameUpdate {
	t.Helper()
	for {
		line, err := next()
		require.NoError(t, err)
		msg, err := protocol.DecodeServerMessage(line)
		require.NoError(t, err)
		if u, ok := msg.(protocol.GameUpdate); ok {
			return u
		}
	}
}

func TestTCPListenerServesSessions(t *testing.T) {
	logger, _ := test.NewNullLogger()
	st := newState()
	l := NewTCPListener("127.0.0.1:0", st, sessionConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	select {
	case <-l.Ready():
	case err := <-done:
		t.Fatalf("listener failed: %v", err)
	}

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte(`{"action":"JOIN_GAME","name":"Anna"}` + "\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	u := readUpdate(t, func() ([]byte, error) { return r.ReadBytes('\n') })
	require.NotNil(t, u.PlayerID)
	assert.Equal(t, "Anna", u.PlayerName)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not shut down")
	}

	// shutdown closed the client and the player went offline
	_, online := st.PlayerCount()
	assert.Zero(t, online)
}

func TestGatewayHealthAndQR(t *testing.T) {
	logger, _ := test.NewNullLogger()
	g := NewGateway("127.0.0.1:0", "https://play.example.com/", newState(), sessionConfig(), logger)

	srv := httptest.NewServer(g.Handler(context.Background()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "lobby", health["round_status"])
	assert.EqualValues(t, 0, health["players"])

	qr, err := http.Get(srv.URL + "/qr.png")
	require.NoError(t, err)
	defer qr.Body.Close()
	assert.Equal(t, http.StatusOK, qr.StatusCode)
	assert.Equal(t, "image/png", qr.Header.Get("Content-Type"))

	missing, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestGatewayWebSocketSession(t *testing.T) {
	logger, _ := test.NewNullLogger()
	st := newState()
	g := NewGateway("127.0.0.1:0", "", st, sessionConfig(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := httptest.NewServer(g.Handler(ctx))
	defer srv.Close()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// frames carry a single line without the trailing newline
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"action":"JOIN_GAME","name":"Anna","role_preference":"seeker"}`)))

	u := readUpdate(t, func() ([]byte, error) {
		_, data, err := conn.Read(ctx)
		return data, err
	})
	require.NotNil(t, u.PlayerID)
	assert.Equal(t, "Anna", u.PlayerName)
	assert.True(t, st.Exists(*u.PlayerID))
}
