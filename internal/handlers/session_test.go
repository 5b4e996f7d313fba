package handlers

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jason-s-yu/hideandseek/internal/catalog"
	"github.com/jason-s-yu/hideandseek/internal/game"
	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/jason-s-yu/hideandseek/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient is the far end of a pipe running a session.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
	done chan error
}

func startSession(t *testing.T, st *game.State) *testClient {
	t.Helper()
	server, client := net.Pipe()
	logger, _ := test.NewNullLogger()

	cfg := DefaultSessionConfig()
	cfg.RateLimit = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeConn(ctx, NewConnTransport(server), st, cfg, logger)
	}()
	t.Cleanup(func() {
		cancel()
		client.Close()
	})
	return &testClient{t: t, conn: client, r: bufio.NewReader(client), done: done}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *testClient) read() (protocol.ServerMessage, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return nil, err
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return protocol.DecodeServerMessage(line)
}

// expect reads until a message of type T arrives and returns it.
func expect[T protocol.ServerMessage](c *testClient) T {
	c.t.Helper()
	for {
		msg, err := c.read()
		require.NoError(c.t, err)
		if v, ok := msg.(T); ok {
			return v
		}
	}
}

// expectClosed drains the pipe until the server hangs up.
func (c *testClient) expectClosed() {
	c.t.Helper()
	for {
		_, err := c.read()
		if err != nil {
			assert.ErrorIs(c.t, err, io.EOF)
			break
		}
	}
	select {
	case err := <-c.done:
		assert.NoError(c.t, err)
	case <-time.After(2 * time.Second):
		c.t.Fatal("session did not finish")
	}
}

func newState() *game.State {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return game.New(game.DefaultSettings(), catalog.Default(), game.WithLogger(logger))
}

func TestSessionJoinBindsPlayer(t *testing.T) {
	st := newState()
	c := startSession(t, st)

	c.send(`{"action":"JOIN_GAME","name":"Anna","role_preference":"hider"}`)
	u := expect[protocol.GameUpdate](c)
	require.NotNil(t, u.PlayerID)
	assert.Equal(t, "Anna", u.PlayerName)
	assert.Equal(t, models.RoleHider, u.Role)
	assert.True(t, st.Exists(*u.PlayerID))

	c.send(`{"action":"SET_READY","ready_status":false}`)
	u = expect[protocol.GameUpdate](c)
	assert.False(t, u.IsReady)

	c.send(`{"action":"JOIN_GAME","name":"Anna again"}`)
	e := expect[protocol.Error](c)
	assert.Equal(t, game.ErrAlreadyJoined.Message, e.Message)
}

func TestSessionRejectsBadInput(t *testing.T) {
	c := startSession(t, newState())

	c.send(`{"action":"DANCE"}`)
	assert.Equal(t, "Unknown action: DANCE", expect[protocol.Error](c).Message)

	c.send(`{not json`)
	assert.Equal(t, "Invalid message format.", expect[protocol.Error](c).Message)

	// the session keeps going after errors
	c.send(`{"action":"JOIN_GAME","name":"Ben"}`)
	u := expect[protocol.GameUpdate](c)
	assert.NotNil(t, u.PlayerID)
}

func TestSessionActionBeforeJoinIsRejected(t *testing.T) {
	c := startSession(t, newState())

	c.send(`{"action":"SKIP_TASK"}`)
	u := expect[protocol.GameUpdate](c)
	assert.Nil(t, u.PlayerID)
	assert.Equal(t, game.ErrNotJoined.Message, u.JoinError)
	c.expectClosed()
}

func TestSessionNameCollisionEndsSession(t *testing.T) {
	st := newState()
	first := startSession(t, st)
	first.send(`{"action":"JOIN_GAME","name":"Anna"}`)
	expect[protocol.GameUpdate](first)

	second := startSession(t, st)
	second.send(`{"action":"JOIN_GAME","name":"ANNA"}`)
	u := expect[protocol.GameUpdate](second)
	assert.Equal(t, game.ErrNameTaken.Message, u.JoinError)
	second.expectClosed()
}

func TestSessionDisconnectAndRejoin(t *testing.T) {
	st := newState()
	first := startSession(t, st)
	first.send(`{"action":"JOIN_GAME","name":"Anna"}`)
	u := expect[protocol.GameUpdate](first)
	id := *u.PlayerID

	require.NoError(t, first.conn.Close())
	select {
	case <-first.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
	_, online := st.PlayerCount()
	assert.Zero(t, online)

	second := startSession(t, st)
	second.send(`{"action":"REJOIN_GAME","player_id":"` + id + `"}`)
	u = expect[protocol.GameUpdate](second)
	require.NotNil(t, u.PlayerID)
	assert.Equal(t, id, *u.PlayerID)
	_, online = st.PlayerCount()
	assert.Equal(t, 1, online)
}

func TestSessionLeaveEndsSession(t *testing.T) {
	st := newState()
	c := startSession(t, st)
	c.send(`{"action":"JOIN_GAME","name":"Anna"}`)
	u := expect[protocol.GameUpdate](c)

	c.send(`{"action":"LEAVE_GAME_AND_GO_TO_JOIN"}`)
	expect[protocol.Acknowledgement](c)
	c.expectClosed()
	assert.False(t, st.Exists(*u.PlayerID))
}

func TestSessionReturnToRegistrationUnbinds(t *testing.T) {
	st := newState()
	c := startSession(t, st)
	c.send(`{"action":"JOIN_GAME","name":"Anna"}`)
	expect[protocol.GameUpdate](c)

	c.send(`{"action":"RETURN_TO_REGISTRATION"}`)
	u := expect[protocol.GameUpdate](c)
	assert.Nil(t, u.PlayerID)

	c.send(`{"action":"JOIN_GAME","name":"Anna","role_preference":"seeker"}`)
	u = expect[protocol.GameUpdate](c)
	require.NotNil(t, u.PlayerID)
	assert.Equal(t, models.RoleSeeker, u.Role)
}

func TestSessionRejoinWithWrongNameIsRejected(t *testing.T) {
	st := newState()
	first := startSession(t, st)
	first.send(`{"action":"JOIN_GAME","name":"Anna"}`)
	id := *expect[protocol.GameUpdate](first).PlayerID

	second := startSession(t, st)
	second.send(`{"action":"REJOIN_GAME","player_id":"` + id + `","name":"Ben"}`)
	u := expect[protocol.GameUpdate](second)
	assert.Nil(t, u.PlayerID)
	assert.Equal(t, game.ErrRejoinMismatch.Message, u.JoinError)
	second.expectClosed()

	// the matching name, in any case, is accepted
	third := startSession(t, st)
	third.send(`{"action":"REJOIN_GAME","player_id":"` + id + `","name":"anna"}`)
	u = expect[protocol.GameUpdate](third)
	require.NotNil(t, u.PlayerID)
	assert.Equal(t, id, *u.PlayerID)
}

func TestSessionForceResetClosesUnboundSessions(t *testing.T) {
	st := newState()

	idle := startSession(t, st)
	idle.send(`{"action":"DANCE"}`)
	expect[protocol.Error](idle)

	admin := startSession(t, st)
	admin.send(`{"action":"FORCE_SERVER_RESET_FROM_CLIENT"}`)
	expect[protocol.Acknowledgement](admin)
	admin.expectClosed()

	expect[protocol.TextNotification](idle)
	u := expect[protocol.GameUpdate](idle)
	assert.Nil(t, u.PlayerID)
	assert.NotEmpty(t, u.JoinError)
	idle.expectClosed()
}
