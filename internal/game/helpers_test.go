package game

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/jason-s-yu/hideandseek/internal/protocol"
	"github.com/stretchr/testify/require"
)

// mockConn records everything the game sends instead of writing to a socket.
type mockConn struct {
	id   string
	addr string

	mu     sync.Mutex
	msgs   []protocol.ServerMessage
	closed bool
}

func (c *mockConn) ID() string         { return c.id }
func (c *mockConn) RemoteAddr() string { return c.addr }

func (c *mockConn) Send(msg protocol.ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection %s closed", c.id)
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *mockConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

// messagesOf returns the recorded messages of type T in order.
func messagesOf[T protocol.ServerMessage](c *mockConn) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []T
	for _, m := range c.msgs {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func lastUpdate(t *testing.T, c *mockConn) protocol.GameUpdate {
	t.Helper()
	updates := messagesOf[protocol.GameUpdate](c)
	require.NotEmpty(t, updates, "no game_update received on %s", c.id)
	return updates[len(updates)-1]
}

func eventNames(c *mockConn) []string {
	var names []string
	for _, ev := range messagesOf[protocol.GameEvent](c) {
		names = append(names, ev.EventName)
	}
	return names
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testEpoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// testSettings keeps location broadcasts out of the way unless a test sets its own phases.
func testSettings() Settings {
	s := DefaultSettings()
	s.RoundDuration = 10 * time.Minute
	s.Phases = []Phase{{Kind: PhaseInterval, Interval: time.Hour}}
	return s
}

func testCatalog() []models.Task {
	return []models.Task{
		{ID: 1, Description: "Touch a red door", TimeLimit: 300, Points: 5},
		{ID: 2, Description: "Find a fountain", TimeLimit: 300, Points: 3},
		{ID: 3, Description: "Photograph a dog", TimeLimit: 300, Points: 2},
	}
}

type harness struct {
	t     *testing.T
	s     *State
	clk   *fakeClock
	conns int
}

func newHarness(t *testing.T, settings Settings, catalog []models.Task) *harness {
	t.Helper()
	require.NoError(t, settings.Validate())
	clk := &fakeClock{now: testEpoch}
	s := New(settings, catalog, WithClock(clk.Now), WithRand(rand.New(rand.NewSource(1))))
	return &harness{t: t, s: s, clk: clk}
}

func (h *harness) newConn() *mockConn {
	h.conns++
	return &mockConn{
		id:   fmt.Sprintf("conn-%d", h.conns),
		addr: fmt.Sprintf("10.0.0.%d:%d", h.conns, 40000+h.conns),
	}
}

func (h *harness) join(name, role string) (string, *mockConn) {
	h.t.Helper()
	conn := h.newConn()
	id, err := h.s.Join(conn, name, role)
	require.NoError(h.t, err)
	return id, conn
}

func (h *harness) player(id string) *Player {
	h.t.Helper()
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	p, ok := h.s.players[id]
	require.True(h.t, ok, "player %s not registered", id)
	return p
}

// advance moves the clock forward one second at a time, ticking the game after each step.
func (h *harness) advance(d time.Duration) {
	for i := 0; i < int(d/time.Second); i++ {
		h.clk.Add(time.Second)
		h.s.Tick(h.clk.Now())
	}
}

// start readies every participant and runs the game through hider wait into a running round.
func (h *harness) start(ids ...string) {
	h.t.Helper()
	ready := true
	for _, id := range ids {
		require.NoError(h.t, h.s.SetReady(id, &ready))
	}
	h.s.Tick(h.clk.Now())
	require.Equal(h.t, models.RoundHiderWait, h.s.Status())
	h.advance(h.s.settings.HiderPrep)
	require.Equal(h.t, models.RoundRunning, h.s.Status())
}
