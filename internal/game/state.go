// internal/game/state.go
package game

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/hideandseek/internal/cache"
	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/jason-s-yu/hideandseek/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Recorder receives round history. Record must not block.
type Recorder interface {
	Record(ev cache.RoundEvent)
}

// State is the single authoritative game. Every exported method takes the lock; unexported
// helpers expect the caller to hold it.
type State struct {
	mu sync.Mutex

	settings Settings
	catalog  []models.Task

	players map[string]*Player
	// conns holds every open client connection, bound to a player or not.
	conns   map[Connection]struct{}
	status  models.RoundStatus

	hiderWaitEnd    time.Time
	gameStart       time.Time
	gameEnd         time.Time
	gameOverAt      time.Time
	gameOverMessage string

	earlyEndVotes     map[string]struct{}
	activeForEarlyEnd int

	schedule Schedule
	// warned is set once the warning for the pending broadcast went out.
	warned   bool
	revealed map[string]protocol.HiderLocation

	roundID uuid.UUID
	seq     int

	now      func() time.Time
	rng      *rand.Rand
	log      logrus.FieldLogger
	recorder Recorder
}

// Option customizes a State.
type Option func(*State)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// WithRand sets the source used for task selection.
func WithRand(rng *rand.Rand) Option {
	return func(s *State) { s.rng = rng }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *State) { s.log = logger }
}

// WithRecorder ships round history to r.
func WithRecorder(r Recorder) Option {
	return func(s *State) { s.recorder = r }
}

// New creates the game in the lobby.
func New(settings Settings, catalog []models.Task, opts ...Option) *State {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &State{
		settings:      settings,
		catalog:       append([]models.Task(nil), catalog...),
		players:       make(map[string]*Player),
		conns:         make(map[Connection]struct{}),
		status:        models.RoundLobby,
		earlyEndVotes: make(map[string]struct{}),
		schedule:      NewSchedule(settings.Phases),
		revealed:      make(map[string]protocol.HiderLocation),
		now:           time.Now,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		log:           discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach registers an open connection so that a hard reset can reach it before it joins.
func (s *State) Attach(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

// Detach forgets a closed connection.
func (s *State) Detach(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Status returns the current round status.
func (s *State) Status() models.RoundStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Exists reports whether a player with the id is registered.
func (s *State) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.players[id]
	return ok
}

// PlayerCount returns the number of registered players and how many of them are online.
func (s *State) PlayerCount() (total, online int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		total++
		if p.Online() {
			online++
		}
	}
	return total, online
}

// Snapshot builds the personalized view for a player, as it would be sent right now.
func (s *State) Snapshot(id string) (protocol.GameUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return protocol.GameUpdate{}, false
	}
	return s.snapshotFor(p, s.now()), true
}

// record appends a history event for the current round. Outside a round there is nothing to
// attach the event to and it is dropped.
func (s *State) record(kind, playerID string, payload map[string]any) {
	if s.recorder == nil || s.roundID == uuid.Nil {
		return
	}
	s.seq++
	s.recorder.Record(cache.RoundEvent{
		RoundID:   s.roundID,
		Seq:       s.seq,
		Kind:      kind,
		PlayerID:  playerID,
		Payload:   payload,
		Timestamp: s.now().UnixMilli(),
	})
}

// participants returns the players taking part in the round.
func (s *State) participants() []*Player {
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		if p.Participant() {
			out = append(out, p)
		}
	}
	return out
}
