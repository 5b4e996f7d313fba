// internal/game/round.go
package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/jason-s-yu/hideandseek/internal/protocol"
)

// Tick advances the round state machine to now. The game loop calls it once per second.
func (s *State) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick(now)
}

func (s *State) tick(now time.Time) {
	prev := s.status
	changed := false

	switch s.status {
	case models.RoundLobby:
		if s.readyToStart() {
			s.enterHiderWait(now)
		}
	case models.RoundHiderWait:
		changed = s.tickHiderWait(now)
	case models.RoundRunning:
		changed = s.tickRunning(now)
	case models.RoundHiderWins, models.RoundSeekerWins:
		changed = s.tickGameOver(now)
	}

	if changed || s.status != prev {
		s.broadcastState(now)
	}
}

// readyToStart holds when enough confirmed players are present, every one of them is online and
// every one of them is ready.
func (s *State) readyToStart() bool {
	ps := s.participants()
	if len(ps) < s.settings.MinPlayers {
		return false
	}
	for _, p := range ps {
		if !p.Online() || !p.IsReady {
			return false
		}
	}
	return true
}

func (s *State) enterHiderWait(now time.Time) {
	s.roundID = uuid.New()
	s.seq = 0
	s.status = models.RoundHiderWait
	s.hiderWaitEnd = now.Add(s.settings.HiderPrep)
	s.gameOverMessage = ""
	s.earlyEndVotes = make(map[string]struct{})
	s.revealed = make(map[string]protocol.HiderLocation)

	for _, p := range s.participants() {
		p.Role = p.OriginalRole
		p.setStatus(models.StatusActive)
		p.Points = 0
		p.clearTask()
		p.clearExpiredTask()
		p.clearWarning()
		p.PowerUpsUsed = nil
		if p.OriginalRole == models.RoleHider {
			p.TaskSkips = s.settings.InitialTaskSkips
		} else {
			p.TaskSkips = 0
		}
	}
	s.refreshEarlyEndTally()

	s.log.WithField("status", s.status).Infof("round %s starting with %d players", s.roundID, len(s.participants()))
	s.record("round_hider_wait", "", map[string]any{"players": len(s.participants())})
	s.notifyAll(fmt.Sprintf("The round is starting. Hiders have %d seconds to hide!", int(s.settings.HiderPrep.Seconds())))
}

func (s *State) tickHiderWait(now time.Time) bool {
	if !now.Before(s.hiderWaitEnd) {
		s.enterRunning(now)
		return true
	}
	changed := s.refreshEarlyEndTally()
	return changed || secondsLeft(s.hiderWaitEnd, now)%3 == 0
}

func (s *State) enterRunning(now time.Time) {
	s.status = models.RoundRunning
	s.gameStart = now
	s.gameEnd = now.Add(s.settings.RoundDuration)
	s.earlyEndVotes = make(map[string]struct{})
	s.schedule = NewSchedule(s.settings.Phases)
	s.schedule.Start(now)
	s.warned = false

	for _, p := range s.participants() {
		if p.ActiveHider() {
			s.assignTask(p, now)
		}
	}
	s.refreshEarlyEndTally()

	s.log.WithField("status", s.status).Infof("round %s running until %s", s.roundID, s.gameEnd.Format(time.RFC3339))
	s.record("round_running", "", map[string]any{"ends_at": s.gameEnd.Unix()})
	s.emit(protocol.EventGameStarted, "Seekers, go!", nil)
}

func (s *State) tickRunning(now time.Time) bool {
	if s.checkWin(now) {
		return true
	}
	changed := s.sweepExpiredTasks(now)
	if s.fillTaskVacancies(now) {
		changed = true
	}
	if s.maybeWarn(now) {
		changed = true
	}
	if s.schedule.Due(now) {
		s.fireLocationBroadcast(now)
		changed = true
		if s.checkWin(now) {
			return true
		}
	}
	if s.schedule.AdvanceElapsed(now) {
		changed = true
	}
	if s.refreshEarlyEndTally() {
		changed = true
	}
	return changed || secondsLeft(s.gameEnd, now)%5 == 0
}

// maybeWarn sends the "location update due" push once per broadcast cycle, window seconds ahead
// of the broadcast, to every online active hider.
func (s *State) maybeWarn(now time.Time) bool {
	if s.warned {
		return false
	}
	at, ok := s.schedule.WarningAt(s.settings.WarningWindow, s.settings.WarningBuffer)
	if !ok || now.Before(at) || s.schedule.Due(now) {
		return false
	}
	s.warned = true
	text := fmt.Sprintf("Send your location within %d seconds!", secondsLeft(*s.schedule.Next, now))
	for _, p := range s.players {
		if !p.ActiveHider() || !p.Online() {
			continue
		}
		p.WarningPending = true
		p.WarningSentAt = now
		p.LocationAfterWarningAt = time.Time{}
		s.sendTo(p, protocol.GameEvent{EventName: protocol.EventLocationUpdateDue, Message: text})
	}
	return true
}

// fireLocationBroadcast discloses hider positions to seekers. Warned hiders who did not send a
// fresh location since the warning are disqualified first.
func (s *State) fireLocationBroadcast(now time.Time) {
	s.warned = false
	for _, p := range s.players {
		if !p.WarningPending {
			continue
		}
		stale := !p.LocationAfterWarningAt.After(p.WarningSentAt)
		p.clearWarning()
		if !stale || !p.ActiveHider() {
			continue
		}
		p.setStatus(models.StatusFailedLocUpdate)
		p.clearTask()
		s.log.WithField("player_id", p.ID).Info("hider disqualified for missing location update")
		s.record("hider_disqualified", p.ID, nil)
		s.sendTo(p, protocol.GameEvent{
			EventName: protocol.EventHiderDisqualifiedLoc,
			Message:   "You did not send your location in time and are out of the round.",
		})
		s.notifyAll(fmt.Sprintf("%s missed a location update and is out!", p.Name))
	}

	s.revealed = make(map[string]protocol.HiderLocation)
	for _, p := range s.players {
		if !p.ActiveHider() || p.Location == nil {
			continue
		}
		s.revealed[p.ID] = protocol.HiderLocation{
			Name:      p.Name,
			Lat:       p.Location.Lat,
			Lon:       p.Location.Lon,
			Accuracy:  p.Location.Accuracy,
			Timestamp: p.LocationAt.Unix(),
		}
	}
	s.schedule.Fired(now)
	s.record("locations_revealed", "", map[string]any{"hiders": len(s.revealed), "phase": s.schedule.Index})
	s.emit(protocol.EventSeekerLocationsUpdated, "Hider locations updated.", func(p *Player) bool {
		return p.Participant() && p.Role == models.RoleSeeker
	})
}

// refreshEarlyEndTally recomputes how many votes end the round early and drops the votes of
// players who are no longer active. It reports a change.
func (s *State) refreshEarlyEndTally() bool {
	changed := false
	for id := range s.earlyEndVotes {
		if p, ok := s.players[id]; !ok || !p.Participant() || p.Status != models.StatusActive {
			delete(s.earlyEndVotes, id)
			changed = true
		}
	}
	active := 0
	for _, p := range s.participants() {
		if p.Status == models.StatusActive {
			active++
		}
	}
	if active != s.activeForEarlyEnd {
		s.activeForEarlyEnd = active
		changed = true
	}
	return changed
}

func (s *State) tickGameOver(now time.Time) bool {
	since := now.Sub(s.gameOverAt)
	if since >= s.settings.PostGameDelay {
		s.hardReset("The round has finished. A new lobby is open; please join again.", now)
		return true
	}
	secs := int(since.Seconds())
	if secs <= 30 {
		return secs%5 == 0
	}
	return secs%15 == 0
}

// hardReset drops every player and disconnects every client with reason, including connections
// that never joined.
func (s *State) hardReset(reason string, now time.Time) {
	s.log.WithField("status", s.status).Infof("hard reset: %s", reason)
	conns := s.conns
	for _, p := range s.players {
		if p.Conn != nil {
			conns[p.Conn] = struct{}{}
		}
	}
	s.players = make(map[string]*Player)
	s.conns = make(map[Connection]struct{})
	s.clearRound()
	for conn := range conns {
		s.sendConn(conn, protocol.TextNotification{Message: reason})
		s.sendConn(conn, s.unboundUpdate(reason, now))
		conn.Close()
	}
}

// softReset returns to the lobby when someone joins after a round was decided. Old players are
// dropped but their sockets stay open so they can join again.
func (s *State) softReset(now time.Time) {
	s.log.WithField("status", s.status).Info("soft reset")
	old := s.players
	s.players = make(map[string]*Player)
	s.clearRound()
	for _, p := range old {
		s.sendTo(p, s.unboundUpdate("The previous round has finished. Join again to play.", now))
	}
}

// clearRound resets the round fields to a fresh lobby without touching the player registry.
func (s *State) clearRound() {
	s.status = models.RoundLobby
	s.roundID = uuid.Nil
	s.seq = 0
	s.hiderWaitEnd = time.Time{}
	s.gameStart = time.Time{}
	s.gameEnd = time.Time{}
	s.gameOverAt = time.Time{}
	s.gameOverMessage = ""
	s.earlyEndVotes = make(map[string]struct{})
	s.activeForEarlyEnd = 0
	s.schedule = NewSchedule(s.settings.Phases)
	s.warned = false
	s.revealed = make(map[string]protocol.HiderLocation)
}
