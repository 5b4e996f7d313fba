// internal/game/actions.go
package game

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/jason-s-yu/hideandseek/internal/protocol"
)

// Join registers a new player on conn and returns its id. Joining after a decided round first
// resets the game to a fresh lobby; joining while a round is in progress parks the player until
// the next lobby.
func (s *State) Join(conn Connection, name, rolePreference string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	name = s.normalizeName(name)
	if name == "" {
		return "", ErrInvalidName
	}
	role := models.RoleHider
	if strings.TrimSpace(rolePreference) != "" {
		r, err := models.ParseRole(rolePreference)
		if err != nil {
			return "", ErrInvalidRole
		}
		role = r
	}

	if s.status.Terminal() {
		s.softReset(now)
	}

	p, err := s.createPlayer(name, role, conn, now)
	if err != nil {
		return "", err
	}

	logger := s.log.WithField("player_id", p.ID)
	switch s.status {
	case models.RoundLobby:
		p.ConfirmedForLobby = true
		logger.Infof("%s joined the lobby as %s", p.Name, p.Role)
	case models.RoundHiderWait, models.RoundRunning:
		p.WaitingForLobby = true
		logger.Infof("%s joined during a round and waits for the next lobby", p.Name)
		s.sendTo(p, protocol.TextNotification{Message: "A round is in progress. You will join the next one."})
	case models.RoundHiderWins, models.RoundSeekerWins:
	}

	s.notifyAll(fmt.Sprintf("%s joined as %s.", p.Name, p.Role))
	s.broadcastState(now)
	return p.ID, nil
}

// normalizeName trims whitespace and truncates overly long names with an ellipsis.
func (s *State) normalizeName(name string) string {
	name = strings.TrimSpace(name)
	limit := s.settings.MaxNameLength
	if limit > 1 && utf8.RuneCountInString(name) > limit {
		r := []rune(name)
		name = string(r[:limit-1]) + "…"
	}
	return name
}

// Rejoin reattaches conn to an existing player, restoring the status it had before going
// offline. A non-empty name must match the player's name. A different connection still bound to
// the player is told and closed.
func (s *State) Rejoin(conn Connection, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	if p, ok := s.find(id); ok && strings.TrimSpace(name) != "" && !strings.EqualFold(s.normalizeName(name), p.Name) {
		s.log.WithField("player_id", id).Warnf("rejoin as %q does not match %q", name, p.Name)
		return ErrRejoinMismatch
	}
	p, previous, err := s.reattach(id, conn, now)
	if err != nil {
		return err
	}
	if previous != nil {
		s.sendConn(previous, protocol.TextNotification{Message: "Your session was taken over by another connection."})
		previous.Close()
	}

	s.log.WithField("player_id", p.ID).Infof("%s reconnected", p.Name)
	s.record("player_rejoined", p.ID, nil)
	if s.status == models.RoundRunning {
		s.checkWin(now)
	}
	s.refreshEarlyEndTally()
	s.notifyAll(fmt.Sprintf("%s is back.", p.Name))
	s.broadcastState(now)
	return nil
}

// ConfirmLobby confirms a registered player for the lobby.
func (s *State) ConfirmLobby(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	p, ok := s.find(id)
	if !ok {
		return ErrUnknownPlayer
	}
	if s.status != models.RoundLobby {
		return ErrNotInLobby
	}
	p.ConfirmedForLobby = true
	p.WaitingForLobby = false
	s.broadcastState(now)
	return nil
}

// SetReady sets the player's ready flag, or toggles it when ready is nil.
func (s *State) SetReady(id string, ready *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	p, ok := s.find(id)
	if !ok {
		return ErrUnknownPlayer
	}
	if s.status != models.RoundLobby {
		return ErrNotInLobby
	}
	if !p.Participant() {
		return ErrNotInRound
	}
	if ready == nil {
		p.IsReady = !p.IsReady
	} else {
		p.IsReady = *ready
	}
	s.broadcastState(now)
	return nil
}

// UpdateLocation stores a new fix and answers with the player's snapshot. A fix that arrives
// after a pending warning satisfies it.
func (s *State) UpdateLocation(id string, loc models.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	p, ok := s.find(id)
	if !ok {
		return ErrUnknownPlayer
	}
	p.Location = &loc
	p.LocationAt = now
	p.LastSeen = now
	if p.WarningPending && now.After(p.WarningSentAt) {
		p.LocationAfterWarningAt = now
	}
	s.sendTo(p, s.snapshotFor(p, now))
	return nil
}

// activeHiderWithTask checks the common preconditions of the task actions.
func (s *State) activeHiderWithTask(id string) (*Player, error) {
	p, err := s.activeHider(id)
	if err != nil {
		return nil, err
	}
	if p.Task == nil {
		return nil, ErrNoTask
	}
	return p, nil
}

func (s *State) activeHider(id string) (*Player, error) {
	p, ok := s.find(id)
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if s.status != models.RoundRunning {
		return nil, ErrNotRunning
	}
	if !p.Participant() {
		return nil, ErrNotInRound
	}
	if p.Role != models.RoleHider {
		return nil, ErrNotHider
	}
	if p.EffectiveStatus() != models.StatusActive {
		return nil, ErrNotActive
	}
	return p, nil
}

// CompleteTask awards the current task if its deadline has not passed.
func (s *State) CompleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	p, err := s.activeHiderWithTask(id)
	if err != nil {
		return err
	}
	if now.After(p.TaskDeadline) {
		return ErrTaskExpired
	}
	s.awardTask(p, now)
	s.checkWin(now)
	s.broadcastState(now)
	return nil
}

// CompleteTaskOffline settles a completion recorded while the client had no connection. Points
// are awarded only if the reported time is within the deadline; the task is replaced either way.
// A report for a task the expiry sweep replaced recently is judged against that task's deadline
// and leaves the current task alone.
func (s *State) CompleteTaskOffline(id string, taskID int, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	p, err := s.activeHider(id)
	if err != nil {
		return err
	}
	expired, wasExpired := s.expiredTaskFor(p, taskID, now)
	if wasExpired && !completedAt.After(p.ExpiredDeadline) {
		return s.settleExpiredTask(p, expired, now)
	}
	if p.Task == nil || p.Task.ID != taskID {
		if wasExpired {
			p.clearExpiredTask()
			s.log.WithField("player_id", p.ID).Infof("late offline completion of expired task %d rejected", taskID)
			s.record("task_late", p.ID, map[string]any{"task_id": taskID})
			s.notifyAll(fmt.Sprintf("%s submitted a task too late.", p.Name))
			s.broadcastState(now)
			return ErrTaskLate
		}
		if p.Task == nil {
			return ErrNoTask
		}
		return ErrTaskMismatch
	}

	logger := s.log.WithField("player_id", p.ID)
	if completedAt.After(p.TaskDeadline) {
		logger.Infof("late offline completion of task %d rejected", taskID)
		s.record("task_late", p.ID, map[string]any{"task_id": taskID})
		s.notifyAll(fmt.Sprintf("%s submitted a task too late.", p.Name))
		s.assignTask(p, now)
		s.broadcastState(now)
		return ErrTaskLate
	}

	points := p.Task.Points
	logger.Infof("offline completion of task %d accepted", taskID)
	s.sendTo(p, protocol.Acknowledgement{Message: fmt.Sprintf("Offline task completion accepted (+%d points).", points)})
	s.awardTask(p, now)
	s.checkWin(now)
	s.broadcastState(now)
	return nil
}

// settleExpiredTask credits a recently expired task. The current task is left alone.
func (s *State) settleExpiredTask(p *Player, t models.Task, now time.Time) error {
	p.clearExpiredTask()
	s.log.WithField("player_id", p.ID).Infof("offline completion of expired task %d accepted", t.ID)
	s.sendTo(p, protocol.Acknowledgement{Message: fmt.Sprintf("Offline task completion accepted (+%d points).", t.Points)})
	s.credit(p, t)
	s.checkWin(now)
	s.broadcastState(now)
	return nil
}

// SkipTask spends one skip to replace the current task.
func (s *State) SkipTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	p, err := s.activeHiderWithTask(id)
	if err != nil {
		return err
	}
	if p.TaskSkips <= 0 {
		return ErrNoSkips
	}
	p.TaskSkips--
	s.record("task_skipped", p.ID, map[string]any{"task_id": p.Task.ID})
	s.assignTask(p, now)
	s.sendTo(p, protocol.Acknowledgement{Message: "Task skipped."})
	s.broadcastState(now)
	return nil
}

// Catch converts an active hider into a caught seeker.
func (s *State) Catch(seekerID, hiderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	seeker, ok := s.find(seekerID)
	if !ok {
		return ErrUnknownPlayer
	}
	if s.status != models.RoundRunning {
		return ErrNotRunning
	}
	if !seeker.Participant() {
		return ErrNotInRound
	}
	if seeker.Role != models.RoleSeeker {
		return ErrNotSeeker
	}
	if st := seeker.EffectiveStatus(); st != models.StatusActive && st != models.StatusCaught {
		return ErrNotActive
	}
	hider, ok := s.find(hiderID)
	if !ok || !hider.ActiveHider() {
		return ErrNotActiveHider
	}

	hider.Role = models.RoleSeeker
	hider.setStatus(models.StatusCaught)
	hider.clearTask()
	hider.clearWarning()
	delete(s.revealed, hider.ID)

	s.log.WithField("player_id", hider.ID).Infof("%s was caught by %s", hider.Name, seeker.Name)
	s.record("hider_caught", hider.ID, map[string]any{"seeker_id": seeker.ID})
	s.notifyAll(fmt.Sprintf("%s caught %s!", seeker.Name, hider.Name))
	if !s.checkWin(now) {
		s.refreshEarlyEndTally()
	}
	s.broadcastState(now)
	return nil
}

// RequestEarlyEnd adds the player's vote to end the round. Once every active player voted the
// round ends in the seekers' favor.
func (s *State) RequestEarlyEnd(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	p, ok := s.find(id)
	if !ok {
		return ErrUnknownPlayer
	}
	if !s.status.InProgress() {
		return ErrNoEarlyEnd
	}
	if !p.Participant() {
		return ErrNotInRound
	}
	if p.Status != models.StatusActive {
		return ErrNotActive
	}

	s.earlyEndVotes[p.ID] = struct{}{}
	s.refreshEarlyEndTally()
	if len(s.earlyEndVotes) >= s.activeForEarlyEnd {
		s.endRound(models.RoundSeekerWins, msgEarlyEnd, now)
	} else {
		s.notifyAll(fmt.Sprintf("%s wants to end the round early (%d/%d).", p.Name, len(s.earlyEndVotes), s.activeForEarlyEnd))
	}
	s.broadcastState(now)
	return nil
}

// Leave takes the player out. In the lobby the player is removed; during a round it is kept as
// "left" so results stay complete. The connection is unbound.
func (s *State) Leave(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	p, ok := s.find(id)
	if !ok {
		return ErrUnknownPlayer
	}
	s.sendTo(p, protocol.Acknowledgement{Message: "You left the game."})

	if s.status == models.RoundLobby {
		s.remove(p.ID)
	} else {
		if p.EffectiveStatus() == models.StatusActive {
			p.Status = models.StatusLeft
			p.StatusBeforeOffline = ""
		}
		p.Conn = nil
		p.IsReady = false
		p.clearTask()
		p.clearWarning()
		delete(s.earlyEndVotes, p.ID)
		s.refreshEarlyEndTally()
		s.checkWin(now)
	}

	s.log.WithField("player_id", p.ID).Infof("%s left", p.Name)
	s.record("player_left", p.ID, nil)
	s.notifyAll(fmt.Sprintf("%s left the game.", p.Name))
	s.broadcastState(now)
	return nil
}

// ReturnToRegistration deletes a lobby player so that the client can register again on the same
// connection.
func (s *State) ReturnToRegistration(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	p, ok := s.find(id)
	if !ok {
		return ErrUnknownPlayer
	}
	if s.status != models.RoundLobby {
		return ErrNotInLobby
	}
	conn := p.Conn
	s.remove(p.ID)
	s.sendConn(conn, s.unboundUpdate("", now))

	s.log.WithField("player_id", p.ID).Infof("%s returned to registration", p.Name)
	s.notifyAll(fmt.Sprintf("%s left the lobby.", p.Name))
	s.broadcastState(now)
	return nil
}

// ForceReset acknowledges the request on conn and hard resets the server.
func (s *State) ForceReset(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	s.sendConn(conn, protocol.Acknowledgement{Message: "Server reset."})
	s.hardReset("The server was reset by a player.", now)
}

// Disconnect is the connection cleanup path. If conn is still the player's connection the player
// goes offline and everybody is told.
func (s *State) Disconnect(id string, conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	if !s.markOffline(id, conn, now) {
		return
	}
	p := s.players[id]
	s.log.WithField("player_id", id).Infof("%s went offline", p.Name)
	s.record("player_offline", id, nil)
	if s.status == models.RoundRunning {
		s.checkWin(now)
	}
	s.refreshEarlyEndTally()
	s.notifyAll(fmt.Sprintf("%s lost connection.", p.Name))
	s.broadcastState(now)
}

// RejectSession answers an identity failure on conn with an unbound snapshot.
func (s *State) RejectSession(conn Connection, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendConn(conn, s.unboundUpdate(reason, s.now()))
}
