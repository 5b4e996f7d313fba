// internal/game/win.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/hideandseek/internal/models"
)

const (
	msgNoHiders      = "Round over: no hiders took part. Seekers win!"
	msgAllHidersOut  = "All hiders have been caught or eliminated. Seekers win!"
	msgTimeUpHiders  = "Time is up and hiders are still at large. Hiders win!"
	msgTimeUpSeekers = "Time is up, but no hider remains. Seekers win!"
	msgEarlyEnd      = "The round was ended early by player vote. Seekers win!"
)

// checkWin evaluates the win conditions of a running round and ends it when one holds. It
// reports whether the round ended.
func (s *State) checkWin(now time.Time) bool {
	if s.status != models.RoundRunning {
		return false
	}

	participants := 0
	hiders := 0
	activeHiders := 0
	for _, p := range s.participants() {
		participants++
		if p.OriginalRole != models.RoleHider {
			continue
		}
		hiders++
		if p.ActiveHider() {
			activeHiders++
		}
	}

	switch {
	case hiders == 0 && participants > 0:
		s.endRound(models.RoundSeekerWins, msgNoHiders, now)
	case hiders > 0 && activeHiders == 0:
		s.endRound(models.RoundSeekerWins, msgAllHidersOut, now)
	case now.After(s.gameEnd):
		if activeHiders > 0 {
			s.endRound(models.RoundHiderWins, msgTimeUpHiders, now)
		} else {
			s.endRound(models.RoundSeekerWins, msgTimeUpSeekers, now)
		}
	default:
		return false
	}
	return true
}

// endRound moves to a terminal status.
func (s *State) endRound(result models.RoundStatus, message string, now time.Time) {
	s.log.WithField("status", result).Infof("round over: %s", message)
	s.status = result
	s.gameOverMessage = message
	s.gameOverAt = now
	s.earlyEndVotes = make(map[string]struct{})
	s.activeForEarlyEnd = 0
	s.schedule.Stop()
	s.warned = false
	for _, p := range s.players {
		p.clearWarning()
	}
	s.record("round_over", "", map[string]any{"result": string(result), "message": message})
	s.roundID = uuid.Nil
	s.notifyAll(message)
}
