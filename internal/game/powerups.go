package game

import (
	"fmt"
	"time"

	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/jason-s-yu/hideandseek/internal/protocol"
)

// PowerUp is a seeker ability with a per-seeker cooldown. Using one is announced to everybody.
type PowerUp struct {
	ID       string
	Name     string
	Cooldown time.Duration
}

var powerUps = []PowerUp{
	{ID: "reveal_one", Name: "Reveal one hider (precise)", Cooldown: 5 * time.Minute},
	{ID: "radar_ping", Name: "Short radar ping (all hiders, coarse)", Cooldown: 3 * time.Minute},
}

func findPowerUp(id string) (PowerUp, bool) {
	for _, pu := range powerUps {
		if pu.ID == id {
			return pu, true
		}
	}
	return PowerUp{}, false
}

// ready reports whether p may use pu at now.
func (pu PowerUp) ready(p *Player, now time.Time) bool {
	used, ok := p.PowerUpsUsed[pu.ID]
	return !ok || now.Sub(used) >= pu.Cooldown
}

// UsePowerUp spends one of the seeker's power-ups and starts its cooldown.
func (s *State) UsePowerUp(id, powerUpID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	p, ok := s.find(id)
	if !ok {
		return ErrUnknownPlayer
	}
	if s.status != models.RoundRunning {
		return ErrNotRunning
	}
	if !p.Participant() {
		return ErrNotInRound
	}
	if p.Role != models.RoleSeeker {
		return ErrNotSeeker
	}
	if st := p.EffectiveStatus(); st != models.StatusActive && st != models.StatusCaught {
		return ErrNotActive
	}
	pu, ok := findPowerUp(powerUpID)
	if !ok {
		return ErrUnknownPowerUp
	}
	if !pu.ready(p, now) {
		return ErrPowerUpCooldown
	}

	if p.PowerUpsUsed == nil {
		p.PowerUpsUsed = make(map[string]time.Time)
	}
	p.PowerUpsUsed[pu.ID] = now
	s.log.WithField("player_id", p.ID).Infof("%s used power-up %s", p.Name, pu.ID)
	s.record("power_up_used", p.ID, map[string]any{"power_up": pu.ID})
	s.notifyAll(fmt.Sprintf("Seeker %s used the power-up '%s'!", p.Name, pu.Name))
	s.broadcastState(now)
	return nil
}

func availablePowerUps(p *Player, now time.Time) []protocol.PowerUpView {
	var out []protocol.PowerUpView
	for _, pu := range powerUps {
		if pu.ready(p, now) {
			out = append(out, protocol.PowerUpView{ID: pu.ID, Name: pu.Name})
		}
	}
	return out
}
