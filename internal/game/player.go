// internal/game/player.go
package game

import (
	"time"

	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/jason-s-yu/hideandseek/internal/protocol"
)

// Connection is the outbound half of a client transport. Send must not block; implementations
// queue the message and drop the client if it cannot keep up. Close may be called more than
// once.
type Connection interface {
	ID() string
	RemoteAddr() string
	Send(msg protocol.ServerMessage) error
	Close()
}

// Player is one joined identity. It outlives the connection it joined on so that a client can
// reattach after a network drop.
type Player struct {
	ID           string
	Name         string
	OriginalRole models.Role
	Role         models.Role

	Status              models.PlayerStatus
	StatusBeforeOffline models.PlayerStatus

	Location   *models.Location
	LocationAt time.Time
	LastSeen   time.Time

	// ReattachedAt is the time of the last REJOIN.
	ReattachedAt time.Time

	// Conn is nil while the player is offline.
	Conn Connection

	ConfirmedForLobby bool
	IsReady           bool
	WaitingForLobby   bool

	Points       int
	Task         *models.Task
	TaskDeadline time.Time
	TaskSkips    int

	// ExpiredTask is the task most recently replaced by the expiry sweep. A client that lost its
	// link without the server noticing can still settle it with an offline completion.
	ExpiredTask     *models.Task
	ExpiredDeadline time.Time
	ExpiredAt       time.Time

	// PowerUpsUsed holds the last use of each seeker power-up in this round.
	PowerUpsUsed map[string]time.Time

	WarningPending         bool
	WarningSentAt          time.Time
	LocationAfterWarningAt time.Time
}

// EffectiveStatus looks through the offline marker: a hider who is merely disconnected is still
// in the game.
func (p *Player) EffectiveStatus() models.PlayerStatus {
	if p.Status == models.StatusOffline {
		return p.StatusBeforeOffline
	}
	return p.Status
}

// Participant reports whether the player takes part in the current or next round, as opposed to
// waiting for the lobby to reopen.
func (p *Player) Participant() bool {
	return p.ConfirmedForLobby && !p.WaitingForLobby
}

// ActiveHider is a participant currently playing the hider role and not yet eliminated.
func (p *Player) ActiveHider() bool {
	return p.Participant() && p.Role == models.RoleHider && p.EffectiveStatus() == models.StatusActive
}

func (p *Player) Online() bool {
	return p.Conn != nil
}

// setStatus changes the in-round status. For an offline player the value is parked until the
// player reconnects.
func (p *Player) setStatus(st models.PlayerStatus) {
	if p.Status == models.StatusOffline {
		p.StatusBeforeOffline = st
		return
	}
	p.Status = st
}

func (p *Player) clearTask() {
	p.Task = nil
	p.TaskDeadline = time.Time{}
}

func (p *Player) clearExpiredTask() {
	p.ExpiredTask = nil
	p.ExpiredDeadline = time.Time{}
	p.ExpiredAt = time.Time{}
}

func (p *Player) clearWarning() {
	p.WarningPending = false
	p.WarningSentAt = time.Time{}
	p.LocationAfterWarningAt = time.Time{}
}
