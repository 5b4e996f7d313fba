// internal/game/broadcast.go
package game

import (
	"time"

	"github.com/jason-s-yu/hideandseek/internal/protocol"
)

// sendTo queues msg for p if the player is online. Send never blocks, so this is safe under the
// state lock.
func (s *State) sendTo(p *Player, msg protocol.ServerMessage) {
	if p == nil || p.Conn == nil {
		return
	}
	if err := p.Conn.Send(msg); err != nil {
		s.log.WithField("player_id", p.ID).Debugf("dropped %s: %v", msg.MessageType(), err)
	}
}

func (s *State) sendConn(conn Connection, msg protocol.ServerMessage) {
	if conn == nil {
		return
	}
	if err := conn.Send(msg); err != nil {
		s.log.WithField("conn", conn.ID()).Debugf("dropped %s: %v", msg.MessageType(), err)
	}
}

// broadcastState sends every online player their personalized snapshot.
func (s *State) broadcastState(now time.Time) {
	for _, p := range s.players {
		if p.Online() {
			s.sendTo(p, s.snapshotFor(p, now))
		}
	}
}

// notifyAll sends a text notification to every online player.
func (s *State) notifyAll(text string) {
	msg := protocol.TextNotification{Message: text}
	for _, p := range s.players {
		s.sendTo(p, msg)
	}
}

// emit sends a game event to every online player matching filter; nil matches everyone.
func (s *State) emit(name, text string, filter func(*Player) bool) {
	ev := protocol.GameEvent{EventName: name, Message: text}
	for _, p := range s.players {
		if filter == nil || filter(p) {
			s.sendTo(p, ev)
		}
	}
}
