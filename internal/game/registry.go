// internal/game/registry.go
package game

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/hideandseek/internal/models"
)

// createPlayer registers a new identity bound to conn. Names are compared case-insensitively
// against every registered player, online or not.
func (s *State) createPlayer(name string, role models.Role, conn Connection, now time.Time) (*Player, error) {
	if s.nameTaken(name) {
		return nil, ErrNameTaken
	}
	p := &Player{
		ID:           s.newPlayerID(conn),
		Name:         name,
		OriginalRole: role,
		Role:         role,
		Status:       models.StatusActive,
		Conn:         conn,
		LastSeen:     now,
	}
	if role == models.RoleHider {
		p.TaskSkips = s.settings.InitialTaskSkips
	}
	s.players[p.ID] = p
	if conn != nil {
		s.conns[conn] = struct{}{}
	}
	return p, nil
}

func (s *State) nameTaken(name string) bool {
	for _, p := range s.players {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// newPlayerID derives an id from the remote port plus random hex, with a counter suffix in the
// unlikely case of a collision.
func (s *State) newPlayerID(conn Connection) string {
	prefix := "p"
	if conn != nil {
		if _, port, err := net.SplitHostPort(conn.RemoteAddr()); err == nil && port != "" {
			prefix = port
		}
	}
	base := prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	id := base
	for n := 1; ; n++ {
		if _, exists := s.players[id]; !exists {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

func (s *State) find(id string) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// markOffline detaches conn from the player if it is still the player's connection. It reports
// whether anything changed.
func (s *State) markOffline(id string, conn Connection, now time.Time) bool {
	p, ok := s.players[id]
	if !ok || p.Conn == nil || p.Conn != conn {
		return false
	}
	p.Conn = nil
	p.LastSeen = now
	if p.Status != models.StatusOffline {
		p.StatusBeforeOffline = p.Status
		p.Status = models.StatusOffline
	}
	return true
}

// reattach binds conn to an existing player and restores the status parked while offline. A
// previous connection, if any, is returned so the caller can evict it.
func (s *State) reattach(id string, conn Connection, now time.Time) (*Player, Connection, error) {
	p, ok := s.players[id]
	if !ok {
		return nil, nil, ErrUnknownPlayer
	}
	var previous Connection
	if p.Conn != nil && p.Conn != conn {
		previous = p.Conn
	}
	p.Conn = conn
	s.conns[conn] = struct{}{}
	p.LastSeen = now
	p.ReattachedAt = now
	if p.Status == models.StatusOffline {
		p.Status = p.StatusBeforeOffline
		p.StatusBeforeOffline = ""
	}
	return p, previous, nil
}

func (s *State) remove(id string) {
	delete(s.players, id)
	delete(s.earlyEndVotes, id)
	delete(s.revealed, id)
}
