// internal/game/snapshot.go
package game

import (
	"sort"
	"time"

	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/jason-s-yu/hideandseek/internal/protocol"
)

// secondsLeft truncates to whole seconds. Countdowns never go negative.
func secondsLeft(until, now time.Time) int {
	d := until.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

func intPtr(v int) *int { return &v }

func (s *State) roundState(now time.Time) protocol.RoundState {
	rs := protocol.RoundState{
		Status:        s.status,
		StatusDisplay: s.status.Display(),
	}
	switch s.status {
	case models.RoundHiderWait:
		rs.HiderWaitTimeLeft = intPtr(secondsLeft(s.hiderWaitEnd, now))
	case models.RoundRunning:
		rs.GameTimeLeft = intPtr(secondsLeft(s.gameEnd, now))
		rs.PhaseIndex = s.schedule.Index
		if s.schedule.Next != nil {
			rs.NextLocationBroadcastIn = intPtr(secondsLeft(*s.schedule.Next, now))
		}
	case models.RoundHiderWins, models.RoundSeekerWins:
		rs.GameOverMessage = s.gameOverMessage
	case models.RoundLobby:
	}
	return rs
}

// unboundUpdate is sent to connections that have no player, usually with a reason.
func (s *State) unboundUpdate(joinErr string, now time.Time) protocol.GameUpdate {
	return protocol.GameUpdate{
		JoinError: joinErr,
		GameState: s.roundState(now),
	}
}

// snapshotFor builds the personalized game_update for p.
func (s *State) snapshotFor(p *Player, now time.Time) protocol.GameUpdate {
	id := p.ID
	u := protocol.GameUpdate{
		PlayerID:           &id,
		PlayerName:         p.Name,
		Role:               p.Role,
		OriginalRole:       p.OriginalRole,
		ConfirmedForLobby:  p.ConfirmedForLobby,
		IsReady:            p.IsReady,
		Status:             p.Status,
		Points:             p.Points,
		TaskSkipsAvailable: p.TaskSkips,
		IsWaitingForLobby:  p.WaitingForLobby,
		GameState:          s.roundState(now),
		AllPlayersStatus:   make(map[string]protocol.PlayerSummary, len(s.players)),
	}
	if p.Location != nil {
		loc := *p.Location
		u.Location = &loc
	}

	for _, other := range s.players {
		u.AllPlayersStatus[other.ID] = protocol.PlayerSummary{
			Name:   other.Name,
			Role:   other.Role,
			Status: other.Status,
			Online: other.Online(),
		}
	}

	if s.status == models.RoundLobby {
		u.LobbyPlayers = make(map[string]protocol.LobbyPlayer, len(s.players))
		for _, other := range s.players {
			u.LobbyPlayers[other.ID] = protocol.LobbyPlayer{
				Name:      other.Name,
				Role:      other.Role,
				IsReady:   other.IsReady,
				Confirmed: other.ConfirmedForLobby,
			}
		}
	}

	if p.OriginalRole == models.RoleHider || s.status.Terminal() {
		u.HiderLeaderboard = s.leaderboard()
	}

	if s.status.InProgress() {
		_, voted := s.earlyEndVotes[p.ID]
		u.EarlyEndRequests = len(s.earlyEndVotes)
		u.ActiveForEarlyEnd = s.activeForEarlyEnd
		u.HasRequestedEarlyEnd = voted
	}

	if s.status == models.RoundRunning && p.Participant() {
		switch p.Role {
		case models.RoleHider:
			u.HiderLocationUpdateImminent = p.WarningPending
			if p.Task != nil {
				u.CurrentTask = &protocol.TaskView{
					ID:              p.Task.ID,
					Description:     p.Task.Description,
					Points:          p.Task.Points,
					TimeLeftSeconds: secondsLeft(p.TaskDeadline, now),
				}
			}
		case models.RoleSeeker:
			u.HiderLocations = s.visibleHiderLocations()
			u.PowerUpsAvailable = availablePowerUps(p, now)
		}
	}
	return u
}

// visibleHiderLocations returns the last disclosed positions of hiders still in play.
func (s *State) visibleHiderLocations() map[string]protocol.HiderLocation {
	out := make(map[string]protocol.HiderLocation, len(s.revealed))
	for id, loc := range s.revealed {
		if h, ok := s.players[id]; ok && h.ActiveHider() {
			out[id] = loc
		}
	}
	return out
}

// leaderboard ranks every hider who started the round by points.
func (s *State) leaderboard() []protocol.LeaderboardEntry {
	var out []protocol.LeaderboardEntry
	for _, p := range s.players {
		if p.OriginalRole != models.RoleHider || !p.Participant() {
			continue
		}
		out = append(out, protocol.LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Points:   p.Points,
			Status:   p.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].Name < out[j].Name
	})
	return out
}
