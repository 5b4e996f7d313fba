// internal/models/status.go
package models

// PlayerStatus is a player's in-round status.
type PlayerStatus string

const (
	StatusActive          PlayerStatus = "active"
	StatusCaught          PlayerStatus = "caught"
	// StatusFailedTask is part of the wire vocabulary for clients that render it. Task expiry
	// carries no penalty, so the server never assigns it.
	StatusFailedTask      PlayerStatus = "failed_task"
	StatusFailedLocUpdate PlayerStatus = "failed_loc_update"
	StatusOffline         PlayerStatus = "offline"
	StatusLeft            PlayerStatus = "left"
)

// RoundStatus is the state of the round state machine.
type RoundStatus string

const (
	RoundLobby      RoundStatus = "lobby"
	RoundHiderWait  RoundStatus = "hider_wait"
	RoundRunning    RoundStatus = "running"
	RoundHiderWins  RoundStatus = "hider_wins"
	RoundSeekerWins RoundStatus = "seeker_wins"
)

// Terminal reports whether the round has been decided.
func (s RoundStatus) Terminal() bool {
	switch s {
	case RoundHiderWins, RoundSeekerWins:
		return true
	case RoundLobby, RoundHiderWait, RoundRunning:
		return false
	}
	return false
}

// InProgress reports whether a round has started and is not yet decided.
func (s RoundStatus) InProgress() bool {
	return s == RoundHiderWait || s == RoundRunning
}

// Display is the human readable label shown by clients.
func (s RoundStatus) Display() string {
	switch s {
	case RoundLobby:
		return "Waiting in lobby"
	case RoundHiderWait:
		return "Hiders are hiding"
	case RoundRunning:
		return "Round running"
	case RoundHiderWins:
		return "Hiders win!"
	case RoundSeekerWins:
		return "Seekers win!"
	}
	return string(s)
}
