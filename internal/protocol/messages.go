// internal/protocol/messages.go
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/hideandseek/internal/models"
)

// Server message types, carried in the "type" field of every outbound message.
const (
	TypeGameUpdate       = "game_update"
	TypeTextNotification = "server_text_notification"
	TypeGameEvent        = "game_event"
	TypeAcknowledgement  = "acknowledgement"
	TypeError            = "error"
)

// Game event names.
const (
	EventGameStarted            = "game_started"
	EventLocationUpdateDue      = "hider_location_update_due"
	EventSeekerLocationsUpdated = "seeker_locations_updated"
	EventHiderDisqualifiedLoc   = "hider_disqualified_loc"
)

// ServerMessage is anything the server writes to a client.
type ServerMessage interface {
	MessageType() string
}

// GameUpdate is the personalized state snapshot. PlayerID is null for unbound sessions, in which
// case JoinError usually explains why.
type GameUpdate struct {
	PlayerID           *string                  `json:"player_id"`
	PlayerName         string                   `json:"player_name,omitempty"`
	Role               models.Role              `json:"role,omitempty"`
	OriginalRole       models.Role              `json:"original_role,omitempty"`
	Location           *models.Location         `json:"location,omitempty"`
	ConfirmedForLobby  bool                     `json:"confirmed_for_lobby"`
	IsReady            bool                     `json:"player_is_ready"`
	Status             models.PlayerStatus      `json:"player_status,omitempty"`
	Points             int                      `json:"points"`
	TaskSkipsAvailable int                      `json:"task_skips_available"`
	IsWaitingForLobby  bool                     `json:"is_waiting_for_lobby"`
	JoinError          string                   `json:"join_error,omitempty"`
	GameState          RoundState               `json:"game_state"`
	LobbyPlayers       map[string]LobbyPlayer   `json:"lobby_players,omitempty"`
	AllPlayersStatus   map[string]PlayerSummary `json:"all_players_status,omitempty"`
	HiderLeaderboard   []LeaderboardEntry       `json:"hider_leaderboard,omitempty"`

	HiderLocationUpdateImminent bool `json:"hider_location_update_imminent"`
	EarlyEndRequests            int  `json:"early_end_requests_count"`
	ActiveForEarlyEnd           int  `json:"total_active_players_for_early_end"`
	HasRequestedEarlyEnd        bool `json:"player_has_requested_early_end"`

	CurrentTask       *TaskView                `json:"current_task,omitempty"`
	HiderLocations    map[string]HiderLocation `json:"hider_locations,omitempty"`
	PowerUpsAvailable []PowerUpView            `json:"power_ups_available,omitempty"`
}

// RoundState is the shared part of every snapshot. Durations are whole seconds; a nil value
// means the timer does not apply in the current status.
type RoundState struct {
	Status                  models.RoundStatus `json:"status"`
	StatusDisplay           string             `json:"status_display"`
	GameTimeLeft            *int               `json:"game_time_left"`
	HiderWaitTimeLeft       *int               `json:"hider_wait_time_left"`
	GameOverMessage         string             `json:"game_over_message,omitempty"`
	PhaseIndex              int                `json:"current_phase_index"`
	NextLocationBroadcastIn *int               `json:"next_location_broadcast_in"`
}

type LobbyPlayer struct {
	Name      string      `json:"name"`
	Role      models.Role `json:"role"`
	IsReady   bool        `json:"is_ready"`
	Confirmed bool        `json:"confirmed"`
}

type PlayerSummary struct {
	Name   string              `json:"name"`
	Role   models.Role         `json:"role"`
	Status models.PlayerStatus `json:"status"`
	Online bool                `json:"online"`
}

type LeaderboardEntry struct {
	PlayerID string              `json:"player_id"`
	Name     string              `json:"name"`
	Points   int                 `json:"points"`
	Status   models.PlayerStatus `json:"status"`
}

type TaskView struct {
	ID              int    `json:"id"`
	Description     string `json:"description"`
	Points          int    `json:"points"`
	TimeLeftSeconds int    `json:"time_left_seconds"`
}

// PowerUpView is a seeker power-up that is off cooldown.
type PowerUpView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HiderLocation is a hider position as last disclosed to seekers. Timestamp is unix seconds of
// the fix.
type HiderLocation struct {
	Name      string   `json:"name"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

type TextNotification struct {
	Message string `json:"message"`
}

type GameEvent struct {
	EventName string `json:"event_name"`
	Message   string `json:"message,omitempty"`
}

type Acknowledgement struct {
	Message string `json:"message"`
}

type Error struct {
	Message string `json:"message"`
}

func (GameUpdate) MessageType() string       { return TypeGameUpdate }
func (TextNotification) MessageType() string { return TypeTextNotification }
func (GameEvent) MessageType() string        { return TypeGameEvent }
func (Acknowledgement) MessageType() string  { return TypeAcknowledgement }
func (Error) MessageType() string            { return TypeError }

// The MarshalJSON methods inject the "type" discriminator so it can never disagree with the Go
// type being sent.

func (m GameUpdate) MarshalJSON() ([]byte, error) {
	type alias GameUpdate
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeGameUpdate, alias(m)})
}

func (m TextNotification) MarshalJSON() ([]byte, error) {
	type alias TextNotification
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeTextNotification, alias(m)})
}

func (m GameEvent) MarshalJSON() ([]byte, error) {
	type alias GameEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeGameEvent, alias(m)})
}

func (m Acknowledgement) MarshalJSON() ([]byte, error) {
	type alias Acknowledgement
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeAcknowledgement, alias(m)})
}

func (m Error) MarshalJSON() ([]byte, error) {
	type alias Error
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeError, alias(m)})
}

// Encode serializes a message as one protocol line, including the trailing newline.
func Encode(msg ServerMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msg.MessageType(), err)
	}
	return append(data, '\n'), nil
}

// DecodeServerMessage parses one server line back into its typed message.
func DecodeServerMessage(line []byte) (ServerMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, &DecodeError{Err: err}
	}

	var err error
	switch envelope.Type {
	case TypeGameUpdate:
		var m GameUpdate
		err = json.Unmarshal(line, &m)
		return m, wrapDecode(err)
	case TypeTextNotification:
		var m TextNotification
		err = json.Unmarshal(line, &m)
		return m, wrapDecode(err)
	case TypeGameEvent:
		var m GameEvent
		err = json.Unmarshal(line, &m)
		return m, wrapDecode(err)
	case TypeAcknowledgement:
		var m Acknowledgement
		err = json.Unmarshal(line, &m)
		return m, wrapDecode(err)
	case TypeError:
		var m Error
		err = json.Unmarshal(line, &m)
		return m, wrapDecode(err)
	}
	return nil, &DecodeError{Err: fmt.Errorf("unknown message type %q", envelope.Type)}
}

func wrapDecode(err error) error {
	if err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}
