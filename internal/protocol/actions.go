// internal/protocol/actions.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Client action names, carried in the "action" field of every inbound message.
const (
	ActionJoinGame             = "JOIN_GAME"
	ActionRejoinGame           = "REJOIN_GAME"
	ActionConfirmLobbyJoin     = "CONFIRM_LOBBY_JOIN"
	ActionSetReady             = "SET_READY"
	ActionUpdateLocation       = "UPDATE_LOCATION"
	ActionTaskComplete         = "TASK_COMPLETE"
	ActionTaskCompleteOffline  = "TASK_COMPLETE_OFFLINE"
	ActionSkipTask             = "SKIP_TASK"
	ActionCatchHider           = "CATCH_HIDER"
	ActionRequestEarlyEnd      = "REQUEST_EARLY_ROUND_END"
	ActionLeaveGame            = "LEAVE_GAME_AND_GO_TO_JOIN"
	ActionReturnToRegistration = "RETURN_TO_REGISTRATION"
	ActionForceReset           = "FORCE_SERVER_RESET_FROM_CLIENT"
	ActionUsePowerUp           = "USE_POWERUP"
)

// Action is a decoded client message. The set of implementations is closed; dispatch with a
// type switch.
type Action interface {
	Name() string
	isAction()
}

type JoinGame struct {
	PlayerName     string `json:"name"`
	RolePreference string `json:"role_preference"`
}

type RejoinGame struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"name"`
}

type ConfirmLobbyJoin struct{}

// SetReady sets the ready flag. A missing ready_status toggles it.
type SetReady struct {
	ReadyStatus *bool `json:"ready_status"`
}

type UpdateLocation struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Accuracy *float64 `json:"accuracy"`
}

type TaskComplete struct{}

// TaskCompleteOffline reports a completion the client recorded while it had no connection.
// CompletedAt is a unix timestamp in (fractional) seconds.
type TaskCompleteOffline struct {
	TaskID      *int     `json:"task_id"`
	CompletedAt *float64 `json:"completed_at_timestamp_offline"`
}

// CompletedTime converts the reported completion timestamp.
func (a *TaskCompleteOffline) CompletedTime() time.Time {
	sec, frac := math.Modf(*a.CompletedAt)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

type SkipTask struct{}

type CatchHider struct {
	HiderID string `json:"hider_id_to_catch"`
}

type RequestEarlyEnd struct{}

type LeaveGame struct{}

type ReturnToRegistration struct{}

type ForceReset struct{}

type UsePowerUp struct {
	PowerUpID string `json:"powerup_id"`
}

func (*JoinGame) Name() string             { return ActionJoinGame }
func (*RejoinGame) Name() string           { return ActionRejoinGame }
func (*ConfirmLobbyJoin) Name() string     { return ActionConfirmLobbyJoin }
func (*SetReady) Name() string             { return ActionSetReady }
func (*UpdateLocation) Name() string       { return ActionUpdateLocation }
func (*TaskComplete) Name() string         { return ActionTaskComplete }
func (*TaskCompleteOffline) Name() string  { return ActionTaskCompleteOffline }
func (*SkipTask) Name() string             { return ActionSkipTask }
func (*CatchHider) Name() string           { return ActionCatchHider }
func (*RequestEarlyEnd) Name() string      { return ActionRequestEarlyEnd }
func (*LeaveGame) Name() string            { return ActionLeaveGame }
func (*ReturnToRegistration) Name() string { return ActionReturnToRegistration }
func (*ForceReset) Name() string           { return ActionForceReset }
func (*UsePowerUp) Name() string           { return ActionUsePowerUp }

func (*JoinGame) isAction()             {}
func (*RejoinGame) isAction()           {}
func (*ConfirmLobbyJoin) isAction()     {}
func (*SetReady) isAction()             {}
func (*UpdateLocation) isAction()       {}
func (*TaskComplete) isAction()         {}
func (*TaskCompleteOffline) isAction()  {}
func (*SkipTask) isAction()             {}
func (*CatchHider) isAction()           {}
func (*RequestEarlyEnd) isAction()      {}
func (*LeaveGame) isAction()            {}
func (*ReturnToRegistration) isAction() {}
func (*ForceReset) isAction()           {}
func (*UsePowerUp) isAction()           {}

// DecodeError is returned for lines that are not valid JSON or miss required fields.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("malformed message: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// UnknownActionError is returned when the action name is not recognized.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	if e.Action == "" {
		return "message has no action"
	}
	return fmt.Sprintf("unknown action %q", e.Action)
}

// DecodeAction parses one protocol line into its action.
func DecodeAction(line []byte) (Action, error) {
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, &DecodeError{Err: err}
	}

	var a Action
	switch envelope.Action {
	case ActionJoinGame:
		a = &JoinGame{}
	case ActionRejoinGame:
		a = &RejoinGame{}
	case ActionConfirmLobbyJoin:
		a = &ConfirmLobbyJoin{}
	case ActionSetReady:
		a = &SetReady{}
	case ActionUpdateLocation:
		a = &UpdateLocation{}
	case ActionTaskComplete:
		a = &TaskComplete{}
	case ActionTaskCompleteOffline:
		a = &TaskCompleteOffline{}
	case ActionSkipTask:
		a = &SkipTask{}
	case ActionCatchHider:
		a = &CatchHider{}
	case ActionRequestEarlyEnd:
		a = &RequestEarlyEnd{}
	case ActionLeaveGame:
		a = &LeaveGame{}
	case ActionReturnToRegistration:
		a = &ReturnToRegistration{}
	case ActionForceReset:
		a = &ForceReset{}
	case ActionUsePowerUp:
		a = &UsePowerUp{}
	default:
		return nil, &UnknownActionError{Action: envelope.Action}
	}

	if err := json.Unmarshal(line, a); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%s: %w", envelope.Action, err)}
	}
	if err := validate(a); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%s: %w", envelope.Action, err)}
	}
	return a, nil
}

func validate(a Action) error {
	switch v := a.(type) {
	case *JoinGame:
		if v.PlayerName == "" {
			return errors.New("name is required")
		}
	case *RejoinGame:
		if v.PlayerID == "" {
			return errors.New("player_id is required")
		}
	case *UpdateLocation:
		if v.Lat == nil || v.Lon == nil {
			return errors.New("lat and lon are required")
		}
		if *v.Lat < -90 || *v.Lat > 90 || *v.Lon < -180 || *v.Lon > 180 {
			return errors.New("coordinates out of range")
		}
	case *TaskCompleteOffline:
		if v.TaskID == nil || v.CompletedAt == nil {
			return errors.New("task_id and completed_at_timestamp_offline are required")
		}
	case *CatchHider:
		if v.HiderID == "" {
			return errors.New("hider_id_to_catch is required")
		}
	case *UsePowerUp:
		if v.PowerUpID == "" {
			return errors.New("powerup_id is required")
		}
	}
	return nil
}
