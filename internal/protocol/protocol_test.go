package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeActionKnownActions(t *testing.T) {
	a, err := DecodeAction([]byte(`{"action":"JOIN_GAME","name":"Alice","role_preference":"hider"}`))
	require.NoError(t, err)
	join, ok := a.(*JoinGame)
	require.True(t, ok, "expected *JoinGame, got %T", a)
	assert.Equal(t, "Alice", join.PlayerName)
	assert.Equal(t, "hider", join.RolePreference)
	assert.Equal(t, ActionJoinGame, a.Name())

	a, err = DecodeAction([]byte(`{"action":"UPDATE_LOCATION","lat":52.52,"lon":13.40,"accuracy":12.5}`))
	require.NoError(t, err)
	loc := a.(*UpdateLocation)
	assert.InDelta(t, 52.52, *loc.Lat, 1e-9)
	assert.InDelta(t, 13.40, *loc.Lon, 1e-9)
	require.NotNil(t, loc.Accuracy)
	assert.InDelta(t, 12.5, *loc.Accuracy, 1e-9)

	a, err = DecodeAction([]byte(`{"action":"SET_READY"}`))
	require.NoError(t, err)
	assert.Nil(t, a.(*SetReady).ReadyStatus, "missing ready_status means toggle")

	a, err = DecodeAction([]byte(`{"action":"CATCH_HIDER","hider_id_to_catch":"5000_abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "5000_abc", a.(*CatchHider).HiderID)

	a, err = DecodeAction([]byte(`{"action":"USE_POWERUP","powerup_id":"radar_ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "radar_ping", a.(*UsePowerUp).PowerUpID)

	for _, name := range []string{ActionTaskComplete, ActionSkipTask, ActionRequestEarlyEnd,
		ActionLeaveGame, ActionReturnToRegistration, ActionForceReset, ActionConfirmLobbyJoin} {
		a, err := DecodeAction([]byte(`{"action":"` + name + `"}`))
		require.NoError(t, err, name)
		assert.Equal(t, name, a.Name())
	}
}

func TestDecodeActionTaskCompleteOffline(t *testing.T) {
	a, err := DecodeAction([]byte(`{"action":"TASK_COMPLETE_OFFLINE","task_id":3,"completed_at_timestamp_offline":1700000000.25}`))
	require.NoError(t, err)
	off := a.(*TaskCompleteOffline)
	assert.Equal(t, 3, *off.TaskID)
	want := time.Unix(1700000000, int64(250*time.Millisecond))
	assert.WithinDuration(t, want, off.CompletedTime(), time.Millisecond)
}

func TestDecodeActionErrors(t *testing.T) {
	_, err := DecodeAction([]byte(`{"action":`))
	var decErr *DecodeError
	assert.True(t, errors.As(err, &decErr), "truncated json should be a DecodeError, got %v", err)

	_, err = DecodeAction([]byte(`{"action":"DANCE"}`))
	var unknown *UnknownActionError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "DANCE", unknown.Action)

	_, err = DecodeAction([]byte(`{"lat":1}`))
	assert.True(t, errors.As(err, &unknown), "missing action is unknown")

	_, err = DecodeAction([]byte(`{"action":"UPDATE_LOCATION","lat":10}`))
	assert.True(t, errors.As(err, &decErr), "missing lon must be rejected")

	_, err = DecodeAction([]byte(`{"action":"UPDATE_LOCATION","lat":"north","lon":1}`))
	assert.True(t, errors.As(err, &decErr))

	_, err = DecodeAction([]byte(`{"action":"JOIN_GAME","role_preference":"hider"}`))
	assert.True(t, errors.As(err, &decErr), "join without name must be rejected")

	_, err = DecodeAction([]byte(`{"action":"USE_POWERUP"}`))
	assert.True(t, errors.As(err, &decErr), "power-up without id must be rejected")
}

func TestEncodeInjectsType(t *testing.T) {
	cases := []ServerMessage{
		GameUpdate{GameState: RoundState{Status: models.RoundLobby}},
		TextNotification{Message: "hi"},
		GameEvent{EventName: EventGameStarted},
		Acknowledgement{Message: "ok"},
		Error{Message: "nope"},
	}
	for _, msg := range cases {
		line, err := Encode(msg)
		require.NoError(t, err)
		require.Equal(t, byte('\n'), line[len(line)-1])

		var envelope map[string]any
		require.NoError(t, json.Unmarshal(line, &envelope))
		assert.Equal(t, msg.MessageType(), envelope["type"])

		back, err := DecodeServerMessage(line[:len(line)-1])
		require.NoError(t, err)
		assert.Equal(t, msg.MessageType(), back.MessageType())
	}
}

func TestGameUpdateNullPlayerID(t *testing.T) {
	line, err := Encode(GameUpdate{JoinError: "name taken"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(line, &raw))
	v, present := raw["player_id"]
	assert.True(t, present, "player_id must always be present")
	assert.Nil(t, v)
	assert.Equal(t, "name taken", raw["join_error"])
}

func TestLineBufferSplitsLines(t *testing.T) {
	b := NewLineBuffer(0)
	require.NoError(t, b.Write([]byte(`{"a":1}`+"\n"+`{"b"`)))

	line, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(line))

	_, ok = b.Next()
	assert.False(t, ok, "partial line must stay buffered")

	require.NoError(t, b.Write([]byte(":2}\r\n\n\n")))
	line, ok = b.Next()
	require.True(t, ok)
	assert.Equal(t, `{"b":2}`, string(line))

	_, ok = b.Next()
	assert.False(t, ok, "blank lines are skipped")
	assert.Equal(t, 0, b.Pending())
}

func TestLineBufferLimit(t *testing.T) {
	b := NewLineBuffer(8)
	err := b.Write([]byte("0123456789"))
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.Equal(t, 0, b.Pending())

	require.NoError(t, b.Write([]byte("short\n")))
	line, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, "short", string(line))
}
