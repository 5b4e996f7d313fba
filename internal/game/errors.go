package game

import "fmt"

// ActionError is a rejected client action. The message is shown to the player. Session errors
// mean the connection has no usable identity; the handler answers with a join error and hangs
// up. Everything else is a precondition failure answered with a plain error message.
type ActionError struct {
	Message string
	Session bool
}

func (e *ActionError) Error() string { return e.Message }

func sessionError(msg string) *ActionError {
	return &ActionError{Message: msg, Session: true}
}

func preconditionf(format string, args ...any) *ActionError {
	return &ActionError{Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidName    = sessionError("Please choose a name.")
	ErrInvalidRole    = sessionError("Role must be hider or seeker.")
	ErrNameTaken      = sessionError("That name is already taken.")
	ErrUnknownPlayer  = sessionError("Unknown player id; please join again.")
	ErrNotJoined      = sessionError("Join the game first.")
	ErrRejoinMismatch = sessionError("That player id belongs to someone else; please join again.")
	ErrAlreadyJoined  = preconditionf("This connection has already joined.")
	ErrNotInLobby     = preconditionf("Only possible while the lobby is open.")
	ErrNotRunning     = preconditionf("The round is not running.")
	ErrNotInRound     = preconditionf("You are not part of the current round.")
	ErrNotHider       = preconditionf("Only hiders can do that.")
	ErrNotSeeker      = preconditionf("Only seekers can do that.")
	ErrNotActive      = preconditionf("You are no longer active in this round.")
	ErrNoTask         = preconditionf("You have no task right now.")
	ErrTaskExpired    = preconditionf("The task's time limit has expired.")
	ErrTaskMismatch   = preconditionf("That task is no longer your current task.")
	ErrTaskLate       = preconditionf("The task was completed after its deadline; no points awarded.")
	ErrNoSkips        = preconditionf("No task skips left.")
	ErrNotActiveHider = preconditionf("That player is not an active hider.")
	ErrNoEarlyEnd     = preconditionf("An early end can only be requested during a round.")

	ErrUnknownPowerUp  = preconditionf("There is no such power-up.")
	ErrPowerUpCooldown = preconditionf("That power-up is still cooling down.")
)
