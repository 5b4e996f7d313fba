// internal/handlers/session.go
package handlers

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/hideandseek/internal/game"
	"github.com/jason-s-yu/hideandseek/internal/models"
	"github.com/jason-s-yu/hideandseek/internal/protocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// SessionConfig tunes every connection handler.
type SessionConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
	MaxLineBytes int
	// RateLimit is the sustained number of inbound messages per second; zero disables limiting.
	RateLimit rate.Limit
	RateBurst int
}

// DefaultSessionConfig allows a burst of 10 messages refilled every 100ms.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		QueueSize:    defaultQueueSize,
		WriteTimeout: defaultWriteTimeout,
		MaxLineBytes: protocol.MaxLineBytes,
		RateLimit:    rate.Every(100 * time.Millisecond),
		RateBurst:    10,
	}
}

// Session is the per-connection handler: it reads lines, dispatches actions to the game state
// and cleans up when the connection ends for any reason.
type Session struct {
	client   *Client
	state    *game.State
	buf      *protocol.LineBuffer
	limiter  *rate.Limiter
	log      *logrus.Entry
	playerID string
}

// ServeConn runs a session on transport until the peer disconnects, the session terminates or
// ctx is cancelled. It returns once the outbound queue has been flushed.
func ServeConn(ctx context.Context, transport Transport, st *game.State, cfg SessionConfig, logger logrus.FieldLogger) error {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	entry := logger.WithFields(logrus.Fields{
		"conn":   id,
		"remote": transport.RemoteAddr(),
	})

	client := NewClient(id, transport, cfg.QueueSize, cfg.WriteTimeout, entry)
	go client.WritePump(ctx)
	stop := context.AfterFunc(ctx, func() { transport.Close() })
	defer stop()

	s := &Session{
		client: client,
		state:  st,
		buf:    protocol.NewLineBuffer(cfg.MaxLineBytes),
		log:    entry,
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	st.Attach(client)
	entry.Info("client connected")
	err := s.serve(ctx)
	s.cleanup()
	<-client.Done()

	if err != nil && !isClosedErr(err) {
		entry.WithError(err).Warn("client disconnected with error")
		return err
	}
	entry.Info("client disconnected")
	return nil
}

func isClosedErr(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled)
}

func (s *Session) serve(ctx context.Context) error {
	for {
		chunk, err := s.client.transport.Read(ctx)
		if err != nil {
			return err
		}
		if err := s.buf.Write(chunk); err != nil {
			s.log.Warn("oversized message discarded")
			s.reply(protocol.Error{Message: "Message too long."})
			continue
		}
		for {
			line, ok := s.buf.Next()
			if !ok {
				break
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			if s.handleLine(line) {
				return nil
			}
		}
	}
}

// cleanup runs on every exit path. A player still bound to this connection goes offline.
func (s *Session) cleanup() {
	if s.playerID != "" {
		s.state.Disconnect(s.playerID, s.client)
	}
	s.state.Detach(s.client)
	s.client.Close()
}

func (s *Session) reply(msg protocol.ServerMessage) {
	if err := s.client.Send(msg); err != nil {
		s.log.Debugf("reply dropped: %v", err)
	}
}

// handleLine decodes and dispatches one line. It reports whether the session should end.
func (s *Session) handleLine(line []byte) bool {
	action, err := protocol.DecodeAction(line)
	if err != nil {
		var unknown *protocol.UnknownActionError
		if errors.As(err, &unknown) {
			s.log.Debugf("unknown action %q", unknown.Action)
			s.reply(protocol.Error{Message: "Unknown action: " + unknown.Action})
			return false
		}
		s.log.Debugf("malformed message: %v", err)
		s.buf.Reset()
		s.reply(protocol.Error{Message: "Invalid message format."})
		return false
	}

	// the player may have been removed by a reset since the last message
	if s.playerID != "" && !s.state.Exists(s.playerID) {
		s.log.WithField("player_id", s.playerID).Info("bound player no longer exists, unbinding")
		s.playerID = ""
		s.log = s.log.WithField("player_id", "")
	}

	s.log.Debugf("received %s", action.Name())
	return s.dispatch(action)
}

// fail answers a rejected action. Session errors end the session.
func (s *Session) fail(err error) bool {
	var ae *game.ActionError
	if errors.As(err, &ae) && ae.Session {
		s.log.Infof("session rejected: %s", ae.Message)
		s.state.RejectSession(s.client, ae.Message)
		return true
	}
	s.reply(protocol.Error{Message: err.Error()})
	return false
}

func (s *Session) bind(id string) {
	s.playerID = id
	s.log = s.log.WithField("player_id", id)
}

func (s *Session) dispatch(action protocol.Action) bool {
	// actions that do not need a bound player
	switch a := action.(type) {
	case *protocol.JoinGame:
		if s.playerID != "" {
			return s.fail(game.ErrAlreadyJoined)
		}
		id, err := s.state.Join(s.client, a.PlayerName, a.RolePreference)
		if err != nil {
			return s.fail(err)
		}
		s.bind(id)
		return false
	case *protocol.RejoinGame:
		if s.playerID != "" {
			return s.fail(game.ErrAlreadyJoined)
		}
		if err := s.state.Rejoin(s.client, a.PlayerID, a.PlayerName); err != nil {
			return s.fail(err)
		}
		s.bind(a.PlayerID)
		return false
	case *protocol.ForceReset:
		s.log.Warn("server reset requested by client")
		s.state.ForceReset(s.client)
		s.playerID = ""
		return true
	}

	if s.playerID == "" {
		return s.fail(game.ErrNotJoined)
	}

	var err error
	switch a := action.(type) {
	case *protocol.ConfirmLobbyJoin:
		err = s.state.ConfirmLobby(s.playerID)
	case *protocol.SetReady:
		err = s.state.SetReady(s.playerID, a.ReadyStatus)
	case *protocol.UpdateLocation:
		err = s.state.UpdateLocation(s.playerID, models.Location{Lat: *a.Lat, Lon: *a.Lon, Accuracy: a.Accuracy})
	case *protocol.TaskComplete:
		err = s.state.CompleteTask(s.playerID)
	case *protocol.TaskCompleteOffline:
		err = s.state.CompleteTaskOffline(s.playerID, *a.TaskID, a.CompletedTime())
	case *protocol.SkipTask:
		err = s.state.SkipTask(s.playerID)
	case *protocol.CatchHider:
		err = s.state.Catch(s.playerID, a.HiderID)
	case *protocol.RequestEarlyEnd:
		err = s.state.RequestEarlyEnd(s.playerID)
	case *protocol.UsePowerUp:
		err = s.state.UsePowerUp(s.playerID, a.PowerUpID)
	case *protocol.LeaveGame:
		if err := s.state.Leave(s.playerID); err != nil {
			return s.fail(err)
		}
		s.playerID = ""
		return true
	case *protocol.ReturnToRegistration:
		if err := s.state.ReturnToRegistration(s.playerID); err != nil {
			return s.fail(err)
		}
		s.playerID = ""
		s.log = s.log.WithField("player_id", "")
		return false
	default:
		s.log.Warnf("no handler for %s", action.Name())
		s.reply(protocol.Error{Message: "Unsupported action."})
		return false
	}
	if err != nil {
		return s.fail(err)
	}
	return false
}
