// internal/game/loop.go
package game

import (
	"context"
	"fmt"
	"time"
)

// Run drives the game loop until ctx is cancelled. A failing tick is logged and the loop pauses
// for Settings.ErrorPause before resuming; it never stops on its own.
func (s *State) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.settings.TickInterval)
	defer ticker.Stop()

	s.log.WithField("interval", s.settings.TickInterval).Info("game loop started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("game loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}

		if err := s.safeTick(); err != nil {
			s.log.WithError(err).Error("game loop tick failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.settings.ErrorPause):
			}
		}
	}
}

// safeTick runs one tick, turning a panic into an error. Tick releases the lock through defer,
// so the state stays usable.
func (s *State) safeTick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	s.Tick(s.now())
	return nil
}
