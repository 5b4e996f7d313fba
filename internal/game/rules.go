// internal/game/rules.go
package game

import (
	"errors"
	"fmt"
	"time"
)

// Settings holds the tunable rules of a round.
type Settings struct {
	RoundDuration    time.Duration // length of the running phase
	HiderPrep        time.Duration // head start for hiders before seekers may act
	WarningWindow    time.Duration // lead time of the "location update due" push
	WarningBuffer    time.Duration // phases faster than window+buffer get no warning
	PostGameDelay    time.Duration // how long results stay up before the server resets
	InitialTaskSkips int           // skips granted to every hider
	MinPlayers       int           // confirmed players needed to leave the lobby
	MaxNameLength    int           // in runes; longer names are truncated
	Phases           []Phase       // location broadcast schedule

	TickInterval time.Duration // game loop period
	ErrorPause   time.Duration // back-off after a failed tick
}

// DefaultSettings mirrors the values the game has always shipped with.
func DefaultSettings() Settings {
	return Settings{
		RoundDuration:    30 * time.Minute,
		HiderPrep:        5 * time.Second,
		WarningWindow:    20 * time.Second,
		WarningBuffer:    5 * time.Second,
		PostGameDelay:    2 * time.Minute,
		InitialTaskSkips: 1,
		MinPlayers:       1,
		MaxNameLength:    50,
		Phases:           DefaultPhases(),
		TickInterval:     time.Second,
		ErrorPause:       5 * time.Second,
	}
}

// DefaultPhases reveals everyone once at the start, then tightens the interval from three
// minutes down to one.
func DefaultPhases() []Phase {
	return []Phase{
		{Kind: PhaseInitialReveal},
		{Kind: PhaseInterval, Duration: 10 * time.Minute, Interval: 3 * time.Minute},
		{Kind: PhaseSplit, Duration: 10 * time.Minute, Updates: 5},
		{Kind: PhaseInterval, Interval: time.Minute},
	}
}

// Validate checks the settings for values the game loop cannot work with.
func (s Settings) Validate() error {
	var errs []error
	if s.RoundDuration <= 0 {
		errs = append(errs, errors.New("round duration must be positive"))
	}
	if s.HiderPrep < 0 {
		errs = append(errs, errors.New("hider prep must not be negative"))
	}
	if s.WarningWindow < 0 || s.WarningBuffer < 0 {
		errs = append(errs, errors.New("warning window and buffer must not be negative"))
	}
	if s.PostGameDelay < 0 {
		errs = append(errs, errors.New("post-game delay must not be negative"))
	}
	if s.InitialTaskSkips < 0 {
		errs = append(errs, errors.New("initial task skips must not be negative"))
	}
	if s.MinPlayers < 1 {
		errs = append(errs, errors.New("min players must be at least 1"))
	}
	if s.MaxNameLength < 2 {
		errs = append(errs, errors.New("max name length must be at least 2"))
	}
	if s.TickInterval <= 0 {
		errs = append(errs, errors.New("tick interval must be positive"))
	}
	if err := ValidatePhases(s.Phases); err != nil {
		errs = append(errs, fmt.Errorf("phases: %w", err))
	}
	return errors.Join(errs...)
}
