// internal/game/scheduler.go
package game

import (
	"errors"
	"fmt"
	"time"
)

// PhaseKind selects how a phase spaces its location broadcasts.
type PhaseKind string

const (
	// PhaseInitialReveal fires one broadcast as soon as it is entered.
	PhaseInitialReveal PhaseKind = "initial_reveal"
	// PhaseInterval fires every Interval. A zero Duration makes it run forever.
	PhaseInterval PhaseKind = "interval"
	// PhaseSplit spreads Updates broadcasts evenly over Duration; the last one lands on the
	// phase end.
	PhaseSplit PhaseKind = "split"
)

// Phase is one segment of the hider location broadcast schedule.
type Phase struct {
	Kind     PhaseKind     `json:"kind"`
	Duration time.Duration `json:"duration"`
	Interval time.Duration `json:"interval"`
	Updates  int           `json:"updates"`
}

// Infinite reports whether the phase never ends on its own.
func (p Phase) Infinite() bool {
	return p.Kind == PhaseInterval && p.Duration == 0
}

// EffectiveInterval is the spacing between broadcasts inside the phase. Initial reveals have
// none.
func (p Phase) EffectiveInterval() time.Duration {
	switch p.Kind {
	case PhaseInterval:
		return p.Interval
	case PhaseSplit:
		return p.Duration / time.Duration(p.Updates)
	case PhaseInitialReveal:
		return 0
	}
	return 0
}

// ValidatePhases rejects schedules the scheduler cannot run. Only the final phase may be
// infinite.
func ValidatePhases(phases []Phase) error {
	if len(phases) == 0 {
		return errors.New("at least one phase is required")
	}
	for i, p := range phases {
		switch p.Kind {
		case PhaseInitialReveal:
		case PhaseInterval:
			if p.Interval <= 0 {
				return fmt.Errorf("phase %d: interval must be positive", i)
			}
			if p.Duration < 0 {
				return fmt.Errorf("phase %d: duration must not be negative", i)
			}
			if p.Infinite() && i != len(phases)-1 {
				return fmt.Errorf("phase %d: only the last phase may be infinite", i)
			}
		case PhaseSplit:
			if p.Duration <= 0 || p.Updates <= 0 {
				return fmt.Errorf("phase %d: split phases need a positive duration and update count", i)
			}
		default:
			return fmt.Errorf("phase %d: unknown kind %q", i, p.Kind)
		}
	}
	return nil
}

// Schedule tracks progress through the phase list during a running round. Next is nil when no
// broadcast is pending, either because the schedule is exhausted or because the current
// finite phase has nothing left before its end.
type Schedule struct {
	Phases      []Phase
	Index       int
	PhaseStart  time.Time
	UpdatesDone int
	Next        *time.Time
}

// NewSchedule returns an idle schedule over the given phases.
func NewSchedule(phases []Phase) Schedule {
	return Schedule{Phases: phases}
}

// Start enters the first phase at now.
func (s *Schedule) Start(now time.Time) {
	s.enter(0, now)
}

// Stop discards any pending broadcast.
func (s *Schedule) Stop() {
	s.Index = len(s.Phases)
	s.Next = nil
}

// Current returns the active phase, or false once the schedule is exhausted.
func (s *Schedule) Current() (Phase, bool) {
	if s.Index < 0 || s.Index >= len(s.Phases) {
		return Phase{}, false
	}
	return s.Phases[s.Index], true
}

// Exhausted reports whether every phase has been consumed.
func (s *Schedule) Exhausted() bool {
	_, ok := s.Current()
	return !ok
}

// Due reports whether a broadcast should fire at now.
func (s *Schedule) Due(now time.Time) bool {
	return s.Next != nil && !now.Before(*s.Next)
}

// WarningAt returns when the pre-broadcast warning for the pending broadcast should go out.
// The second value is false when nothing is pending or the phase is too fast for warnings.
func (s *Schedule) WarningAt(window, buffer time.Duration) (time.Time, bool) {
	p, ok := s.Current()
	if !ok || s.Next == nil {
		return time.Time{}, false
	}
	if p.EffectiveInterval() < window+buffer {
		return time.Time{}, false
	}
	return s.Next.Add(-window), true
}

// Fired records that the pending broadcast went out at now and computes the next one.
func (s *Schedule) Fired(now time.Time) {
	p, ok := s.Current()
	if !ok {
		s.Next = nil
		return
	}
	scheduled := now
	if s.Next != nil {
		scheduled = *s.Next
	}
	s.UpdatesDone++

	switch p.Kind {
	case PhaseInitialReveal:
		s.enter(s.Index+1, now)
	case PhaseSplit:
		if s.UpdatesDone >= p.Updates {
			s.enter(s.Index+1, s.PhaseStart.Add(p.Duration))
			return
		}
		next := s.PhaseStart.Add(p.EffectiveInterval() * time.Duration(s.UpdatesDone+1))
		s.Next = &next
	case PhaseInterval:
		next := scheduled.Add(p.Interval)
		if !next.After(now) {
			next = now.Add(p.Interval)
		}
		if !p.Infinite() && next.After(s.PhaseStart.Add(p.Duration)) {
			// nothing else fits; AdvanceElapsed moves on at the phase end
			s.Next = nil
			return
		}
		s.Next = &next
	}
}

// AdvanceElapsed moves past every finite phase whose duration ended at or before now and that
// has no broadcast pending. It reports whether the phase changed.
func (s *Schedule) AdvanceElapsed(now time.Time) bool {
	advanced := false
	for {
		p, ok := s.Current()
		if !ok || p.Kind == PhaseInitialReveal || p.Infinite() {
			return advanced
		}
		end := s.PhaseStart.Add(p.Duration)
		if now.Before(end) {
			return advanced
		}
		if s.Next != nil && !s.Next.After(end) {
			// the final in-phase broadcast has not fired yet
			return advanced
		}
		s.enter(s.Index+1, end)
		advanced = true
	}
}

func (s *Schedule) enter(index int, start time.Time) {
	s.Index = index
	s.PhaseStart = start
	s.UpdatesDone = 0
	p, ok := s.Current()
	if !ok {
		s.Next = nil
		return
	}
	var next time.Time
	switch p.Kind {
	case PhaseInitialReveal:
		next = start
	case PhaseInterval:
		next = start.Add(p.Interval)
		if !p.Infinite() && next.After(start.Add(p.Duration)) {
			s.Next = nil
			return
		}
	case PhaseSplit:
		next = start.Add(p.EffectiveInterval())
	}
	s.Next = &next
}
