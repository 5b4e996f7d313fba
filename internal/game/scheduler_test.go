package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(start time.Time, d time.Duration) time.Time { return start.Add(d) }

// fire asserts the pending broadcast is due exactly at want and marks it fired.
func fire(t *testing.T, s *Schedule, want time.Time) {
	t.Helper()
	require.NotNil(t, s.Next, "expected a broadcast at %s", want)
	assert.Equal(t, want, *s.Next)
	assert.False(t, s.Due(want.Add(-time.Second)))
	assert.True(t, s.Due(want))
	s.Fired(want)
}

func TestDefaultScheduleTimeline(t *testing.T) {
	start := testEpoch
	s := NewSchedule(DefaultPhases())
	s.Start(start)

	// initial reveal
	fire(t, &s, start)
	assert.Equal(t, 1, s.Index)

	// every three minutes until the ten minute mark
	fire(t, &s, at(start, 3*time.Minute))
	fire(t, &s, at(start, 6*time.Minute))
	fire(t, &s, at(start, 9*time.Minute))
	assert.Nil(t, s.Next, "12m would overrun the phase")

	assert.False(t, s.AdvanceElapsed(at(start, 10*time.Minute-time.Second)))
	assert.True(t, s.AdvanceElapsed(at(start, 10*time.Minute)))
	assert.Equal(t, 2, s.Index)

	// five updates over the next ten minutes
	for i := 1; i <= 5; i++ {
		fire(t, &s, at(start, 10*time.Minute+time.Duration(i)*2*time.Minute))
	}
	assert.Equal(t, 3, s.Index)

	// one minute forever after
	fire(t, &s, at(start, 21*time.Minute))
	fire(t, &s, at(start, 22*time.Minute))
	assert.False(t, s.AdvanceElapsed(at(start, 2*time.Hour)))
	assert.False(t, s.Exhausted())
}

func TestSplitPhaseStaysAnchoredWhenLate(t *testing.T) {
	start := testEpoch
	s := NewSchedule([]Phase{{Kind: PhaseSplit, Duration: 10 * time.Minute, Updates: 5}})
	s.Start(start)

	require.NotNil(t, s.Next)
	s.Fired(at(start, 2*time.Minute+3*time.Second))
	require.NotNil(t, s.Next)
	assert.Equal(t, at(start, 4*time.Minute), *s.Next)
}

func TestIntervalPhaseRecoversFromLateFire(t *testing.T) {
	start := testEpoch
	s := NewSchedule([]Phase{{Kind: PhaseInterval, Interval: time.Minute}})
	s.Start(start)

	// a stalled loop fires long after the slot; the next one is spaced from now
	late := at(start, 5*time.Minute)
	s.Fired(late)
	require.NotNil(t, s.Next)
	assert.Equal(t, at(late, time.Minute), *s.Next)
}

func TestScheduleExhaustsAfterFinitePhases(t *testing.T) {
	start := testEpoch
	s := NewSchedule([]Phase{
		{Kind: PhaseInitialReveal},
		{Kind: PhaseSplit, Duration: time.Minute, Updates: 2},
	})
	s.Start(start)

	fire(t, &s, start)
	fire(t, &s, at(start, 30*time.Second))
	fire(t, &s, at(start, time.Minute))
	assert.True(t, s.Exhausted())
	assert.Nil(t, s.Next)
	assert.False(t, s.Due(at(start, time.Hour)))
}

func TestWarningAt(t *testing.T) {
	start := testEpoch
	window, buffer := 20*time.Second, 5*time.Second

	s := NewSchedule([]Phase{{Kind: PhaseInterval, Interval: time.Minute}})
	s.Start(start)
	warn, ok := s.WarningAt(window, buffer)
	require.True(t, ok)
	assert.Equal(t, at(start, 40*time.Second), warn)

	fast := NewSchedule([]Phase{{Kind: PhaseInterval, Interval: 24 * time.Second}})
	fast.Start(start)
	_, ok = fast.WarningAt(window, buffer)
	assert.False(t, ok, "phases faster than window plus buffer get no warning")

	reveal := NewSchedule([]Phase{{Kind: PhaseInitialReveal}})
	reveal.Start(start)
	_, ok = reveal.WarningAt(window, buffer)
	assert.False(t, ok)

	s.Stop()
	_, ok = s.WarningAt(window, buffer)
	assert.False(t, ok)
}

func TestValidatePhases(t *testing.T) {
	assert.NoError(t, ValidatePhases(DefaultPhases()))

	cases := map[string][]Phase{
		"empty":             nil,
		"zero interval":     {{Kind: PhaseInterval}},
		"infinite not last": {{Kind: PhaseInterval, Interval: time.Minute}, {Kind: PhaseInitialReveal}},
		"split no updates":  {{Kind: PhaseSplit, Duration: time.Minute}},
		"unknown kind":      {{Kind: "random"}},
		"negative duration": {{Kind: PhaseInterval, Interval: time.Minute, Duration: -time.Second}},
	}
	for name, phases := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, ValidatePhases(phases))
		})
	}
}

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	s := DefaultSettings()
	s.RoundDuration = 0
	s.MinPlayers = 0
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "round duration")
	assert.Contains(t, err.Error(), "min players")
}
