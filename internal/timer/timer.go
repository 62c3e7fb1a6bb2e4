// Package timer is the authoritative countdown/stopwatch state machine.
// Remaining time is always re-derived from a caller-supplied now against
// StartedAt; a cached remaining value is never trusted while running, so
// client clock drift and tab suspension cannot desynchronize anything.
// All transitions are pure: they take and return State values, and the
// room actor supplies now from its clock.
package timer

import "time"

type Mode string

const (
	ModeNone      Mode = "none"
	ModeCountdown Mode = "countdown"
	ModeStopwatch Mode = "stopwatch"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeCountdown, ModeStopwatch, ModeNone:
		return Mode(s), true
	default:
		return "", false
	}
}

// State is owned by the session state machine and broadcast to clients,
// who re-derive minutes/seconds from StartedAt + Remaining on every tick.
//
// Remaining holds the remaining time (countdown) or accumulated elapsed
// time (stopwatch) as of StartedAt; while running the live value comes
// from Derived.
type State struct {
	Mode       Mode
	Duration   time.Duration
	Remaining  time.Duration
	IsRunning  bool
	IsPaused   bool
	StartedAt  time.Time
	PausedAt   time.Time
	Warning    time.Duration
	AutoReveal bool
}

func (s State) Start(now time.Time, duration time.Duration, mode Mode) State {
	s.Mode = mode
	s.Duration = duration
	if mode == ModeCountdown {
		s.Remaining = duration
	} else {
		s.Remaining = 0
	}
	s.StartedAt = now
	s.PausedAt = time.Time{}
	s.IsRunning = true
	s.IsPaused = false
	return s
}

// Derived returns the live remaining (countdown) or elapsed (stopwatch)
// value at now.
func (s State) Derived(now time.Time) time.Duration {
	if !s.IsRunning {
		return s.Remaining
	}
	since := now.Sub(s.StartedAt)
	if s.Mode == ModeStopwatch {
		return s.Remaining + since
	}
	rem := s.Remaining - since
	if rem < 0 {
		rem = 0
	}
	return rem
}

// Pause materializes the derived value before flipping state, so the time
// spent paused never leaks into the countdown.
func (s State) Pause(now time.Time) State {
	if !s.IsRunning {
		return s
	}
	s.Remaining = s.Derived(now)
	s.IsRunning = false
	s.IsPaused = true
	s.PausedAt = now
	return s
}

// Resume restarts with the already-reduced remaining duration.
func (s State) Resume(now time.Time) State {
	if !s.IsPaused {
		return s
	}
	s.StartedAt = now
	s.PausedAt = time.Time{}
	s.IsRunning = true
	s.IsPaused = false
	return s
}

// Adjust shifts both duration and remaining by delta, bounded at zero.
// Permitted whether running or stopped.
func (s State) Adjust(now time.Time, delta time.Duration) State {
	s.Duration += delta
	if s.Duration < 0 {
		s.Duration = 0
	}
	if s.IsRunning {
		s.Remaining = s.Derived(now) + delta
		s.StartedAt = now
	} else {
		s.Remaining += delta
	}
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	return s
}

// Stop returns to the configured duration without clearing mode or flags.
func (s State) Stop() State {
	s.IsRunning = false
	s.IsPaused = false
	s.StartedAt = time.Time{}
	s.PausedAt = time.Time{}
	if s.Mode == ModeCountdown {
		s.Remaining = s.Duration
	} else {
		s.Remaining = 0
	}
	return s
}

// Expired reports whether a running countdown has hit zero at now. The one
// place a timer event crosses into the voting domain: expiry with
// AutoReveal set triggers a reveal.
func (s State) Expired(now time.Time) bool {
	return s.Mode == ModeCountdown && s.IsRunning && s.Derived(now) <= 0
}
