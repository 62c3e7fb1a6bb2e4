package timer

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestPauseResume_IgnoresWallClockWhilePaused(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var s State

	s = s.Start(clock.Now(), 60*time.Second, ModeCountdown)

	clock.Advance(20 * time.Second)
	s = s.Pause(clock.Now())
	if got := s.Remaining; got != 40*time.Second {
		t.Fatalf("remaining after pause: got %v, want 40s", got)
	}

	// A long coffee break while paused must not burn countdown time.
	clock.Advance(5 * time.Minute)
	s = s.Resume(clock.Now())
	if got := s.Derived(clock.Now()); got != 40*time.Second {
		t.Fatalf("remaining after resume: got %v, want 40s", got)
	}

	clock.Advance(10 * time.Second)
	if got := s.Derived(clock.Now()); got != 30*time.Second {
		t.Fatalf("remaining 10s after resume: got %v, want 30s", got)
	}
}

func TestDerived_CountdownClampsAtZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var s State
	s = s.Start(clock.Now(), 5*time.Second, ModeCountdown)

	clock.Advance(30 * time.Second)
	if got := s.Derived(clock.Now()); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
	if !s.Expired(clock.Now()) {
		t.Fatalf("expected expired countdown")
	}
}

func TestStopwatch_AccumulatesAcrossPause(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var s State
	s = s.Start(clock.Now(), 0, ModeStopwatch)

	clock.Advance(15 * time.Second)
	s = s.Pause(clock.Now())
	clock.Advance(time.Hour)
	s = s.Resume(clock.Now())
	clock.Advance(5 * time.Second)

	if got := s.Derived(clock.Now()); got != 20*time.Second {
		t.Fatalf("elapsed: got %v, want 20s", got)
	}
	if s.Expired(clock.Now()) {
		t.Fatalf("stopwatch never expires")
	}
}

func TestAdjust_BoundedAtZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var s State
	s = s.Start(clock.Now(), 30*time.Second, ModeCountdown)

	clock.Advance(10 * time.Second)
	s = s.Adjust(clock.Now(), -time.Minute)
	if s.Remaining != 0 {
		t.Fatalf("remaining: got %v, want 0", s.Remaining)
	}
	if s.Duration != 0 {
		t.Fatalf("duration: got %v, want 0", s.Duration)
	}
}

func TestAdjust_WhileStopped(t *testing.T) {
	var s State
	s.Mode = ModeCountdown
	s.Duration = 60 * time.Second
	s.Remaining = 60 * time.Second

	s = s.Adjust(time.Now(), 30*time.Second)
	if s.Duration != 90*time.Second || s.Remaining != 90*time.Second {
		t.Fatalf("got duration=%v remaining=%v, want 90s/90s", s.Duration, s.Remaining)
	}
}

func TestAdjust_WhileRunningRebases(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var s State
	s = s.Start(clock.Now(), 60*time.Second, ModeCountdown)

	clock.Advance(20 * time.Second)
	s = s.Adjust(clock.Now(), 30*time.Second)

	// 40s left plus 30s added, measured from the adjust instant.
	if got := s.Derived(clock.Now()); got != 70*time.Second {
		t.Fatalf("got %v, want 70s", got)
	}
}

func TestStop_ReturnsToConfiguredDuration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var s State
	s = s.Start(clock.Now(), 45*time.Second, ModeCountdown)
	clock.Advance(10 * time.Second)

	s = s.Stop()
	if s.IsRunning || s.IsPaused {
		t.Fatalf("stop should clear running/paused")
	}
	if s.Remaining != 45*time.Second {
		t.Fatalf("remaining: got %v, want 45s", s.Remaining)
	}
}

func TestPause_NoopWhenStopped(t *testing.T) {
	var s State
	s.Mode = ModeCountdown
	s.Duration = 30 * time.Second
	s.Remaining = 30 * time.Second

	if got := s.Pause(time.Now()); got != s {
		t.Fatalf("pause on stopped timer should be a no-op")
	}
}
